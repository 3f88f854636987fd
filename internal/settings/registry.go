package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/store"
)

// Registry provides read/write access to the persisted runtime settings
// and owns the scheduler-restart propagation protocol: scheduler-affecting
// writes trigger a debounced restart, and bulk blocks suppress restarts
// until the outermost block ends.
type Registry struct {
	store *store.Store

	mu            sync.Mutex
	bulkDepth     int
	debounceTimer *time.Timer
	restartFn     func()

	debounceDelay time.Duration
}

func NewRegistry(st *store.Store) *Registry {
	return &Registry{
		store:         st,
		debounceDelay: constants.RestartDebounce,
	}
}

// OnRestart registers the hook invoked when scheduler-affecting settings
// change. Must be called before the first Set that would trigger it.
func (r *Registry) OnRestart(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restartFn = fn
}

// Get returns the stored value for key, or "" when the key is absent.
func (r *Registry) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.store.DB().GetContext(ctx, &value,
		"SELECT value FROM config_entries WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// Set upserts key=value. Writes to scheduler-affecting keys schedule a
// debounced restart unless a bulk block is open.
func (r *Registry) Set(ctx context.Context, key, value string) error {
	err := r.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		return SetTx(tx, key, value)
	})
	if err != nil {
		return err
	}
	log.WithField("key", key).Info("persisted setting")

	if schedulerKeys[key] {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.bulkDepth > 0 {
			return nil
		}
		log.WithField("key", key).Info("scheduler setting changed, debouncing restart")
		r.scheduleRestartLocked()
	}
	return nil
}

// SetTx upserts key=value inside an existing write transaction. Restart
// propagation is the caller's concern.
func SetTx(tx *sqlx.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT INTO config_entries (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// BeginBulk opens a bulk block. Blocks nest; restarts are suppressed
// until every block has ended.
func (r *Registry) BeginBulk() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulkDepth++
}

// EndBulk closes a bulk block. When restart is true and this was the
// outermost block, the scheduler restarts once, immediately.
func (r *Registry) EndBulk(restart bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bulkDepth > 0 {
		r.bulkDepth--
	}
	if restart && r.bulkDepth == 0 && r.restartFn != nil {
		go r.restartFn()
	}
}

// scheduleRestartLocked coalesces restart requests: a new request
// cancels the pending one and rearms the timer.
func (r *Registry) scheduleRestartLocked() {
	if r.restartFn == nil {
		return
	}
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	fn := r.restartFn
	r.debounceTimer = time.AfterFunc(r.debounceDelay, fn)
}

// GetInt returns the integer value of key, or def when the key is
// absent or unparsable.
func (r *Registry) GetInt(ctx context.Context, key string, def int) int {
	raw, err := r.Get(ctx, key)
	if err != nil || raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// GetString returns the value of key, or def when absent.
func (r *Registry) GetString(ctx context.Context, key, def string) string {
	raw, err := r.Get(ctx, key)
	if err != nil || raw == "" {
		return def
	}
	return raw
}
