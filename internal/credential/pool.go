package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/settings"
	"gemini-synapse/internal/store"
)

// ErrNoCredentials is returned by Get when the store holds no valid
// credentials to refill the rotation queue.
var ErrNoCredentials = errors.New("no valid credentials available")

// Pool hands out upstream credentials in least-recently-used order. An
// in-memory FIFO queue amortizes database access; when it runs dry the
// pool refills it from the store in a single transaction that also
// touches last_used, so concurrent processes never hand out the same
// freshest batch twice.
type Pool struct {
	store    *store.Store
	settings *settings.Registry

	queueMu sync.Mutex
	queue   []string

	// refillMu serializes refills so a burst of concurrent Gets causes
	// one database round trip, not many.
	refillMu sync.Mutex
}

func NewPool(st *store.Store, reg *settings.Registry) *Pool {
	return &Pool{store: st, settings: reg}
}

// Get pops the next credential secret. An empty queue triggers a refill;
// ErrNoCredentials is returned when the store cannot provide any.
func (p *Pool) Get(ctx context.Context) (string, error) {
	if secret, ok := p.pop(); ok {
		return secret, nil
	}

	p.refillMu.Lock()
	// Re-check: another caller may have refilled while we waited.
	if secret, ok := p.pop(); ok {
		p.refillMu.Unlock()
		return secret, nil
	}
	log.Info("credential queue empty, refilling from store")
	err := p.refill(ctx)
	p.refillMu.Unlock()
	if err != nil {
		return "", err
	}

	if secret, ok := p.pop(); ok {
		return secret, nil
	}
	log.Error("store contains no valid credentials to refill the queue")
	return "", ErrNoCredentials
}

func (p *Pool) pop() (string, bool) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if len(p.queue) == 0 {
		return "", false
	}
	secret := p.queue[0]
	p.queue = p.queue[1:]
	return secret, true
}

// refill loads up to PoolQueueMax valid credentials ordered by least
// recent use and stamps their last_used inside the same transaction.
func (p *Pool) refill(ctx context.Context) error {
	var secrets []string
	err := p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		type row struct {
			ID     int64  `db:"id"`
			Secret string `db:"secret"`
		}
		var rows []row
		if err := tx.Select(&rows, `
			SELECT id, secret FROM credentials
			WHERE valid = 1
			ORDER BY last_used ASC, id ASC
			LIMIT ?`, constants.PoolQueueMax); err != nil {
			return fmt.Errorf("select credentials: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]int64, len(rows))
		secrets = make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.ID
			secrets[i] = r.Secret
		}

		query, args, err := sqlx.In(
			"UPDATE credentials SET last_used = CURRENT_TIMESTAMP WHERE id IN (?)", ids)
		if err != nil {
			return fmt.Errorf("build touch query: %w", err)
		}
		if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("touch last_used: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(secrets) > 0 {
		p.queueMu.Lock()
		p.queue = append(p.queue, secrets...)
		p.queueMu.Unlock()
		log.WithField("count", len(secrets)).Info("refilled credential queue")
	}
	return nil
}

// ClearQueue drops the in-memory queue so the next Get reloads fresh
// state. Called after any mutation of the credential table.
func (p *Pool) ClearQueue() {
	p.queueMu.Lock()
	p.queue = nil
	p.queueMu.Unlock()
}

// Prewarm fills the queue ahead of the first request.
func (p *Pool) Prewarm(ctx context.Context) error {
	p.refillMu.Lock()
	defer p.refillMu.Unlock()
	return p.refill(ctx)
}

// QueueLen reports the current in-memory queue depth.
func (p *Pool) QueueLen() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}
