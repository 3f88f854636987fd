package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/auth"
	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/credential"
	"gemini-synapse/internal/settings"
	"gemini-synapse/internal/store"
	"gemini-synapse/internal/upstream"
	"gemini-synapse/internal/utils"
)

// Scheduler owns the periodic maintenance jobs: revalidating invalid
// credentials, pruning aged log rows and sweeping expired admin
// sessions. Restart rebuilds the cron instance so timezone and interval
// changes take effect.
type Scheduler struct {
	store     *store.Store
	settings  *settings.Registry
	pool      *credential.Pool
	validator *upstream.Validator
	gate      *auth.Gate

	mu   sync.Mutex
	cron *cron.Cron

	// batchPause separates validation batches; shortened in tests.
	batchPause time.Duration
}

func New(st *store.Store, reg *settings.Registry, pool *credential.Pool, validator *upstream.Validator, gate *auth.Gate) *Scheduler {
	return &Scheduler{
		store:      st,
		settings:   reg,
		pool:       pool,
		validator:  validator,
		gate:       gate,
		batchPause: constants.ValidationBatchPause,
	}
}

// Start builds the cron instance from current settings and begins
// running jobs. Safe to call after Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		log.Info("scheduler already running")
		return nil
	}

	tz := s.settings.SchedulerTimezone(ctx)
	loc, err := utils.ParseLocation(tz)
	if err != nil {
		log.WithError(err).WithField("timezone", tz).Warn("invalid scheduler timezone, falling back to UTC")
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	intervalHours := s.settings.ValidationIntervalHours(ctx)
	entries := []struct {
		spec string
		name string
		job  func(context.Context)
	}{
		{fmt.Sprintf("@every %dh", intervalHours), "credential_revalidation", s.RevalidateInvalidCredentials},
		{"0 3 * * *", "prune_error_entries", s.PruneErrorEntries},
		{"5 3 * * *", "prune_call_records", s.PruneCallRecords},
		{"10 3 * * *", "prune_expired_sessions", s.PruneExpiredSessions},
	}
	for _, e := range entries {
		e := e
		if _, err := c.AddFunc(e.spec, func() {
			log.WithField("job", e.name).Info("starting scheduled job")
			e.job(context.Background())
		}); err != nil {
			return fmt.Errorf("register job %s: %w", e.name, err)
		}
	}

	c.Start()
	s.cron = c
	log.WithFields(log.Fields{
		"timezone":       loc.String(),
		"interval_hours": intervalHours,
	}).Info("scheduler started")
	return nil
}

// Stop halts the cron instance, waiting for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		log.Info("scheduler stopped")
	}
}

// Restart tears the scheduler down and rebuilds it so changed settings
// are re-read. Wired as the settings registry's restart hook.
func (s *Scheduler) Restart() {
	log.Info("restarting scheduler to apply new settings")
	s.Stop()
	if err := s.Start(context.Background()); err != nil {
		log.WithError(err).Error("scheduler restart failed")
	}
}
