package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/credential"
)

// prunableTables whitelists the tables retention jobs may touch. Table
// names cannot be bound as SQL parameters, so the name is checked here
// and only the cutoff is parameter-bound.
var prunableTables = map[string]bool{
	"error_entries": true,
	"call_records":  true,
}

// RevalidateInvalidCredentials probes every invalid credential against
// the validation model in paced batches. Credentials that pass are
// reactivated and rejoin rotation.
func (s *Scheduler) RevalidateInvalidCredentials(ctx context.Context) {
	secrets, err := s.pool.InvalidSecrets(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list invalid credentials")
		return
	}
	if len(secrets) == 0 {
		return
	}

	model := s.settings.ValidationModel(ctx)
	log.WithFields(log.Fields{
		"count": len(secrets),
		"model": model,
	}).Info("revalidating invalid credentials")

	for start := 0; start < len(secrets); start += constants.ValidationBatchSize {
		end := start + constants.ValidationBatchSize
		if end > len(secrets) {
			end = len(secrets)
		}
		batch := secrets[start:end]

		var wg sync.WaitGroup
		for _, secret := range batch {
			secret := secret
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.revalidateOne(ctx, secret, model)
			}()
		}
		wg.Wait()

		if end < len(secrets) {
			time.Sleep(s.batchPause)
		}
	}
	log.WithField("count", len(secrets)).Info("finished revalidating credentials")
}

func (s *Scheduler) revalidateOne(ctx context.Context, secret, model string) {
	ok, status, message := s.validator.Probe(ctx, secret, model)
	if ok {
		if err := s.pool.RecordSuccess(ctx, secret, model); err != nil {
			log.WithError(err).Error("failed to record revalidation success")
			return
		}
		if err := s.pool.Reactivate(ctx, secret); err != nil {
			log.WithError(err).Error("failed to reactivate credential")
		}
		return
	}
	if err := s.pool.RecordFailure(ctx, secret, model, status, message); err != nil {
		log.WithError(err).WithField("secret", credential.Mask(secret)).Error("failed to record revalidation failure")
	}
}

// PruneErrorEntries deletes error entries older than the configured
// retention.
func (s *Scheduler) PruneErrorEntries(ctx context.Context) {
	days := s.settings.ErrorLogRetentionDays(ctx)
	s.pruneTable(ctx, "error_entries", days)
}

// PruneCallRecords deletes call records older than the configured
// retention.
func (s *Scheduler) PruneCallRecords(ctx context.Context) {
	days := s.settings.RequestLogRetentionDays(ctx)
	s.pruneTable(ctx, "call_records", days)
}

func (s *Scheduler) pruneTable(ctx context.Context, table string, retentionDays int) {
	if !prunableTables[table] {
		log.WithField("table", table).Error("refusing to prune non-whitelisted table")
		return
	}
	if retentionDays <= 0 {
		log.WithField("table", table).Warn("retention not configured, skipping prune")
		return
	}

	var deleted int64
	err := s.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE created_at < datetime('now', ?)", table),
			fmt.Sprintf("-%d days", retentionDays))
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("table", table).Error("prune failed")
		return
	}
	log.WithFields(log.Fields{
		"table":   table,
		"deleted": deleted,
	}).Info("pruned aged rows")
}

// PruneExpiredSessions sweeps admin sessions past their expiry.
func (s *Scheduler) PruneExpiredSessions(ctx context.Context) {
	deleted, err := s.gate.DeleteExpiredSessions(ctx)
	if err != nil {
		log.WithError(err).Error("failed to prune expired sessions")
		return
	}
	if deleted > 0 {
		log.WithField("deleted", deleted).Info("pruned expired admin sessions")
	}
}
