package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// The monthly counter is keyed by calendar month in this zone.
var (
	counterZoneOnce sync.Once
	counterZone     *time.Location
)

func counterMonth(now time.Time) string {
	counterZoneOnce.Do(func() {
		loc, err := time.LoadLocation("Asia/Shanghai")
		if err != nil {
			loc = time.UTC
		}
		counterZone = loc
	})
	return now.In(counterZone).Format("2006-01")
}

func bumpMonthlyCounter(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
		INSERT INTO monthly_counters (year_month, call_count) VALUES (?, 1)
		ON CONFLICT(year_month) DO UPDATE SET call_count = call_count + 1`,
		counterMonth(time.Now()))
	if err != nil {
		return fmt.Errorf("bump monthly counter: %w", err)
	}
	return nil
}

func credentialIDBySecret(tx *sqlx.Tx, secret string) (int64, bool, error) {
	var id int64
	err := tx.Get(&id, "SELECT id FROM credentials WHERE secret = ?", secret)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup credential: %w", err)
	}
	return id, true, nil
}

// RecordSuccess resets the credential's failure count, appends a call
// record under modelName (when present) and bumps the monthly counter,
// all in one transaction. It deliberately does not flip validity; see
// Reactivate.
func (p *Pool) RecordSuccess(ctx context.Context, secret, modelName string) error {
	return p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(
			"UPDATE credentials SET failure_count = 0 WHERE secret = ? AND failure_count > 0",
			secret); err != nil {
			return fmt.Errorf("reset failure count: %w", err)
		}

		if modelName != "" {
			id, found, err := credentialIDBySecret(tx, secret)
			if err != nil {
				return err
			}
			if found {
				if _, err := tx.Exec(
					"INSERT INTO call_records (credential_id, model_name, identification_code) VALUES (?, ?, ?)",
					id, modelName, 200); err != nil {
					return fmt.Errorf("insert call record: %w", err)
				}
			}
		}

		return bumpMonthlyCounter(tx)
	})
}

// RecordFailure increments the credential's failure count, invalidating
// it once the configured threshold is reached, and writes the error
// entry, call record and monthly counter in the same transaction.
func (p *Pool) RecordFailure(ctx context.Context, secret, modelName string, statusCode int, errorMessage string) error {
	threshold := p.settings.MaxFailureCount(ctx)
	if modelName == "" {
		modelName = p.settings.ValidationModel(ctx)
	}

	return p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		var row struct {
			ID           int64 `db:"id"`
			FailureCount int   `db:"failure_count"`
		}
		err := tx.Get(&row, "SELECT id, failure_count FROM credentials WHERE secret = ?", secret)
		if errors.Is(err, sql.ErrNoRows) {
			log.WithField("secret", Mask(secret)).Warn("recording failure for unknown credential")
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup credential: %w", err)
		}

		failures := row.FailureCount + 1
		if failures >= threshold {
			if _, err := tx.Exec(
				"UPDATE credentials SET valid = 0, failure_count = ? WHERE id = ?",
				failures, row.ID); err != nil {
				return fmt.Errorf("invalidate credential: %w", err)
			}
			log.WithFields(log.Fields{
				"secret":   Mask(secret),
				"failures": failures,
			}).Warn("credential invalidated after repeated failures")
		} else {
			if _, err := tx.Exec(
				"UPDATE credentials SET failure_count = ? WHERE id = ?",
				failures, row.ID); err != nil {
				return fmt.Errorf("update failure count: %w", err)
			}
			log.WithFields(log.Fields{
				"secret":    Mask(secret),
				"failures":  failures,
				"threshold": threshold,
			}).Info("recorded credential failure")
		}

		if statusCode != 0 && errorMessage != "" {
			if _, err := tx.Exec(
				"INSERT INTO error_entries (credential_id, model_name, identification_code, error_message) VALUES (?, ?, ?, ?)",
				row.ID, modelName, statusCode, errorMessage); err != nil {
				return fmt.Errorf("insert error entry: %w", err)
			}
		}

		if modelName != "" {
			if _, err := tx.Exec(
				"INSERT INTO call_records (credential_id, model_name, identification_code) VALUES (?, ?, ?)",
				row.ID, modelName, statusCode); err != nil {
				return fmt.Errorf("insert call record: %w", err)
			}
		}

		return bumpMonthlyCounter(tx)
	})
}

// LogRequestFailure appends an error entry without touching the
// credential's failure count or validity. Used for failures the retry
// loop absorbed.
func (p *Pool) LogRequestFailure(ctx context.Context, secret, modelName string, statusCode int, errorMessage string) error {
	return p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		id, found, err := credentialIDBySecret(tx, secret)
		if err != nil {
			return err
		}
		if !found {
			log.WithField("secret", Mask(secret)).Warn("logging failure for unknown credential")
			return nil
		}
		if _, err := tx.Exec(
			"INSERT INTO error_entries (credential_id, model_name, identification_code, error_message) VALUES (?, ?, ?, ?)",
			id, nullable(modelName), statusCode, errorMessage); err != nil {
			return fmt.Errorf("insert error entry: %w", err)
		}
		return nil
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
