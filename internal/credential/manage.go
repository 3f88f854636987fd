package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/store"
)

// ErrCredentialNotFound is returned by single-row lookups.
var ErrCredentialNotFound = errors.New("credential not found")

// Add upserts a credential. An existing row is reactivated: valid again,
// failure count cleared, last_used reset so it sorts first on refill.
func (p *Pool) Add(ctx context.Context, secret string) error {
	err := p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO credentials (secret) VALUES (?)
			ON CONFLICT(secret) DO UPDATE SET
				valid = 1,
				failure_count = 0,
				last_used = NULL`, secret)
		return err
	})
	if err != nil {
		return fmt.Errorf("add credential: %w", err)
	}
	log.WithField("secret", Mask(secret)).Info("upserted credential")
	return nil
}

// Reactivate marks a credential valid again with a clean failure count.
// The revalidation job calls this after a successful probe.
func (p *Pool) Reactivate(ctx context.Context, secret string) error {
	err := p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(
			"UPDATE credentials SET valid = 1, failure_count = 0 WHERE secret = ?", secret)
		return err
	})
	if err != nil {
		return fmt.Errorf("reactivate credential: %w", err)
	}
	log.WithField("secret", Mask(secret)).Info("credential reactivated")
	return nil
}

// List returns every credential ordered by id.
func (p *Pool) List(ctx context.Context) ([]store.Credential, error) {
	var rows []store.Credential
	err := p.store.DB().SelectContext(ctx, &rows,
		"SELECT id, secret, valid, failure_count, last_used FROM credentials ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return rows, nil
}

// GetByID returns one credential or ErrCredentialNotFound.
func (p *Pool) GetByID(ctx context.Context, id int64) (*store.Credential, error) {
	var row store.Credential
	err := p.store.DB().GetContext(ctx, &row,
		"SELECT id, secret, valid, failure_count, last_used FROM credentials WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &row, nil
}

// Secrets returns the full secrets for the given ids.
func (p *Pool) Secrets(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In("SELECT id, secret FROM credentials WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("build reveal query: %w", err)
	}
	var rows []struct {
		ID     int64  `db:"id"`
		Secret string `db:"secret"`
	}
	if err := p.store.DB().SelectContext(ctx, &rows, p.store.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("reveal credentials: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r.Secret
	}
	return out, nil
}

// SecretsByIDs returns id/secret pairs preserving store order.
func (p *Pool) SecretsByIDs(ctx context.Context, ids []int64) ([]store.Credential, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		"SELECT id, secret, valid, failure_count, last_used FROM credentials WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("build select query: %w", err)
	}
	var rows []store.Credential
	if err := p.store.DB().SelectContext(ctx, &rows, p.store.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select credentials: %w", err)
	}
	return rows, nil
}

// DeleteByIDs removes credentials (call and error history cascades) and
// reports how many rows went away.
func (p *Pool) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In("DELETE FROM credentials WHERE id IN (?)", ids)
		if err != nil {
			return err
		}
		res, err := tx.Exec(tx.Rebind(query), args...)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete credentials: %w", err)
	}
	p.ClearQueue()
	return deleted, nil
}

// DeleteBySecrets removes credentials by their secret values.
func (p *Pool) DeleteBySecrets(ctx context.Context, secrets []string) (int64, error) {
	if len(secrets) == 0 {
		return 0, nil
	}
	var deleted int64
	err := p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In("DELETE FROM credentials WHERE secret IN (?)", secrets)
		if err != nil {
			return err
		}
		res, err := tx.Exec(tx.Rebind(query), args...)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete credentials by value: %w", err)
	}
	p.ClearQueue()
	return deleted, nil
}

// Deactivate marks the given credentials invalid.
func (p *Pool) Deactivate(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In("UPDATE credentials SET valid = 0 WHERE id IN (?)", ids)
		if err != nil {
			return err
		}
		_, err = tx.Exec(tx.Rebind(query), args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("deactivate credentials: %w", err)
	}
	p.ClearQueue()
	return nil
}

// Reset marks the given credentials valid with a clean failure count.
func (p *Pool) Reset(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In(
			"UPDATE credentials SET valid = 1, failure_count = 0 WHERE id IN (?)", ids)
		if err != nil {
			return err
		}
		_, err = tx.Exec(tx.Rebind(query), args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("reset credentials: %w", err)
	}
	p.ClearQueue()
	return nil
}

// ToggleValidity flips one credential's validity and returns the updated
// row.
func (p *Pool) ToggleValidity(ctx context.Context, id int64) (*store.Credential, error) {
	err := p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		var valid bool
		err := tx.Get(&valid, "SELECT valid FROM credentials WHERE id = ?", id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCredentialNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec("UPDATE credentials SET valid = ? WHERE id = ?", !valid, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("toggle credential: %w", err)
	}
	p.ClearQueue()
	return p.GetByID(ctx, id)
}

// InvalidSecrets lists the secrets currently marked invalid, for the
// revalidation job.
func (p *Pool) InvalidSecrets(ctx context.Context) ([]string, error) {
	var secrets []string
	err := p.store.DB().SelectContext(ctx, &secrets,
		"SELECT secret FROM credentials WHERE valid = 0 ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("list invalid credentials: %w", err)
	}
	return secrets, nil
}
