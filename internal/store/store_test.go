package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenAppliesMigrations(t *testing.T) {
	st := openTestStore(t)

	for _, table := range []string{
		"credentials", "call_records", "error_entries",
		"config_entries", "monthly_counters", "admin_sessions",
	} {
		var count int
		err := st.DB().Get(&count,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "expected table %s to exist", table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestWithWriteTxCommits(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	err := st.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("INSERT INTO credentials (secret) VALUES (?)", "sk-commit-me")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, st.DB().Get(&count, "SELECT COUNT(*) FROM credentials"))
	assert.Equal(t, 1, count)
}

func TestWithWriteTxRollsBackOnError(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("INSERT INTO credentials (secret) VALUES (?)", "sk-rollback-me"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, st.DB().Get(&count, "SELECT COUNT(*) FROM credentials"))
	assert.Equal(t, 0, count)
}

func TestDeleteCredentialCascades(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	var id int64
	err := st.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec("INSERT INTO credentials (secret) VALUES (?)", "sk-cascade")
		if err != nil {
			return err
		}
		id, _ = res.LastInsertId()
		if _, err := tx.Exec(
			"INSERT INTO call_records (credential_id, model_name, identification_code) VALUES (?, ?, ?)",
			id, "gemini-2.5-pro", 200); err != nil {
			return err
		}
		_, err = tx.Exec(
			"INSERT INTO error_entries (credential_id, model_name, identification_code, error_message) VALUES (?, ?, ?, ?)",
			id, "gemini-2.5-pro", 429, "quota exceeded")
		return err
	})
	require.NoError(t, err)

	err = st.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("DELETE FROM credentials WHERE id = ?", id)
		return err
	})
	require.NoError(t, err)

	var calls, errs int
	require.NoError(t, st.DB().Get(&calls, "SELECT COUNT(*) FROM call_records"))
	require.NoError(t, st.DB().Get(&errs, "SELECT COUNT(*) FROM error_entries"))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, errs)
}

func TestSecretUniqueness(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insert := func() error {
		return st.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.Exec("INSERT INTO credentials (secret) VALUES (?)", "sk-duplicate")
			return err
		})
	}
	require.NoError(t, insert())
	assert.Error(t, insert())
}
