package credential

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini-synapse/internal/settings"
	"gemini-synapse/internal/store"
)

func newTestPool(t *testing.T) (*Pool, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := settings.NewRegistry(st)
	return NewPool(st, reg), st
}

func insertCredential(t *testing.T, st *store.Store, secret string, valid bool, lastUsed string) {
	t.Helper()
	err := st.WithWriteTx(context.Background(), func(tx *sqlx.Tx) error {
		if lastUsed == "" {
			_, err := tx.Exec("INSERT INTO credentials (secret, valid) VALUES (?, ?)", secret, valid)
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO credentials (secret, valid, last_used) VALUES (?, ?, ?)",
			secret, valid, lastUsed)
		return err
	})
	require.NoError(t, err)
}

func TestGetReturnsErrNoCredentialsOnEmptyStore(t *testing.T) {
	pool, _ := newTestPool(t)
	_, err := pool.Get(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestGetRefillsLeastRecentlyUsedFirst(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	// NULL last_used sorts first, then older timestamps.
	insertCredential(t, st, "sk-recent", true, "2026-01-03 00:00:00")
	insertCredential(t, st, "sk-old", true, "2026-01-01 00:00:00")
	insertCredential(t, st, "sk-never", true, "")

	first, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-never", first)

	second, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-old", second)

	third, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-recent", third)
}

func TestRefillSkipsInvalidCredentials(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-invalid", false, "")
	insertCredential(t, st, "sk-valid", true, "")

	secret, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-valid", secret)

	_, err = pool.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestRefillTouchesLastUsed(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-touch", true, "")
	_, err := pool.Get(ctx)
	require.NoError(t, err)

	var row store.Credential
	require.NoError(t, st.DB().Get(&row,
		"SELECT id, secret, valid, failure_count, last_used FROM credentials WHERE secret = ?", "sk-touch"))
	assert.True(t, row.LastUsed.Valid, "refill should stamp last_used")
}

func TestConcurrentGetsShareOneRefill(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	for _, secret := range []string{"sk-a", "sk-b", "sk-c", "sk-d"} {
		insertCredential(t, st, secret, true, "")
	}

	var wg sync.WaitGroup
	results := make([]string, 4)
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			secret, err := pool.Get(ctx)
			require.NoError(t, err)
			results[i] = secret
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, secret := range results {
		assert.False(t, seen[secret], "credential %s handed out twice", secret)
		seen[secret] = true
	}
}

func TestClearQueueForcesReload(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-one", true, "")
	insertCredential(t, st, "sk-two", true, "")

	_, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Positive(t, pool.QueueLen())

	pool.ClearQueue()
	assert.Zero(t, pool.QueueLen())
}

func TestAddUpsertReactivates(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, pool.Add(ctx, "sk-reborn"))
	_, err := st.DB().Exec(
		"UPDATE credentials SET valid = 0, failure_count = 4, last_used = CURRENT_TIMESTAMP WHERE secret = ?",
		"sk-reborn")
	require.NoError(t, err)

	require.NoError(t, pool.Add(ctx, "sk-reborn"))

	var row store.Credential
	require.NoError(t, st.DB().Get(&row,
		"SELECT id, secret, valid, failure_count, last_used FROM credentials WHERE secret = ?", "sk-reborn"))
	assert.True(t, row.Valid)
	assert.Zero(t, row.FailureCount)
	assert.False(t, row.LastUsed.Valid)

	var count int
	require.NoError(t, st.DB().Get(&count, "SELECT COUNT(*) FROM credentials"))
	assert.Equal(t, 1, count)
}

func TestRecordFailureInvalidatesAtThreshold(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-failing", true, "")

	for i := 0; i < 4; i++ {
		require.NoError(t, pool.RecordFailure(ctx, "sk-failing", "gemini-2.5-pro", 500, "server error"))
	}
	var row store.Credential
	require.NoError(t, st.DB().Get(&row,
		"SELECT id, secret, valid, failure_count, last_used FROM credentials WHERE secret = ?", "sk-failing"))
	assert.True(t, row.Valid)
	assert.Equal(t, 4, row.FailureCount)

	require.NoError(t, pool.RecordFailure(ctx, "sk-failing", "gemini-2.5-pro", 500, "server error"))
	require.NoError(t, st.DB().Get(&row,
		"SELECT id, secret, valid, failure_count, last_used FROM credentials WHERE secret = ?", "sk-failing"))
	assert.False(t, row.Valid)
	assert.Equal(t, 5, row.FailureCount)
}

func TestRecordFailureWritesErrorEntryAndCallRecord(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-logged", true, "")
	require.NoError(t, pool.RecordFailure(ctx, "sk-logged", "gemini-2.5-pro", 429, "quota exceeded"))

	var entry store.ErrorEntry
	require.NoError(t, st.DB().Get(&entry,
		"SELECT id, credential_id, model_name, identification_code, error_message, created_at FROM error_entries"))
	assert.Equal(t, "gemini-2.5-pro", entry.ModelName.String)
	assert.EqualValues(t, 429, entry.IdentificationCode.Int64)
	assert.Equal(t, "quota exceeded", entry.ErrorMessage.String)

	var record store.CallRecord
	require.NoError(t, st.DB().Get(&record,
		"SELECT id, credential_id, model_name, identification_code, created_at FROM call_records"))
	assert.EqualValues(t, 429, record.IdentificationCode.Int64)

	var monthly int
	require.NoError(t, st.DB().Get(&monthly, "SELECT SUM(call_count) FROM monthly_counters"))
	assert.Equal(t, 1, monthly)
}

func TestRecordFailureUnknownSecretIsNoop(t *testing.T) {
	pool, st := newTestPool(t)
	require.NoError(t, pool.RecordFailure(context.Background(), "sk-ghost", "gemini-2.5-pro", 500, "boom"))

	var count int
	require.NoError(t, st.DB().Get(&count, "SELECT COUNT(*) FROM error_entries"))
	assert.Zero(t, count)
}

func TestRecordSuccessResetsFailuresAndCounts(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-winning", true, "")
	_, err := st.DB().Exec("UPDATE credentials SET failure_count = 3 WHERE secret = ?", "sk-winning")
	require.NoError(t, err)

	require.NoError(t, pool.RecordSuccess(ctx, "sk-winning", "gemini-2.5-pro"))

	var row store.Credential
	require.NoError(t, st.DB().Get(&row,
		"SELECT id, secret, valid, failure_count, last_used FROM credentials WHERE secret = ?", "sk-winning"))
	assert.Zero(t, row.FailureCount)

	var record store.CallRecord
	require.NoError(t, st.DB().Get(&record,
		"SELECT id, credential_id, model_name, identification_code, created_at FROM call_records"))
	assert.EqualValues(t, 200, record.IdentificationCode.Int64)
	assert.Equal(t, "gemini-2.5-pro", record.ModelName.String)

	var monthly int
	require.NoError(t, st.DB().Get(&monthly, "SELECT SUM(call_count) FROM monthly_counters"))
	assert.Equal(t, 1, monthly)
}

func TestRecordSuccessWithoutModelSkipsCallRecord(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-quiet", true, "")
	require.NoError(t, pool.RecordSuccess(ctx, "sk-quiet", ""))

	var count int
	require.NoError(t, st.DB().Get(&count, "SELECT COUNT(*) FROM call_records"))
	assert.Zero(t, count)
}

func TestDeleteBySecretsClearsQueue(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-doomed", true, "")
	_, err := pool.Get(ctx)
	require.NoError(t, err)

	deleted, err := pool.DeleteBySecrets(ctx, []string{"sk-doomed"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.Zero(t, pool.QueueLen())
}

func TestToggleValidity(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-toggle", true, "")
	var id int64
	require.NoError(t, st.DB().Get(&id, "SELECT id FROM credentials WHERE secret = ?", "sk-toggle"))

	row, err := pool.ToggleValidity(ctx, id)
	require.NoError(t, err)
	assert.False(t, row.Valid)

	row, err = pool.ToggleValidity(ctx, id)
	require.NoError(t, err)
	assert.True(t, row.Valid)

	_, err = pool.ToggleValidity(ctx, 99999)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestStatsCountsKeysAndCalls(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-stat-1", true, "")
	insertCredential(t, st, "sk-stat-2", false, "")
	require.NoError(t, pool.RecordSuccess(ctx, "sk-stat-1", "gemini-2.5-pro"))

	stats, err := pool.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalKeys)
	assert.Equal(t, 1, stats.ValidKeys)
	assert.Equal(t, 1, stats.InvalidKeys)
	assert.Equal(t, 1, stats.Last24Hours)
	assert.Equal(t, 1, stats.ThisMonth)
}

func TestSeedFromEnvOnlyWhenEmpty(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	require.NoError(t, pool.SeedFromEnv(ctx, []string{"sk-env-1", "sk-env-2"}))
	var count int
	require.NoError(t, st.DB().Get(&count, "SELECT COUNT(*) FROM credentials"))
	assert.Equal(t, 2, count)

	// A populated table is left alone.
	require.NoError(t, pool.SeedFromEnv(ctx, []string{"sk-env-3"}))
	require.NoError(t, st.DB().Get(&count, "SELECT COUNT(*) FROM credentials"))
	assert.Equal(t, 2, count)
}

func TestInvalidSecrets(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-good", true, "")
	insertCredential(t, st, "sk-bad-1", false, "")
	insertCredential(t, st, "sk-bad-2", false, "")

	secrets, err := pool.InvalidSecrets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-bad-1", "sk-bad-2"}, secrets)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", Mask("short"))
	assert.Equal(t, "****", Mask("12345678"))
	assert.Equal(t, "AIza...wxyz", Mask("AIzaSomeLongSecretwxyz"))
}

func TestErrorLogsPagination(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-pages", true, "")
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.RecordFailure(ctx, "sk-pages", "gemini-2.5-pro", 500, "boom"))
	}

	page, err := pool.ErrorLogs(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Logs, 2)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, Mask("sk-pages"), page.Logs[0].KeyPartial)

	page, err = pool.ErrorLogs(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Logs, 1)

	// Out-of-range inputs clamp instead of erroring.
	page, err = pool.ErrorLogs(ctx, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Len(t, page.Logs, 3)
}

func TestClearErrorLogs(t *testing.T) {
	pool, st := newTestPool(t)
	ctx := context.Background()

	insertCredential(t, st, "sk-clear", true, "")
	require.NoError(t, pool.RecordFailure(ctx, "sk-clear", "gemini-2.5-pro", 500, "boom"))
	require.NoError(t, pool.ClearErrorLogs(ctx))

	var count int
	require.NoError(t, st.DB().Get(&count, "SELECT COUNT(*) FROM error_entries"))
	assert.Zero(t, count)
}
