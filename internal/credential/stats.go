package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gemini-synapse/internal/store"
)

// Stats summarizes pool health and call volume for the admin surface.
type Stats struct {
	TotalKeys   int `json:"total_keys"`
	ValidKeys   int `json:"valid_keys"`
	InvalidKeys int `json:"invalid_keys"`

	LastMinute  int `json:"last_minute"`
	LastHour    int `json:"last_hour"`
	Last24Hours int `json:"last_24_hours"`
	ThisMonth   int `json:"this_month"`
}

// Stats computes key counts and recent call volume. Short windows count
// call records directly; the month total comes from the aggregate
// counter so it survives record pruning.
func (p *Pool) Stats(ctx context.Context) (*Stats, error) {
	db := p.store.DB()
	out := &Stats{}

	var keyRow struct {
		Total int           `db:"total"`
		Valid sql.NullInt64 `db:"valid"`
	}
	err := db.GetContext(ctx, &keyRow, `
		SELECT COUNT(*) AS total,
		       SUM(CASE WHEN valid = 1 THEN 1 ELSE 0 END) AS valid
		FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("key stats: %w", err)
	}
	out.TotalKeys = keyRow.Total
	out.ValidKeys = int(keyRow.Valid.Int64)
	out.InvalidKeys = out.TotalKeys - out.ValidKeys

	now := time.Now()
	var callRow struct {
		Minute int `db:"minute"`
		Hour   int `db:"hour"`
		Day    int `db:"day"`
	}
	err = db.GetContext(ctx, &callRow, `
		SELECT
			(SELECT COUNT(*) FROM call_records WHERE created_at > ?) AS minute,
			(SELECT COUNT(*) FROM call_records WHERE created_at > ?) AS hour,
			(SELECT COUNT(*) FROM call_records WHERE created_at > ?) AS day`,
		store.FormatTime(now.Add(-time.Minute)),
		store.FormatTime(now.Add(-time.Hour)),
		store.FormatTime(now.Add(-24*time.Hour)))
	if err != nil {
		return nil, fmt.Errorf("call stats: %w", err)
	}
	out.LastMinute = callRow.Minute
	out.LastHour = callRow.Hour
	out.Last24Hours = callRow.Day

	var monthly int
	err = db.GetContext(ctx, &monthly,
		"SELECT call_count FROM monthly_counters WHERE year_month = ?", counterMonth(now))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("monthly stats: %w", err)
	}
	out.ThisMonth = monthly

	return out, nil
}

// ModelCallDetail is one model's 24h call count for a single credential.
type ModelCallDetail struct {
	ModelName     string `json:"model_name" db:"model_name"`
	TotalCalls24h int    `json:"total_calls_24h" db:"total_calls"`
}

// CallDetails groups the last 24 hours of one credential's calls by
// model.
func (p *Pool) CallDetails(ctx context.Context, credentialID int64) ([]ModelCallDetail, error) {
	var rows []ModelCallDetail
	err := p.store.DB().SelectContext(ctx, &rows, `
		SELECT model_name, COUNT(*) AS total_calls
		FROM call_records
		WHERE credential_id = ? AND created_at > ? AND model_name IS NOT NULL
		GROUP BY model_name
		ORDER BY COUNT(*) DESC`,
		credentialID, store.FormatTime(time.Now().Add(-24*time.Hour)))
	if err != nil {
		return nil, fmt.Errorf("call details: %w", err)
	}
	return rows, nil
}
