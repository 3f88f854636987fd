package credential

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrorLogEntry is one row of the paginated error log view. Secrets are
// masked before they leave the package.
type ErrorLogEntry struct {
	ID                 int64  `json:"id"`
	KeyPartial         string `json:"key_partial"`
	ModelName          string `json:"model_name"`
	IdentificationCode int    `json:"identification_code"`
	ErrorMessage       string `json:"error_message"`
	Timestamp          string `json:"timestamp"`
}

// RequestLogEntry is one row of the paginated call history view.
type RequestLogEntry struct {
	ID                 int64  `json:"id"`
	KeyPartial         string `json:"key_partial"`
	ModelName          string `json:"model_name"`
	IdentificationCode int    `json:"identification_code"`
	Timestamp          string `json:"timestamp"`
}

// Page carries pagination metadata alongside the rows.
type Page[T any] struct {
	Logs        []T `json:"logs"`
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
}

func clampPage(page, size int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 50
	}
	return page, size, (page - 1) * size
}

// ErrorLogs returns one page of error entries, newest first.
func (p *Pool) ErrorLogs(ctx context.Context, page, size int) (*Page[ErrorLogEntry], error) {
	page, size, offset := clampPage(page, size)
	db := p.store.DB()

	var total int
	if err := db.GetContext(ctx, &total, "SELECT COUNT(*) FROM error_entries"); err != nil {
		return nil, fmt.Errorf("count error entries: %w", err)
	}

	var rows []struct {
		ID                 int64          `db:"id"`
		Secret             string         `db:"secret"`
		ModelName          sql.NullString `db:"model_name"`
		IdentificationCode sql.NullInt64  `db:"identification_code"`
		ErrorMessage       sql.NullString `db:"error_message"`
		CreatedAt          string         `db:"created_at"`
	}
	err := db.SelectContext(ctx, &rows, `
		SELECT e.id, c.secret, e.model_name, e.identification_code, e.error_message, e.created_at
		FROM error_entries e
		JOIN credentials c ON e.credential_id = c.id
		ORDER BY e.created_at DESC
		LIMIT ? OFFSET ?`, size, offset)
	if err != nil {
		return nil, fmt.Errorf("select error entries: %w", err)
	}

	out := &Page[ErrorLogEntry]{
		Logs:        make([]ErrorLogEntry, 0, len(rows)),
		TotalPages:  (total + size - 1) / size,
		CurrentPage: page,
	}
	for _, r := range rows {
		out.Logs = append(out.Logs, ErrorLogEntry{
			ID:                 r.ID,
			KeyPartial:         Mask(r.Secret),
			ModelName:          r.ModelName.String,
			IdentificationCode: int(r.IdentificationCode.Int64),
			ErrorMessage:       r.ErrorMessage.String,
			Timestamp:          r.CreatedAt,
		})
	}
	return out, nil
}

// RequestLogs returns one page of call records, newest first.
func (p *Pool) RequestLogs(ctx context.Context, page, size int) (*Page[RequestLogEntry], error) {
	page, size, offset := clampPage(page, size)
	db := p.store.DB()

	var total int
	if err := db.GetContext(ctx, &total, "SELECT COUNT(*) FROM call_records"); err != nil {
		return nil, fmt.Errorf("count call records: %w", err)
	}

	var rows []struct {
		ID                 int64          `db:"id"`
		Secret             string         `db:"secret"`
		ModelName          sql.NullString `db:"model_name"`
		IdentificationCode sql.NullInt64  `db:"identification_code"`
		CreatedAt          string         `db:"created_at"`
	}
	err := db.SelectContext(ctx, &rows, `
		SELECT r.id, c.secret, r.model_name, r.identification_code, r.created_at
		FROM call_records r
		JOIN credentials c ON r.credential_id = c.id
		ORDER BY r.created_at DESC
		LIMIT ? OFFSET ?`, size, offset)
	if err != nil {
		return nil, fmt.Errorf("select call records: %w", err)
	}

	out := &Page[RequestLogEntry]{
		Logs:        make([]RequestLogEntry, 0, len(rows)),
		TotalPages:  (total + size - 1) / size,
		CurrentPage: page,
	}
	for _, r := range rows {
		out.Logs = append(out.Logs, RequestLogEntry{
			ID:                 r.ID,
			KeyPartial:         Mask(r.Secret),
			ModelName:          r.ModelName.String,
			IdentificationCode: int(r.IdentificationCode.Int64),
			Timestamp:          r.CreatedAt,
		})
	}
	return out, nil
}

// ClearErrorLogs removes every error entry.
func (p *Pool) ClearErrorLogs(ctx context.Context) error {
	return p.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("DELETE FROM error_entries")
		return err
	})
}
