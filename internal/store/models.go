package store

import "database/sql"

// Credential is one upstream API key row.
type Credential struct {
	ID           int64          `db:"id"`
	Secret       string         `db:"secret"`
	Valid        bool           `db:"valid"`
	FailureCount int            `db:"failure_count"`
	LastUsed     sql.NullString `db:"last_used"`
}

// CallRecord is one successful relay, kept for usage statistics.
type CallRecord struct {
	ID                 int64          `db:"id"`
	CredentialID       int64          `db:"credential_id"`
	ModelName          sql.NullString `db:"model_name"`
	IdentificationCode sql.NullInt64  `db:"identification_code"`
	CreatedAt          string         `db:"created_at"`
}

// ErrorEntry is one recorded upstream failure.
type ErrorEntry struct {
	ID                 int64          `db:"id"`
	CredentialID       int64          `db:"credential_id"`
	ModelName          sql.NullString `db:"model_name"`
	IdentificationCode sql.NullInt64  `db:"identification_code"`
	ErrorMessage       sql.NullString `db:"error_message"`
	CreatedAt          string         `db:"created_at"`
}

// AdminSession is a dashboard login session.
type AdminSession struct {
	Token     string `db:"token"`
	CreatedAt string `db:"created_at"`
	ExpiresAt string `db:"expires_at"`
}
