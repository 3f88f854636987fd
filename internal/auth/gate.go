package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/settings"
	"gemini-synapse/internal/store"
)

// SessionCookieName carries the admin session token.
const SessionCookieName = "admin_session_token"

var (
	ErrMissingAccessKey = errors.New("invalid or missing access key")
	ErrInvalidSession   = errors.New("invalid admin session token")
	ErrSessionExpired   = errors.New("admin session has expired")
	ErrNoAccessKeySet   = errors.New("access key is not configured")
	ErrInvalidAdminKey  = errors.New("invalid or missing admin key")
	ErrNoAdminKeySet    = errors.New("admin key is not configured")
)

// Gate authenticates clients (access keys) and administrators (session
// cookies backed by the store). Keys are read live from the store so
// updates take effect immediately.
type Gate struct {
	store    *store.Store
	settings *settings.Registry
}

func NewGate(st *store.Store, reg *settings.Registry) *Gate {
	return &Gate{store: st, settings: reg}
}

// ExtractAccessKey pulls the candidate access key from the request in
// priority order: bearer token, then the key query parameter, then the
// x-goog-api-key header.
func ExtractAccessKey(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if key, ok := c.GetQuery("key"); ok {
		return key
	}
	return c.GetHeader("x-goog-api-key")
}

// VerifyAccessKey checks the request's access key against the
// configured set using constant-time comparison.
func (g *Gate) VerifyAccessKey(c *gin.Context) error {
	keys, err := g.settings.AccessKeys(c.Request.Context())
	if err != nil {
		return fmt.Errorf("load access keys: %w", err)
	}
	if len(keys) == 0 {
		return ErrNoAccessKeySet
	}

	candidate := ExtractAccessKey(c)
	if candidate == "" {
		return ErrMissingAccessKey
	}
	for _, key := range keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return nil
		}
	}
	return ErrMissingAccessKey
}

// VerifyAdminKey compares the presented key with the stored admin key.
func (g *Gate) VerifyAdminKey(ctx context.Context, candidate string) error {
	adminKey, err := g.settings.AdminKey(ctx)
	if err != nil {
		return fmt.Errorf("load admin key: %w", err)
	}
	if adminKey == "" {
		return ErrNoAdminKeySet
	}
	if candidate == "" || subtle.ConstantTimeCompare([]byte(candidate), []byte(adminKey)) != 1 {
		return ErrInvalidAdminKey
	}
	return nil
}

// CreateSession mints a 256-bit session token and persists it with the
// standard lifetime.
func (g *Gate) CreateSession(ctx context.Context) (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(raw[:])
	expiresAt := store.FormatTime(time.Now().Add(constants.SessionLifetime))

	err := g.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO admin_sessions (token, expires_at) VALUES (?, ?)",
			token, expiresAt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	return token, nil
}

// DeleteSession removes one session token.
func (g *Gate) DeleteSession(ctx context.Context, token string) error {
	return g.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("DELETE FROM admin_sessions WHERE token = ?", token)
		return err
	})
}

// VerifySession validates a session token. Expired rows are deleted on
// sight.
func (g *Gate) VerifySession(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidSession
	}

	var expiresAt string
	err := g.store.DB().GetContext(ctx, &expiresAt,
		"SELECT expires_at FROM admin_sessions WHERE token = ?", token)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidSession
	}
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}

	if expiresAt < store.NowString() {
		if delErr := g.DeleteSession(ctx, token); delErr != nil {
			log.WithError(delErr).Warn("failed to delete expired session")
		}
		return ErrSessionExpired
	}
	return nil
}

// PurgeSessionsTx deletes every session inside an existing write
// transaction. Used when the admin key rotates.
func PurgeSessionsTx(tx *sqlx.Tx) error {
	_, err := tx.Exec("DELETE FROM admin_sessions")
	return err
}

// DeleteExpiredSessions removes sessions past their expiry and reports
// how many went away.
func (g *Gate) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	var deleted int64
	err := g.store.WithWriteTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.Exec("DELETE FROM admin_sessions WHERE expires_at < ?", store.NowString())
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
