package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/krezhik/marketauth/internal/models"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrTokenNotFound       = errors.New("refresh token not found")
	ErrTokenAlreadyRotated = errors.New("refresh token already rotated")
)

// DBTX is satisfied by *sql.DB and *sql.Tx so repositories can run inside or
// outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// RevokedToken is what bulk revocation hands back per affected row: enough
// to mirror the revocation into the fast cache with the right TTL.
type RevokedToken struct {
	Hash      string
	ExpiresAt time.Time
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListActiveSessions(ctx context.Context, userID string) ([]models.Session, error)
	CountActiveSessions(ctx context.Context, userID string) (int, error)
	OldestActiveSession(ctx context.Context, userID string) (*models.Session, error)
	// DeactivateSession flips is_active off and reports whether a row
	// actually changed; deactivating an already-terminal session is a no-op.
	DeactivateSession(ctx context.Context, id string) (bool, error)
	// DeactivateUserSessions deactivates every active session of the user
	// except excludeID (pass "" for none) and returns the affected ids.
	DeactivateUserSessions(ctx context.Context, userID, excludeID string) ([]string, error)
	UpdateSessionActivity(ctx context.Context, id string, at time.Time) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
	DeleteInactiveSessions(ctx context.Context, lastActivityBefore time.Time) (int64, error)
}

type RefreshTokenRepository interface {
	CreateRefreshToken(ctx context.Context, token models.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	DeactivateRefreshToken(ctx context.Context, hash string) (bool, error)
	TouchRefreshToken(ctx context.Context, hash string, usedAt time.Time) error
	DeleteRefreshToken(ctx context.Context, hash string) error
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
	DeleteInactiveTokens(ctx context.Context, lastUsedBefore time.Time) (int64, error)
}

type BlacklistRepository interface {
	InsertBlacklistEntry(ctx context.Context, entry models.BlacklistEntry) error
	BlacklistContains(ctx context.Context, hash string) (bool, error)
	DeleteExpiredBlacklistEntries(ctx context.Context, before time.Time) (int64, error)
	// BlacklistSessionTokens and BlacklistUserTokens insert blacklist rows
	// for every currently active refresh token in scope and deactivate the
	// token rows, in one unit of work.
	BlacklistSessionTokens(ctx context.Context, sessionID string, reason models.RevocationReason) ([]RevokedToken, error)
	BlacklistUserTokens(ctx context.Context, userID string, reason models.RevocationReason) ([]RevokedToken, error)
}

// Storage is the durable source of truth for the whole subsystem.
type Storage interface {
	SessionRepository
	RefreshTokenRepository
	BlacklistRepository

	// RotateRefreshToken performs rotation atomically: it deactivates the
	// old token only if it is still active, blacklists it, and inserts the
	// replacement. Returns ErrTokenAlreadyRotated when a concurrent refresh
	// consumed the token first.
	RotateRefreshToken(ctx context.Context, oldHash string, entry models.BlacklistEntry, next models.RefreshToken) error
}
