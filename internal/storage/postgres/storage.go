package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage"
)

// Storage bundles the three repositories over one *sql.DB and adds the
// multi-row operations that must run inside a transaction.
type Storage struct {
	db *sql.DB
	*SessionRepository
	*RefreshTokenRepository
	*BlacklistRepository
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{
		db:                     db,
		SessionRepository:      NewSessionRepository(db),
		RefreshTokenRepository: NewRefreshTokenRepository(db),
		BlacklistRepository:    NewBlacklistRepository(db),
	}
}

// RotateRefreshToken consumes the old token, blacklists it and inserts its
// replacement in one transaction. The conditional deactivate is the
// anti-replay guard: when two refreshes race, only the first one flips the
// row and the loser gets ErrTokenAlreadyRotated.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash string, entry models.BlacklistEntry, next models.RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	tokenRepoTx := NewRefreshTokenRepository(tx)
	blacklistRepoTx := NewBlacklistRepository(tx)

	consumed, err := tokenRepoTx.DeactivateRefreshToken(ctx, oldHash)
	if err != nil {
		return fmt.Errorf("consume old token in tx: %w", err)
	}
	if !consumed {
		return storage.ErrTokenAlreadyRotated
	}

	if err := blacklistRepoTx.InsertBlacklistEntry(ctx, entry); err != nil {
		return fmt.Errorf("blacklist old token in tx: %w", err)
	}

	if err := tokenRepoTx.CreateRefreshToken(ctx, next); err != nil {
		return fmt.Errorf("create replacement token in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// BlacklistSessionTokens shadows the repository method to run the insert and
// deactivate pair inside one transaction.
func (s *Storage) BlacklistSessionTokens(ctx context.Context, sessionID string, reason models.RevocationReason) ([]storage.RevokedToken, error) {
	return s.blacklistTokensTx(ctx, func(repo *BlacklistRepository) ([]storage.RevokedToken, error) {
		return repo.BlacklistSessionTokens(ctx, sessionID, reason)
	})
}

func (s *Storage) BlacklistUserTokens(ctx context.Context, userID string, reason models.RevocationReason) ([]storage.RevokedToken, error) {
	return s.blacklistTokensTx(ctx, func(repo *BlacklistRepository) ([]storage.RevokedToken, error) {
		return repo.BlacklistUserTokens(ctx, userID, reason)
	})
}

func (s *Storage) blacklistTokensTx(ctx context.Context, op func(*BlacklistRepository) ([]storage.RevokedToken, error)) ([]storage.RevokedToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	revoked, err := op(NewBlacklistRepository(tx))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return revoked, nil
}
