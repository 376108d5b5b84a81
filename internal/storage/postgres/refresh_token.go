package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage"
)

type RefreshTokenRepository struct {
	db storage.DBTX
}

func NewRefreshTokenRepository(db storage.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const refreshTokenColumns = `id, user_id, token_hash, session_id, device_info, ip_address, is_active, last_used_at, expires_at, created_at`

func (r *RefreshTokenRepository) CreateRefreshToken(ctx context.Context, token models.RefreshToken) error {
	query := `INSERT INTO refresh_tokens (` + refreshTokenColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.SessionID,
		token.DeviceInfo,
		token.IPAddress,
		token.IsActive,
		token.LastUsedAt,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	var token models.RefreshToken
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.SessionID,
		&token.DeviceInfo,
		&token.IPAddress,
		&token.IsActive,
		&token.LastUsedAt,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &token, nil
}

func (r *RefreshTokenRepository) DeactivateRefreshToken(ctx context.Context, hash string) (bool, error) {
	query := `UPDATE refresh_tokens SET is_active = false WHERE token_hash = $1 AND is_active = true`
	res, err := r.db.ExecContext(ctx, query, hash)
	if err != nil {
		return false, fmt.Errorf("deactivate refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate refresh token rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *RefreshTokenRepository) TouchRefreshToken(ctx context.Context, hash string, usedAt time.Time) error {
	query := `UPDATE refresh_tokens SET last_used_at = $2 WHERE token_hash = $1`
	if _, err := r.db.ExecContext(ctx, query, hash, usedAt); err != nil {
		return fmt.Errorf("touch refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteRefreshToken(ctx context.Context, hash string) error {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1`
	if _, err := r.db.ExecContext(ctx, query, hash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return res.RowsAffected()
}

func (r *RefreshTokenRepository) DeleteInactiveTokens(ctx context.Context, lastUsedBefore time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE is_active = false OR last_used_at < $1`
	res, err := r.db.ExecContext(ctx, query, lastUsedBefore)
	if err != nil {
		return 0, fmt.Errorf("delete inactive tokens: %w", err)
	}
	return res.RowsAffected()
}
