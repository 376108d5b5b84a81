package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage"
)

type BlacklistRepository struct {
	db storage.DBTX
}

func NewBlacklistRepository(db storage.DBTX) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

func (r *BlacklistRepository) InsertBlacklistEntry(ctx context.Context, entry models.BlacklistEntry) error {
	query := `INSERT INTO token_blacklist (token_hash, token_type, reason, user_id, session_id, device_info, blacklisted_at, token_expiry)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		ON CONFLICT (token_hash) DO NOTHING`
	_, err := r.db.ExecContext(
		ctx,
		query,
		entry.TokenHash,
		entry.TokenType,
		entry.Reason,
		entry.UserID,
		entry.SessionID,
		entry.DeviceInfo,
		entry.BlacklistedAt,
		entry.TokenExpiry,
	)
	if err != nil {
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

func (r *BlacklistRepository) BlacklistContains(ctx context.Context, hash string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE token_hash = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, hash).Scan(&exists); err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return exists, nil
}

func (r *BlacklistRepository) DeleteExpiredBlacklistEntries(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM token_blacklist WHERE token_expiry < $1`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist entries: %w", err)
	}
	return res.RowsAffected()
}

// BlacklistSessionTokens copies every active refresh token of the session
// into the blacklist and deactivates the rows in one statement pair, so a
// crash between the two cannot leave a revoked token usable.
func (r *BlacklistRepository) BlacklistSessionTokens(ctx context.Context, sessionID string, reason models.RevocationReason) ([]storage.RevokedToken, error) {
	return r.blacklistTokens(ctx, `session_id`, sessionID, reason)
}

func (r *BlacklistRepository) BlacklistUserTokens(ctx context.Context, userID string, reason models.RevocationReason) ([]storage.RevokedToken, error) {
	return r.blacklistTokens(ctx, `user_id`, userID, reason)
}

func (r *BlacklistRepository) blacklistTokens(ctx context.Context, column, value string, reason models.RevocationReason) ([]storage.RevokedToken, error) {
	insert := `INSERT INTO token_blacklist (token_hash, token_type, reason, user_id, session_id, device_info, blacklisted_at, token_expiry)
		SELECT token_hash, 'refresh', $2, user_id, session_id, device_info, now(), expires_at
		FROM refresh_tokens WHERE ` + column + ` = $1 AND is_active = true
		ON CONFLICT (token_hash) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, value, reason); err != nil {
		return nil, fmt.Errorf("blacklist tokens by %s: %w", column, err)
	}

	deactivate := `UPDATE refresh_tokens SET is_active = false WHERE ` + column + ` = $1 AND is_active = true RETURNING token_hash, expires_at`
	rows, err := r.db.QueryContext(ctx, deactivate, value)
	if err != nil {
		return nil, fmt.Errorf("deactivate tokens by %s: %w", column, err)
	}
	defer rows.Close()

	var revoked []storage.RevokedToken
	for rows.Next() {
		var rt storage.RevokedToken
		if err := rows.Scan(&rt.Hash, &rt.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan revoked token: %w", err)
		}
		revoked = append(revoked, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deactivate tokens by %s: %w", column, err)
	}
	return revoked, nil
}
