package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage"
	"github.com/krezhik/marketauth/internal/util"
)

// RevocationCache is the fast layer in front of the durable blacklist.
// Implementations may fail at any time; the service degrades to the durable
// store and never depends on the cache for correctness.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error
	MarkRevokedBatch(ctx context.Context, hashes map[string]time.Duration) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// RevocationMeta carries the audit fields recorded alongside a revocation.
type RevocationMeta struct {
	UserID      string
	SessionID   string
	DeviceInfo  models.DeviceInfo
	TokenExpiry time.Time
}

// BlacklistService answers "is this token usable?" and records revocations.
// The durable store is the source of truth; cache writes are best-effort and
// cache read errors count as misses.
type BlacklistService struct {
	storage      storage.Storage
	cache        RevocationCache
	serverSecret []byte
	log          *zap.SugaredLogger
}

func NewBlacklistService(cfg *util.SecretConfig, st storage.Storage, cache RevocationCache, log *zap.SugaredLogger) *BlacklistService {
	return &BlacklistService{
		storage:      st,
		cache:        cache,
		serverSecret: cfg.ServerSecret,
		log:          log,
	}
}

// HashToken derives the storage key for a token secret. Secrets themselves
// never reach the store or the cache.
func (s *BlacklistService) HashToken(tokenSecret string) string {
	mac := hmac.New(sha256.New, s.serverSecret)
	mac.Write([]byte(tokenSecret))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *BlacklistService) Revoke(ctx context.Context, tokenSecret string, tokenType models.TokenType, reason models.RevocationReason, meta RevocationMeta) error {
	return s.RevokeHash(ctx, s.HashToken(tokenSecret), tokenType, reason, meta)
}

// RevokeHash writes the durable row first; a failure there is a hard error
// because a revocation must never silently vanish. The cache mirror is an
// optimization and its failure is only logged.
func (s *BlacklistService) RevokeHash(ctx context.Context, hash string, tokenType models.TokenType, reason models.RevocationReason, meta RevocationMeta) error {
	entry := models.BlacklistEntry{
		TokenHash:     hash,
		TokenType:     tokenType,
		Reason:        reason,
		UserID:        meta.UserID,
		SessionID:     meta.SessionID,
		DeviceInfo:    meta.DeviceInfo,
		BlacklistedAt: time.Now(),
		TokenExpiry:   meta.TokenExpiry,
	}
	if err := s.storage.InsertBlacklistEntry(ctx, entry); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}

	s.CacheRevocation(ctx, hash, meta.TokenExpiry)
	return nil
}

// CacheRevocation mirrors an already-durable revocation into the fast cache.
// The TTL is the token's remaining natural lifetime.
func (s *BlacklistService) CacheRevocation(ctx context.Context, hash string, tokenExpiry time.Time) {
	if err := s.cache.MarkRevoked(ctx, hash, time.Until(tokenExpiry)); err != nil {
		s.log.Warnw("revocation cache write failed, durable row remains authoritative",
			"error", err, "token_hash", hash)
	}
}

// IsRevoked checks the cache first and falls through to the durable store on
// a miss or a cache failure, so a revoked token is never judged valid just
// because the cache is cold or down.
func (s *BlacklistService) IsRevoked(ctx context.Context, tokenSecret string) (bool, error) {
	return s.IsRevokedHash(ctx, s.HashToken(tokenSecret))
}

func (s *BlacklistService) IsRevokedHash(ctx context.Context, hash string) (bool, error) {
	revoked, err := s.cache.IsRevoked(ctx, hash)
	if err != nil {
		s.log.Warnw("revocation cache read failed, falling back to durable store", "error", err)
	} else if revoked {
		return true, nil
	}

	revoked, err = s.storage.BlacklistContains(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("durable blacklist lookup: %w", err)
	}
	return revoked, nil
}

// RevokeAllForUser marks every active refresh token of the user as revoked
// in the durable store and best-effort mirrors the hashes into the cache.
// Returns the number of tokens revoked.
func (s *BlacklistService) RevokeAllForUser(ctx context.Context, userID string, reason models.RevocationReason) (int64, error) {
	revoked, err := s.storage.BlacklistUserTokens(ctx, userID, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke all user tokens: %w", err)
	}
	s.mirrorBatch(ctx, revoked)
	return int64(len(revoked)), nil
}

func (s *BlacklistService) RevokeAllForSession(ctx context.Context, sessionID string, reason models.RevocationReason) (int64, error) {
	revoked, err := s.storage.BlacklistSessionTokens(ctx, sessionID, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke session tokens: %w", err)
	}
	s.mirrorBatch(ctx, revoked)
	return int64(len(revoked)), nil
}

// CleanupExpired drops durable rows whose token already expired naturally.
func (s *BlacklistService) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.storage.DeleteExpiredBlacklistEntries(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired blacklist entries: %w", err)
	}
	return deleted, nil
}

func (s *BlacklistService) mirrorBatch(ctx context.Context, revoked []storage.RevokedToken) {
	if len(revoked) == 0 {
		return
	}
	hashes := make(map[string]time.Duration, len(revoked))
	for _, rt := range revoked {
		hashes[rt.Hash] = time.Until(rt.ExpiresAt)
	}
	if err := s.cache.MarkRevokedBatch(ctx, hashes); err != nil {
		s.log.Warnw("revocation cache batch write failed, durable rows remain authoritative",
			"error", err, "count", len(hashes))
	}
}
