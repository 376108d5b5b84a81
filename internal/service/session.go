package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage"
	"github.com/krezhik/marketauth/internal/util"
)

// SessionService owns the session lifecycle: creation with the per-user cap,
// revocation with cascade to the session's refresh tokens, and cleanup.
type SessionService struct {
	storage      storage.Storage
	blacklist    *BlacklistService
	serverSecret []byte
	sessionTTL   time.Duration
	maxSessions  int
	log          *zap.SugaredLogger
}

func NewSessionService(cfg *util.SessionConfig, secrets *util.SecretConfig, st storage.Storage, blacklist *BlacklistService, log *zap.SugaredLogger) *SessionService {
	return &SessionService{
		storage:      st,
		blacklist:    blacklist,
		serverSecret: secrets.ServerSecret,
		sessionTTL:   cfg.SessionTTL,
		maxSessions:  cfg.MaxSessions,
		log:          log,
	}
}

// CreateSession inserts a new session for the user. When the user is at the
// session cap the single oldest active session is evicted first, tokens and
// all. Logging in on a new device therefore always succeeds; the oldest
// device is silently signed out instead.
func (s *SessionService) CreateSession(ctx context.Context, userID string, reqCtx models.RequestContext) (*models.Session, error) {
	if err := s.enforceSessionCap(ctx, userID); err != nil {
		return nil, err
	}

	now := time.Now()
	session := models.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		DeviceInfo:   Fingerprint(reqCtx, s.serverSecret),
		IPAddress:    reqCtx.IPAddress,
		IsActive:     true,
		LastActivity: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Infow("session created",
		"session_id", session.ID, "user_id", userID, "device", session.DeviceInfo.Browser)
	return &session, nil
}

func (s *SessionService) enforceSessionCap(ctx context.Context, userID string) error {
	for {
		count, err := s.storage.CountActiveSessions(ctx, userID)
		if err != nil {
			return fmt.Errorf("count active sessions: %w", err)
		}
		if count < s.maxSessions {
			return nil
		}

		oldest, err := s.storage.OldestActiveSession(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrSessionNotFound) {
				// Raced with another eviction; recount.
				continue
			}
			return fmt.Errorf("find oldest session: %w", err)
		}

		evicted, err := s.revokeSession(ctx, oldest.ID, models.ReasonSessionRevoked)
		if err != nil {
			return fmt.Errorf("evict oldest session: %w", err)
		}
		if evicted {
			s.log.Infow("session cap reached, evicted oldest session",
				"user_id", userID, "evicted_session_id", oldest.ID)
		}
	}
}

// RevokeSession marks the session inactive and revokes all of its refresh
// tokens. Revoking an already-revoked or unknown session is a no-op.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := s.revokeSession(ctx, sessionID, models.ReasonSessionRevoked)
	return err
}

func (s *SessionService) revokeSession(ctx context.Context, sessionID string, reason models.RevocationReason) (bool, error) {
	changed, err := s.storage.DeactivateSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	if !changed {
		return false, nil
	}

	revoked, err := s.blacklist.RevokeAllForSession(ctx, sessionID, reason)
	if err != nil {
		return false, fmt.Errorf("cascade token revocation: %w", err)
	}

	s.log.Infow("session revoked", "session_id", sessionID, "reason", reason, "tokens_revoked", revoked)
	return true, nil
}

// RevokeAllUserSessions signs the user out everywhere, optionally keeping
// one session alive ("log out of other devices"). Returns the number of
// sessions revoked.
func (s *SessionService) RevokeAllUserSessions(ctx context.Context, userID, excludeSessionID string) (int64, error) {
	ids, err := s.storage.DeactivateUserSessions(ctx, userID, excludeSessionID)
	if err != nil {
		return 0, fmt.Errorf("deactivate user sessions: %w", err)
	}

	for _, id := range ids {
		if _, err := s.blacklist.RevokeAllForSession(ctx, id, models.ReasonUserLogoutAll); err != nil {
			return 0, fmt.Errorf("cascade token revocation for session %s: %w", id, err)
		}
	}

	s.log.Infow("all user sessions revoked",
		"user_id", userID, "count", len(ids), "excluded", excludeSessionID != "")
	return int64(len(ids)), nil
}

// UpdateActivity bumps last_activity; called on every authenticated request
// that re-validates the session, not only on refresh.
func (s *SessionService) UpdateActivity(ctx context.Context, sessionID string) error {
	if err := s.storage.UpdateSessionActivity(ctx, sessionID, time.Now()); err != nil {
		return fmt.Errorf("update session activity: %w", err)
	}
	return nil
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.storage.ListActiveSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// IsValid reports whether the session may still authorize tokens.
func (s *SessionService) IsValid(session *models.Session) bool {
	return session != nil && session.IsActive && time.Now().Before(session.ExpiresAt)
}

func (s *SessionService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	deleted, err := s.storage.DeleteExpiredSessions(ctx, time.Now().Add(-util.CleanupGracePeriod))
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return deleted, nil
}

func (s *SessionService) CleanupInactiveSessions(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	deleted, err := s.storage.DeleteInactiveSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup inactive sessions: %w", err)
	}
	return deleted, nil
}
