package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage"
)

// Storage is an in-memory implementation of storage.Storage used by tests
// and local development. Refresh tokens are keyed by hash, sessions by id.
type Storage struct {
	mu        sync.RWMutex
	sessions  map[string]models.Session
	tokens    map[string]models.RefreshToken
	blacklist map[string]models.BlacklistEntry
}

func NewStorage() *Storage {
	return &Storage{
		sessions:  make(map[string]models.Session),
		tokens:    make(map[string]models.RefreshToken),
		blacklist: make(map[string]models.BlacklistEntry),
	}
}

func (s *Storage) CreateSession(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = session
	return nil
}

func (s *Storage) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	return &session, nil
}

func (s *Storage) ListActiveSessions(_ context.Context, userID string) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.activeSessionsLocked(userID)
	result := make([]models.Session, len(sessions))
	copy(result, sessions)
	return result, nil
}

func (s *Storage) CountActiveSessions(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.activeSessionsLocked(userID)), nil
}

func (s *Storage) OldestActiveSession(_ context.Context, userID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.activeSessionsLocked(userID)
	if len(sessions) == 0 {
		return nil, storage.ErrSessionNotFound
	}
	oldest := sessions[0]
	return &oldest, nil
}

func (s *Storage) DeactivateSession(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || !session.IsActive {
		return false, nil
	}
	session.IsActive = false
	s.sessions[id] = session
	return true, nil
}

func (s *Storage) DeactivateUserSessions(_ context.Context, userID, excludeID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, session := range s.sessions {
		if session.UserID != userID || !session.IsActive || id == excludeID {
			continue
		}
		session.IsActive = false
		s.sessions[id] = session
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Storage) UpdateSessionActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return storage.ErrSessionNotFound
	}
	session.LastActivity = at
	s.sessions[id] = session
	return nil
}

func (s *Storage) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, session := range s.sessions {
		if session.ExpiresAt.Before(before) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Storage) DeleteInactiveSessions(_ context.Context, lastActivityBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, session := range s.sessions {
		if !session.IsActive || session.LastActivity.Before(lastActivityBefore) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Storage) CreateRefreshToken(_ context.Context, token models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token.TokenHash] = token
	return nil
}

func (s *Storage) GetRefreshTokenByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[hash]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	return &token, nil
}

func (s *Storage) DeactivateRefreshToken(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deactivateTokenLocked(hash), nil
}

func (s *Storage) TouchRefreshToken(_ context.Context, hash string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[hash]
	if !ok {
		return storage.ErrTokenNotFound
	}
	token.LastUsedAt = usedAt
	s.tokens[hash] = token
	return nil
}

func (s *Storage) DeleteRefreshToken(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, hash)
	return nil
}

func (s *Storage) DeleteExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for hash, token := range s.tokens {
		if token.ExpiresAt.Before(before) {
			delete(s.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Storage) DeleteInactiveTokens(_ context.Context, lastUsedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for hash, token := range s.tokens {
		if !token.IsActive || token.LastUsedAt.Before(lastUsedBefore) {
			delete(s.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Storage) InsertBlacklistEntry(_ context.Context, entry models.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blacklist[entry.TokenHash]; !exists {
		s.blacklist[entry.TokenHash] = entry
	}
	return nil
}

func (s *Storage) BlacklistContains(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blacklist[hash]
	return ok, nil
}

func (s *Storage) DeleteExpiredBlacklistEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for hash, entry := range s.blacklist {
		if entry.TokenExpiry.Before(before) {
			delete(s.blacklist, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Storage) BlacklistSessionTokens(_ context.Context, sessionID string, reason models.RevocationReason) ([]storage.RevokedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.blacklistTokensLocked(func(t models.RefreshToken) bool { return t.SessionID == sessionID }, reason), nil
}

func (s *Storage) BlacklistUserTokens(_ context.Context, userID string, reason models.RevocationReason) ([]storage.RevokedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.blacklistTokensLocked(func(t models.RefreshToken) bool { return t.UserID == userID }, reason), nil
}

func (s *Storage) RotateRefreshToken(_ context.Context, oldHash string, entry models.BlacklistEntry, next models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deactivateTokenLocked(oldHash) {
		return storage.ErrTokenAlreadyRotated
	}
	if _, exists := s.blacklist[entry.TokenHash]; !exists {
		s.blacklist[entry.TokenHash] = entry
	}
	s.tokens[next.TokenHash] = next
	return nil
}

func (s *Storage) activeSessionsLocked(userID string) []models.Session {
	now := time.Now()
	var sessions []models.Session
	for _, session := range s.sessions {
		if session.UserID == userID && session.IsActive && session.ExpiresAt.After(now) {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

func (s *Storage) deactivateTokenLocked(hash string) bool {
	token, ok := s.tokens[hash]
	if !ok || !token.IsActive {
		return false
	}
	token.IsActive = false
	s.tokens[hash] = token
	return true
}

func (s *Storage) blacklistTokensLocked(match func(models.RefreshToken) bool, reason models.RevocationReason) []storage.RevokedToken {
	now := time.Now()
	var revoked []storage.RevokedToken
	for hash, token := range s.tokens {
		if !match(token) || !token.IsActive {
			continue
		}
		token.IsActive = false
		s.tokens[hash] = token
		if _, exists := s.blacklist[hash]; !exists {
			s.blacklist[hash] = models.BlacklistEntry{
				TokenHash:     hash,
				TokenType:     models.TokenTypeRefresh,
				Reason:        reason,
				UserID:        token.UserID,
				SessionID:     token.SessionID,
				DeviceInfo:    token.DeviceInfo,
				BlacklistedAt: now,
				TokenExpiry:   token.ExpiresAt,
			}
		}
		revoked = append(revoked, storage.RevokedToken{Hash: hash, ExpiresAt: token.ExpiresAt})
	}
	return revoked
}
