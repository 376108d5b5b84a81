package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage"
	"github.com/krezhik/marketauth/internal/util"
)

var (
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrTokenInactive  = errors.New("token inactive")
	ErrSessionInvalid = errors.New("session invalid")
)

// IssuedToken is what a fresh refresh-token issuance hands back to the
// caller. Secret is returned exactly once and never stored.
type IssuedToken struct {
	Secret     string
	ExpiresAt  time.Time
	SessionID  string
	DeviceInfo models.DeviceInfo
}

// TokenPair is the login/refresh response: a short-lived signed access token
// plus the next refresh secret.
type TokenPair struct {
	AccessToken   string
	RefreshSecret string
	ExpiresAt     time.Time
	SessionID     string
	DeviceInfo    models.DeviceInfo
}

// TokenService issues, validates and rotates refresh tokens. Every refresh
// token is bound to exactly one session; rotation replaces the secret but
// keeps the session identity.
type TokenService struct {
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	storage    storage.Storage
	blacklist  *BlacklistService
	sessions   *SessionService
	log        *zap.SugaredLogger
}

func NewTokenService(cfg *util.TokenConfig, st storage.Storage, blacklist *BlacklistService, sessions *SessionService, log *zap.SugaredLogger) *TokenService {
	return &TokenService{
		jwtSecret:  cfg.JwtSecretKey,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		storage:    st,
		blacklist:  blacklist,
		sessions:   sessions,
		log:        log,
	}
}

type jwtClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// CreateAccessToken mints an HS512-signed access token with a fresh JTI.
// Verification of presented access tokens happens upstream; this service
// only issues them as part of login and refresh responses.
func (ts *TokenService) CreateAccessToken(userID string, now time.Time) (string, error) {
	claims := &jwtClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signedToken, nil
}

// CreateRefreshToken creates a new session for the user and binds a fresh
// refresh token to it.
func (ts *TokenService) CreateRefreshToken(ctx context.Context, userID string, reqCtx models.RequestContext) (*IssuedToken, error) {
	session, err := ts.sessions.CreateSession(ctx, userID, reqCtx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return ts.issueForSession(ctx, session, reqCtx)
}

// IssueTokenPair is the login entry point: new session, new refresh token,
// new access token.
func (ts *TokenService) IssueTokenPair(ctx context.Context, userID string, reqCtx models.RequestContext) (*TokenPair, error) {
	issued, err := ts.CreateRefreshToken(ctx, userID, reqCtx)
	if err != nil {
		return nil, err
	}

	accessToken, err := ts.CreateAccessToken(userID, time.Now())
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:   accessToken,
		RefreshSecret: issued.Secret,
		ExpiresAt:     issued.ExpiresAt,
		SessionID:     issued.SessionID,
		DeviceInfo:    issued.DeviceInfo,
	}, nil
}

// ValidateRefreshToken runs the full acceptance chain: blacklist, row
// lookup, expiry, active flag, then the owning session. On success it bumps
// last_used_at on the token and last_activity on the session.
func (ts *TokenService) ValidateRefreshToken(ctx context.Context, secret, sessionID string) (*models.RefreshToken, *models.Session, error) {
	hash := ts.blacklist.HashToken(secret)

	revoked, err := ts.blacklist.IsRevokedHash(ctx, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("blacklist check: %w", err)
	}
	if revoked {
		return nil, nil, ErrTokenRevoked
	}

	token, err := ts.storage.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, nil, ErrTokenInvalid
		}
		return nil, nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	now := time.Now()
	if now.After(token.ExpiresAt) {
		// The row is dead weight; drop it now instead of waiting for the
		// cleanup job.
		if err := ts.storage.DeleteRefreshToken(ctx, hash); err != nil {
			ts.log.Warnw("failed to delete expired refresh token", "error", err)
		}
		return nil, nil, ErrTokenExpired
	}
	if !token.IsActive {
		return nil, nil, ErrTokenInactive
	}
	if sessionID != "" && token.SessionID != sessionID {
		return nil, nil, ErrSessionInvalid
	}

	session, err := ts.storage.GetSession(ctx, token.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("lookup session: %w", err)
	}
	if !ts.sessions.IsValid(session) {
		return nil, nil, ErrSessionInvalid
	}

	if err := ts.storage.TouchRefreshToken(ctx, hash, now); err != nil {
		ts.log.Warnw("failed to touch refresh token", "error", err)
	}
	if err := ts.storage.UpdateSessionActivity(ctx, session.ID, now); err != nil {
		ts.log.Warnw("failed to update session activity", "error", err)
	}

	return token, session, nil
}

// Refresh rotates the presented refresh token: the old secret is revoked and
// a new one is bound to the same session, so the session identity survives
// while the secret is single-use. Rotation is atomic; a concurrent refresh
// of the same secret loses with ErrTokenRevoked.
func (ts *TokenService) Refresh(ctx context.Context, secret, sessionID string, reqCtx models.RequestContext) (*TokenPair, error) {
	token, session, err := ts.ValidateRefreshToken(ctx, secret, sessionID)
	if err != nil {
		return nil, err
	}

	entry := models.BlacklistEntry{
		TokenHash:     token.TokenHash,
		TokenType:     models.TokenTypeRefresh,
		Reason:        models.ReasonTokenRefresh,
		UserID:        token.UserID,
		SessionID:     token.SessionID,
		DeviceInfo:    token.DeviceInfo,
		BlacklistedAt: time.Now(),
		TokenExpiry:   token.ExpiresAt,
	}

	newSecret, newToken, err := ts.buildRefreshToken(session, reqCtx)
	if err != nil {
		return nil, err
	}

	if err := ts.storage.RotateRefreshToken(ctx, token.TokenHash, entry, *newToken); err != nil {
		if errors.Is(err, storage.ErrTokenAlreadyRotated) {
			return nil, ErrTokenRevoked
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	ts.blacklist.CacheRevocation(ctx, token.TokenHash, token.ExpiresAt)

	accessToken, err := ts.CreateAccessToken(session.UserID, time.Now())
	if err != nil {
		return nil, err
	}

	ts.log.Infow("refresh token rotated", "session_id", session.ID, "user_id", session.UserID)
	return &TokenPair{
		AccessToken:   accessToken,
		RefreshSecret: newSecret,
		ExpiresAt:     newToken.ExpiresAt,
		SessionID:     session.ID,
		DeviceInfo:    newToken.DeviceInfo,
	}, nil
}

// RevokeRefreshToken revokes a single presented secret (logout of the
// current device without killing the session record's other state).
func (ts *TokenService) RevokeRefreshToken(ctx context.Context, secret string) error {
	hash := ts.blacklist.HashToken(secret)
	token, err := ts.storage.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	if err := ts.blacklist.RevokeHash(ctx, hash, models.TokenTypeRefresh, models.ReasonLogout, RevocationMeta{
		UserID:      token.UserID,
		SessionID:   token.SessionID,
		DeviceInfo:  token.DeviceInfo,
		TokenExpiry: token.ExpiresAt,
	}); err != nil {
		return err
	}

	if _, err := ts.storage.DeactivateRefreshToken(ctx, hash); err != nil {
		return fmt.Errorf("deactivate refresh token: %w", err)
	}
	return nil
}

func (ts *TokenService) RevokeAllUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	return ts.blacklist.RevokeAllForUser(ctx, userID, models.ReasonUserLogoutAll)
}

func (ts *TokenService) RevokeSessionTokens(ctx context.Context, sessionID string) (int64, error) {
	return ts.blacklist.RevokeAllForSession(ctx, sessionID, models.ReasonSessionRevoked)
}

func (ts *TokenService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	deleted, err := ts.storage.DeleteExpiredTokens(ctx, time.Now().Add(-util.CleanupGracePeriod))
	if err != nil {
		return 0, fmt.Errorf("cleanup expired tokens: %w", err)
	}
	return deleted, nil
}

func (ts *TokenService) CleanupInactiveTokens(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	deleted, err := ts.storage.DeleteInactiveTokens(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup inactive tokens: %w", err)
	}
	return deleted, nil
}

func (ts *TokenService) issueForSession(ctx context.Context, session *models.Session, reqCtx models.RequestContext) (*IssuedToken, error) {
	secret, token, err := ts.buildRefreshToken(session, reqCtx)
	if err != nil {
		return nil, err
	}
	if err := ts.storage.CreateRefreshToken(ctx, *token); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &IssuedToken{
		Secret:     secret,
		ExpiresAt:  token.ExpiresAt,
		SessionID:  session.ID,
		DeviceInfo: token.DeviceInfo,
	}, nil
}

// buildRefreshToken generates a 256-bit secret and the row binding it to the
// session. The secret leaves this function; only its hash is persisted.
func (ts *TokenService) buildRefreshToken(session *models.Session, reqCtx models.RequestContext) (string, *models.RefreshToken, error) {
	raw := make([]byte, util.RefreshSecretLength)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("read random bytes: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now()
	token := &models.RefreshToken{
		ID:         uuid.NewString(),
		UserID:     session.UserID,
		TokenHash:  ts.blacklist.HashToken(secret),
		SessionID:  session.ID,
		DeviceInfo: Fingerprint(reqCtx, ts.blacklist.serverSecret),
		IPAddress:  reqCtx.IPAddress,
		IsActive:   true,
		LastUsedAt: now,
		ExpiresAt:  now.Add(ts.refreshTTL),
		CreatedAt:  now,
	}
	return secret, token, nil
}
