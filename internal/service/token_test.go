package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage"
)

func TestRefreshRotationInvalidatesOldSecret(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	pair, err := e.tokens.Refresh(ctx, issued.Secret, issued.SessionID, testReqCtx)
	require.NoError(t, err)
	assert.Equal(t, issued.SessionID, pair.SessionID, "rotation must keep the session identity")
	assert.NotEqual(t, issued.Secret, pair.RefreshSecret)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.ErrorIs(t, err, ErrTokenRevoked, "old secret must fail after rotation")

	_, _, err = e.tokens.ValidateRefreshToken(ctx, pair.RefreshSecret, pair.SessionID)
	assert.NoError(t, err, "new secret must validate")
}

func TestRefreshReplayLosesToRotation(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	_, err = e.tokens.Refresh(ctx, issued.Secret, issued.SessionID, testReqCtx)
	require.NoError(t, err)

	_, err = e.tokens.Refresh(ctx, issued.Secret, issued.SessionID, testReqCtx)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestValidateRefreshTokenUnknownSecret(t *testing.T) {
	e := newEnv(envOpts{})

	_, _, err := e.tokens.ValidateRefreshToken(context.Background(), "never-issued", "")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateRefreshTokenExpired(t *testing.T) {
	e := newEnv(envOpts{refreshTTL: -48 * time.Hour})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// The expired row is deleted opportunistically, so a second attempt
	// no longer finds it.
	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateRefreshTokenInactiveRow(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	hash := e.blacklist.HashToken(issued.Secret)
	changed, err := e.storage.DeactivateRefreshToken(ctx, hash)
	require.NoError(t, err)
	require.True(t, changed)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.ErrorIs(t, err, ErrTokenInactive)
}

func TestValidateRefreshTokenSessionMismatch(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, "some-other-session")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestValidateRefreshTokenExpiredSession(t *testing.T) {
	e := newEnv(envOpts{sessionTTL: -time.Hour})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestValidateRefreshTokenBumpsActivity(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	before, err := e.storage.GetSession(ctx, issued.SessionID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	token, session, err := e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	require.NoError(t, err)

	after, err := e.storage.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, after.LastActivity.After(before.LastActivity))

	row, err := e.storage.GetRefreshTokenByHash(ctx, token.TokenHash)
	require.NoError(t, err)
	assert.True(t, row.LastUsedAt.After(row.CreatedAt))
}

func TestIssueTokenPairMintsSignedAccessToken(t *testing.T) {
	e := newEnv(envOpts{})

	pair, err := e.tokens.IssueTokenPair(context.Background(), "user-a", testReqCtx)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshSecret)
	require.NotEmpty(t, pair.SessionID)

	parsed, err := jwt.ParseWithClaims(pair.AccessToken, &jwtClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte("test-jwt-secret"), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	require.NoError(t, err)

	claims, ok := parsed.Claims.(*jwtClaims)
	require.True(t, ok)
	assert.Equal(t, "user-a", claims.UserID)
	assert.NotEmpty(t, claims.ID, "access tokens carry a fresh JTI")
}

func TestRevokeRefreshToken(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	require.NoError(t, e.tokens.RevokeRefreshToken(ctx, issued.Secret))

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	err = e.tokens.RevokeRefreshToken(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRotationKeepsSingleActiveTokenPerSession(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	secret := issued.Secret
	for i := 0; i < 3; i++ {
		pair, err := e.tokens.Refresh(ctx, secret, issued.SessionID, testReqCtx)
		require.NoError(t, err)
		secret = pair.RefreshSecret
	}

	// Only the latest secret validates; the rotation chain is dead.
	_, _, err = e.tokens.ValidateRefreshToken(ctx, secret, issued.SessionID)
	require.NoError(t, err)
	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTokenRevoked))
}

func TestRotateRefreshTokenStorageConflict(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	// Simulate the losing side of a rotation race: the row was already
	// consumed by the time this rotation attempts its conditional update.
	hash := e.blacklist.HashToken(issued.Secret)
	_, err = e.storage.DeactivateRefreshToken(ctx, hash)
	require.NoError(t, err)

	sess, err := e.storage.GetSession(ctx, issued.SessionID)
	require.NoError(t, err)
	_, next, err := e.tokens.buildRefreshToken(sess, testReqCtx)
	require.NoError(t, err)

	entry := models.BlacklistEntry{
		TokenHash:   hash,
		TokenType:   models.TokenTypeRefresh,
		Reason:      models.ReasonTokenRefresh,
		UserID:      "user-a",
		SessionID:   issued.SessionID,
		TokenExpiry: issued.ExpiresAt,
	}
	err = e.storage.RotateRefreshToken(ctx, hash, entry, *next)
	require.ErrorIs(t, err, storage.ErrTokenAlreadyRotated)
}
