package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupExpiredTokensIdempotent(t *testing.T) {
	e := newEnv(envOpts{refreshTTL: -48 * time.Hour})
	ctx := context.Background()

	_, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)
	_, err = e.tokens.CreateRefreshToken(ctx, "user-b", testReqCtx)
	require.NoError(t, err)

	deleted, err := e.tokens.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = e.tokens.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted, "second run with no new expirations must delete nothing")
}

func TestCleanupExpiredSessions(t *testing.T) {
	e := newEnv(envOpts{sessionTTL: -48 * time.Hour})
	ctx := context.Background()

	_, err := e.sessions.CreateSession(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	deleted, err := e.sessions.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = e.sessions.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestCleanupLeavesFreshRowsAlone(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	deletedTokens, err := e.tokens.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	deletedSessions, err := e.sessions.CleanupExpiredSessions(ctx)
	require.NoError(t, err)

	assert.Zero(t, deletedTokens)
	assert.Zero(t, deletedSessions)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.NoError(t, err)
}

func TestCleanupExpiredBlacklistEntries(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	require.NoError(t, e.blacklist.Revoke(ctx, "long-gone", "refresh", "logout", RevocationMeta{
		UserID:      "user-a",
		TokenExpiry: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, e.blacklist.Revoke(ctx, "still-live", "refresh", "logout", RevocationMeta{
		UserID:      "user-a",
		TokenExpiry: time.Now().Add(time.Hour),
	}))

	deleted, err := e.blacklist.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The entry whose token is still within its natural lifetime stays.
	revoked, err := e.blacklist.IsRevoked(ctx, "still-live")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestExpiredSweepSkipsWhileRunning(t *testing.T) {
	e := newEnv(envOpts{refreshTTL: -48 * time.Hour})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)
	hash := e.blacklist.HashToken(issued.Secret)

	e.scheduler.hourlyRunning.Store(true)
	e.scheduler.RunExpiredSweep(ctx)

	_, err = e.storage.GetRefreshTokenByHash(ctx, hash)
	assert.NoError(t, err, "guarded invocation must not touch storage")

	e.scheduler.hourlyRunning.Store(false)
	e.scheduler.RunExpiredSweep(ctx)

	deleted, err := e.tokens.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted, "unguarded sweep must have reclaimed the row")
}

func TestEmergencyCleanupReclaimsEverything(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	e.scheduler.EmergencyCleanup(ctx)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.Error(t, err, "emergency cleanup with zero threshold reclaims even recent rows")
}
