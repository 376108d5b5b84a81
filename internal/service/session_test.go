package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krezhik/marketauth/internal/models"
)

func TestSessionCapEvictsOldest(t *testing.T) {
	e := newEnv(envOpts{maxSessions: 5})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 7; i++ {
		session, err := e.sessions.CreateSession(ctx, "user-a", testReqCtx)
		require.NoError(t, err)
		ids = append(ids, session.ID)
		time.Sleep(time.Millisecond) // distinct created_at ordering
	}

	active, err := e.sessions.ListActiveSessions(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, active, 5, "cap must hold after overflow")

	activeIDs := make(map[string]bool, len(active))
	for _, s := range active {
		activeIDs[s.ID] = true
	}
	assert.False(t, activeIDs[ids[0]], "oldest session must be evicted")
	assert.False(t, activeIDs[ids[1]], "second-oldest session must be evicted")
	for _, id := range ids[2:] {
		assert.True(t, activeIDs[id])
	}
}

func TestSessionCapEvictionRevokesTokens(t *testing.T) {
	e := newEnv(envOpts{maxSessions: 2})
	ctx := context.Background()

	first, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// Third login evicts the first session; its token must no longer
	// validate anywhere.
	_, err = e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, first.Secret, first.SessionID)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRevokeSessionCascadesAndIsIdempotent(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	issued, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	require.NoError(t, e.sessions.RevokeSession(ctx, issued.SessionID))

	_, _, err = e.tokens.ValidateRefreshToken(ctx, issued.Secret, issued.SessionID)
	assert.ErrorIs(t, err, ErrTokenRevoked, "cascade must revoke the session's tokens")

	// Second revocation is a no-op, not an error.
	require.NoError(t, e.sessions.RevokeSession(ctx, issued.SessionID))
	// Unknown sessions revoke cleanly too.
	require.NoError(t, e.sessions.RevokeSession(ctx, "no-such-session"))
}

func TestRevokeAllUserSessionsWithExclusion(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	var issued []*IssuedToken
	for i := 0; i < 3; i++ {
		tok, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
		require.NoError(t, err)
		issued = append(issued, tok)
		time.Sleep(time.Millisecond)
	}

	keep := issued[2]
	revoked, err := e.sessions.RevokeAllUserSessions(ctx, "user-a", keep.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, keep.Secret, keep.SessionID)
	assert.NoError(t, err, "excluded session must survive")

	for _, tok := range issued[:2] {
		_, _, err = e.tokens.ValidateRefreshToken(ctx, tok.Secret, tok.SessionID)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	}
}

func TestRevokeAllUserSessionsLeavesOtherUsersAlone(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	mine, err := e.tokens.CreateRefreshToken(ctx, "user-a", testReqCtx)
	require.NoError(t, err)
	theirs, err := e.tokens.CreateRefreshToken(ctx, "user-b", testReqCtx)
	require.NoError(t, err)

	_, err = e.sessions.RevokeAllUserSessions(ctx, "user-a", "")
	require.NoError(t, err)

	_, _, err = e.tokens.ValidateRefreshToken(ctx, mine.Secret, mine.SessionID)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	_, _, err = e.tokens.ValidateRefreshToken(ctx, theirs.Secret, theirs.SessionID)
	assert.NoError(t, err)
}

func TestUpdateActivity(t *testing.T) {
	e := newEnv(envOpts{})
	ctx := context.Background()

	session, err := e.sessions.CreateSession(ctx, "user-a", testReqCtx)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, e.sessions.UpdateActivity(ctx, session.ID))

	updated, err := e.storage.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, updated.LastActivity.After(session.LastActivity))
}

func TestIsValid(t *testing.T) {
	e := newEnv(envOpts{})
	now := time.Now()

	cases := []struct {
		name    string
		session *models.Session
		want    bool
	}{
		{"nil session", nil, false},
		{"active and unexpired", &models.Session{IsActive: true, ExpiresAt: now.Add(time.Hour)}, true},
		{"inactive", &models.Session{IsActive: false, ExpiresAt: now.Add(time.Hour)}, false},
		{"expired", &models.Session{IsActive: true, ExpiresAt: now.Add(-time.Hour)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.sessions.IsValid(tc.session))
		})
	}
}
