package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/krezhik/marketauth/internal/models"
	"github.com/krezhik/marketauth/internal/storage/memory"
	"github.com/krezhik/marketauth/internal/util"
)

type envOpts struct {
	refreshTTL  time.Duration
	sessionTTL  time.Duration
	maxSessions int
	cache       RevocationCache
}

type env struct {
	storage   *memory.Storage
	cache     RevocationCache
	blacklist *BlacklistService
	sessions  *SessionService
	tokens    *TokenService
	scheduler *CleanupScheduler
}

func newEnv(opts envOpts) *env {
	if opts.refreshTTL == 0 {
		opts.refreshTTL = 30 * 24 * time.Hour
	}
	if opts.sessionTTL == 0 {
		opts.sessionTTL = 30 * 24 * time.Hour
	}
	if opts.maxSessions == 0 {
		opts.maxSessions = 5
	}
	if opts.cache == nil {
		opts.cache = memory.NewBlacklistCache()
	}

	st := memory.NewStorage()
	log := zap.NewNop().Sugar()
	secrets := &util.SecretConfig{ServerSecret: []byte("test-server-secret")}

	blacklist := NewBlacklistService(secrets, st, opts.cache, log)
	sessions := NewSessionService(
		&util.SessionConfig{SessionTTL: opts.sessionTTL, MaxSessions: opts.maxSessions},
		secrets, st, blacklist, log,
	)
	tokens := NewTokenService(
		&util.TokenConfig{
			JwtSecretKey: []byte("test-jwt-secret"),
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   opts.refreshTTL,
		},
		st, blacklist, sessions, log,
	)
	scheduler := NewCleanupScheduler(
		&util.CleanupConfig{
			HourlyInterval: time.Hour,
			DailyInterval:  24 * time.Hour,
			InactiveDays:   30,
		},
		tokens, sessions, blacklist, log,
	)

	return &env{
		storage:   st,
		cache:     opts.cache,
		blacklist: blacklist,
		sessions:  sessions,
		tokens:    tokens,
		scheduler: scheduler,
	}
}

var testReqCtx = models.RequestContext{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	IPAddress: "203.0.113.10",
}
