package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/krezhik/marketauth/internal/util"
)

// CleanupScheduler reclaims expired auth state outside the request path. Two
// independent jobs run on tickers: an hourly sweep of naturally expired rows
// and a daily sweep that additionally drops long-inactive sessions and
// tokens. Each job carries an in-process re-entrancy guard; overlapping
// invocations of the same job log a warning and do nothing. The guard is not
// a distributed lock.
type CleanupScheduler struct {
	tokens    *TokenService
	sessions  *SessionService
	blacklist *BlacklistService

	hourlyInterval time.Duration
	dailyInterval  time.Duration
	inactiveDays   int

	hourlyRunning atomic.Bool
	dailyRunning  atomic.Bool

	log *zap.SugaredLogger
}

func NewCleanupScheduler(cfg *util.CleanupConfig, tokens *TokenService, sessions *SessionService, blacklist *BlacklistService, log *zap.SugaredLogger) *CleanupScheduler {
	return &CleanupScheduler{
		tokens:         tokens,
		sessions:       sessions,
		blacklist:      blacklist,
		hourlyInterval: cfg.HourlyInterval,
		dailyInterval:  cfg.DailyInterval,
		inactiveDays:   cfg.InactiveDays,
		log:            log,
	}
}

// Run blocks until ctx is cancelled, firing both jobs on their intervals.
// A failed tick is logged; the next tick still runs.
func (s *CleanupScheduler) Run(ctx context.Context) {
	hourly := time.NewTicker(s.hourlyInterval)
	daily := time.NewTicker(s.dailyInterval)
	defer hourly.Stop()
	defer daily.Stop()

	s.log.Infow("cleanup scheduler started",
		"hourly_interval", s.hourlyInterval, "daily_interval", s.dailyInterval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cleanup scheduler stopped")
			return
		case <-hourly.C:
			s.RunExpiredSweep(ctx)
		case <-daily.C:
			s.RunComprehensiveSweep(ctx)
		}
	}
}

// RunExpiredSweep removes rows past their natural expiry from all three
// stores.
func (s *CleanupScheduler) RunExpiredSweep(ctx context.Context) {
	if !s.hourlyRunning.CompareAndSwap(false, true) {
		s.log.Warn("expired sweep still running, skipping this tick")
		return
	}
	defer s.hourlyRunning.Store(false)

	tokens := s.collect(func() (int64, error) { return s.tokens.CleanupExpiredTokens(ctx) }, "expired tokens")
	sessions := s.collect(func() (int64, error) { return s.sessions.CleanupExpiredSessions(ctx) }, "expired sessions")
	entries := s.collect(func() (int64, error) { return s.blacklist.CleanupExpired(ctx) }, "expired blacklist entries")

	s.log.Infow("expired sweep finished",
		"tokens", tokens, "sessions", sessions, "blacklist_entries", entries)
}

// RunComprehensiveSweep is the expired sweep plus removal of sessions and
// tokens unused for the configured number of days.
func (s *CleanupScheduler) RunComprehensiveSweep(ctx context.Context) {
	s.runComprehensive(ctx, s.inactiveDays)
}

// EmergencyCleanup forces the comprehensive sweep with the inactivity
// threshold at zero. Operator tooling for incident response: everything not
// currently active is reclaimed.
func (s *CleanupScheduler) EmergencyCleanup(ctx context.Context) {
	s.log.Warn("emergency cleanup requested")
	s.runComprehensive(ctx, 0)
}

func (s *CleanupScheduler) runComprehensive(ctx context.Context, days int) {
	if !s.dailyRunning.CompareAndSwap(false, true) {
		s.log.Warn("comprehensive sweep still running, skipping this tick")
		return
	}
	defer s.dailyRunning.Store(false)

	expTokens := s.collect(func() (int64, error) { return s.tokens.CleanupExpiredTokens(ctx) }, "expired tokens")
	expSessions := s.collect(func() (int64, error) { return s.sessions.CleanupExpiredSessions(ctx) }, "expired sessions")
	entries := s.collect(func() (int64, error) { return s.blacklist.CleanupExpired(ctx) }, "expired blacklist entries")
	inactTokens := s.collect(func() (int64, error) { return s.tokens.CleanupInactiveTokens(ctx, days) }, "inactive tokens")
	inactSessions := s.collect(func() (int64, error) { return s.sessions.CleanupInactiveSessions(ctx, days) }, "inactive sessions")

	s.log.Infow("comprehensive sweep finished",
		"inactive_days", days,
		"expired_tokens", expTokens, "expired_sessions", expSessions,
		"blacklist_entries", entries,
		"inactive_tokens", inactTokens, "inactive_sessions", inactSessions)
}

func (s *CleanupScheduler) collect(op func() (int64, error), what string) int64 {
	count, err := op()
	if err != nil {
		s.log.Errorw("cleanup step failed", "step", what, "error", err)
		return 0
	}
	return count
}
