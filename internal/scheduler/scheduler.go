package scheduler

import (
	"acbridge/internal/clock"
	"acbridge/internal/core"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultInterval         = 2 * time.Hour
	DefaultRateLimitBackoff = 15 * time.Minute
)

// TokenRefresher is the part of the token manager the scheduler drives
type TokenRefresher interface {
	Ready() bool
	Refresh(ctx context.Context) (core.TokenSet, error)
}

// Scheduler refreshes the access token on a fixed interval
type Scheduler struct {
	tokens           TokenRefresher
	interval         time.Duration
	rateLimitBackoff time.Duration
	clock            clock.Clock
	stopChan         chan struct{}
	stopOnce         sync.Once
	logger           *slog.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(tokens TokenRefresher, interval, rateLimitBackoff time.Duration, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if rateLimitBackoff <= 0 {
		rateLimitBackoff = DefaultRateLimitBackoff
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		tokens:           tokens,
		interval:         interval,
		rateLimitBackoff: rateLimitBackoff,
		clock:            clk,
		stopChan:         make(chan struct{}),
		logger:           logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler loop and blocks until Stop is called
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started", "interval", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	// retry is non-nil while a rate-limit retry is pending
	var retry *time.Timer
	var retryC <-chan time.Time
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-ticker.C:
			if err := s.tick(); errors.Is(err, core.ErrRateLimited) && retry == nil {
				s.logger.Warn("Refresh rate limited, retrying later", "backoff", s.rateLimitBackoff)
				retry = s.clock.NewTimer(s.rateLimitBackoff)
				retryC = retry.C
			}
		case <-retryC:
			retry, retryC = nil, nil
			s.tick()
		case <-s.stopChan:
			s.logger.Info("Scheduler stopped")
			return
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// tick performs one refresh. Failures are logged and the service keeps running.
func (s *Scheduler) tick() error {
	if !s.tokens.Ready() {
		s.logger.Debug("Token manager not ready, skipping scheduled refresh")
		return nil
	}

	tokens, err := s.tokens.Refresh(context.Background())
	if err != nil {
		if core.IsFatalAuth(err) {
			s.logger.Error("Scheduled refresh impossible, new credentials must be installed", "error", err)
		} else {
			s.logger.Error("Scheduled refresh failed", "error", err)
		}
		return err
	}

	s.logger.Info("Scheduled refresh completed", "expires_at", tokens.AccessExpiresAt)
	return nil
}
