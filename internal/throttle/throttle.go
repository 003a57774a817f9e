package throttle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/algolog/stats-service/internal/models"
	"github.com/rs/zerolog"
)

var ErrBackoff = errors.New("platform is backing off")

// DefaultIntervals is the minimum spacing between two requests to the same
// platform, shared by every student in the process.
var DefaultIntervals = map[models.Platform]time.Duration{
	models.PlatformCodeChef:   2500 * time.Millisecond,
	models.PlatformLeetCode:   200 * time.Millisecond,
	models.PlatformHackerRank: 500 * time.Millisecond,
	models.PlatformGitHub:     100 * time.Millisecond,
	models.PlatformSkillRack:  500 * time.Millisecond,
	models.PlatformCodeforces: 500 * time.Millisecond,
}

type Config struct {
	DefaultInterval time.Duration
	Intervals       map[models.Platform]time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultInterval: time.Second,
		Intervals:       DefaultIntervals,
		BackoffBase:     30 * time.Second,
		BackoffMax:      30 * time.Minute,
	}
}

// Store holds per-platform throttle state. Implementations must apply every
// read-modify-write atomically since all in-flight fetches share it.
type Store interface {
	ShouldFetch(platform models.Platform) bool
	RecordOutcome(platform models.Platform, outcome models.Outcome)
	Wait(ctx context.Context, platform models.Platform) error
	Snapshot() map[models.Platform]models.ThrottleState
}

type Option func(*memoryStore)

func WithClock(now func() time.Time) Option {
	return func(s *memoryStore) {
		s.now = now
	}
}

type memoryStore struct {
	mu     sync.Mutex
	states map[models.Platform]*models.ThrottleState
	config Config
	now    func() time.Time
	logger zerolog.Logger
}

// NewMemoryStore keeps state for the lifetime of the process. It is lost on
// restart.
func NewMemoryStore(cfg Config, logger zerolog.Logger, opts ...Option) Store {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	s := &memoryStore{
		states: make(map[models.Platform]*models.ThrottleState),
		config: cfg,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) state(p models.Platform) *models.ThrottleState {
	st, ok := s.states[p]
	if !ok {
		st = &models.ThrottleState{}
		s.states[p] = st
	}
	return st
}

func (s *memoryStore) interval(p models.Platform) time.Duration {
	if d, ok := s.config.Intervals[p]; ok && d > 0 {
		return d
	}
	return s.config.DefaultInterval
}

func (s *memoryStore) ShouldFetch(platform models.Platform) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[platform]
	if !ok {
		return true
	}
	return !s.now().Before(st.BackoffUntil)
}

// RecordOutcome updates backoff state. Only rate limiting extends the
// backoff; a success clears it; other failures leave it alone.
func (s *memoryStore) RecordOutcome(platform models.Platform, outcome models.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(platform)
	switch outcome {
	case models.OutcomeSuccess:
		if st.ConsecutiveFailures > 0 || !st.BackoffUntil.IsZero() {
			s.logger.Info().
				Str("platform", platform.String()).
				Int("consecutive_failures", st.ConsecutiveFailures).
				Msg("Platform recovered, backoff cleared")
		}
		st.ConsecutiveFailures = 0
		st.BackoffUntil = time.Time{}
	case models.OutcomeRateLimited:
		st.ConsecutiveFailures++
		backoff := s.backoff(st.ConsecutiveFailures)
		st.BackoffUntil = s.now().Add(backoff)
		s.logger.Warn().
			Str("platform", platform.String()).
			Int("consecutive_failures", st.ConsecutiveFailures).
			Dur("backoff", backoff).
			Time("backoff_until", st.BackoffUntil).
			Msg("Platform rate limited, backing off")
	}
}

func (s *memoryStore) backoff(failures int) time.Duration {
	d := s.config.BackoffBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= s.config.BackoffMax {
			return s.config.BackoffMax
		}
	}
	if d > s.config.BackoffMax {
		return s.config.BackoffMax
	}
	return d
}

// Wait reserves the next request slot for the platform and sleeps until it.
// Slots are handed out under the lock so concurrent callers never share one.
func (s *memoryStore) Wait(ctx context.Context, platform models.Platform) error {
	s.mu.Lock()
	st := s.state(platform)
	now := s.now()
	if now.Before(st.BackoffUntil) {
		until := st.BackoffUntil
		s.mu.Unlock()
		return fmt.Errorf("%w until %s", ErrBackoff, until.Format(time.RFC3339))
	}
	slot := now
	if next := st.LastRequestAt.Add(s.interval(platform)); next.After(slot) {
		slot = next
	}
	st.LastRequestAt = slot
	s.mu.Unlock()

	delay := slot.Sub(now)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *memoryStore) Snapshot() map[models.Platform]models.ThrottleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.Platform]models.ThrottleState, len(s.states))
	for p, st := range s.states {
		out[p] = *st
	}
	return out
}
