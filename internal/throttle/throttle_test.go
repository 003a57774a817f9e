package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/algolog/stats-service/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeStore(cfg Config) (Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryStore(cfg, zerolog.Nop(), WithClock(clock.Now)), clock
}

func TestShouldFetchBackoffAfterRateLimits(t *testing.T) {
	store, clock := newFakeStore(Config{BackoffBase: 10 * time.Second, BackoffMax: time.Minute})
	p := models.PlatformCodeforces

	assert.True(t, store.ShouldFetch(p))

	for i := 0; i < 3; i++ {
		store.RecordOutcome(p, models.OutcomeRateLimited)
	}
	assert.False(t, store.ShouldFetch(p))
	assert.True(t, store.ShouldFetch(models.PlatformLeetCode), "other platforms unaffected")

	// third consecutive failure: 10s * 2 * 2
	state := store.Snapshot()[p]
	assert.Equal(t, 3, state.ConsecutiveFailures)
	assert.Equal(t, clock.Now().Add(40*time.Second), state.BackoffUntil)

	clock.Advance(39 * time.Second)
	assert.False(t, store.ShouldFetch(p))
	clock.Advance(time.Second)
	assert.True(t, store.ShouldFetch(p))
}

func TestSuccessResetsBackoff(t *testing.T) {
	store, _ := newFakeStore(Config{BackoffBase: time.Minute, BackoffMax: time.Hour})
	p := models.PlatformCodeChef

	store.RecordOutcome(p, models.OutcomeRateLimited)
	store.RecordOutcome(p, models.OutcomeRateLimited)
	require.False(t, store.ShouldFetch(p))

	store.RecordOutcome(p, models.OutcomeSuccess)
	assert.True(t, store.ShouldFetch(p))
	state := store.Snapshot()[p]
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.True(t, state.BackoffUntil.IsZero())
}

func TestOtherFailuresDoNotBackOff(t *testing.T) {
	store, _ := newFakeStore(DefaultConfig())
	p := models.PlatformHackerRank

	store.RecordOutcome(p, models.OutcomeTimeout)
	store.RecordOutcome(p, models.OutcomeParseError)
	store.RecordOutcome(p, models.OutcomeNotFound)
	assert.True(t, store.ShouldFetch(p))
	assert.Equal(t, 0, store.Snapshot()[p].ConsecutiveFailures)
}

func TestBackoffIsCapped(t *testing.T) {
	store, clock := newFakeStore(Config{BackoffBase: time.Second, BackoffMax: 5 * time.Second})
	p := models.PlatformGitHub

	for i := 0; i < 40; i++ {
		store.RecordOutcome(p, models.OutcomeRateLimited)
	}
	assert.Equal(t, clock.Now().Add(5*time.Second), store.Snapshot()[p].BackoffUntil)
}

func TestWaitRefusesDuringBackoff(t *testing.T) {
	store, _ := newFakeStore(DefaultConfig())
	p := models.PlatformLeetCode

	store.RecordOutcome(p, models.OutcomeRateLimited)
	err := store.Wait(context.Background(), p)
	assert.True(t, errors.Is(err, ErrBackoff))
}

func TestWaitSpacesRequests(t *testing.T) {
	interval := 30 * time.Millisecond
	store := NewMemoryStore(Config{
		DefaultInterval: interval,
		BackoffBase:     time.Second,
		BackoffMax:      time.Second,
	}, zerolog.Nop())
	p := models.PlatformSkillRack

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Wait(context.Background(), p))
		}()
	}
	wg.Wait()

	// four slots: now, +1, +2, +3 intervals
	assert.GreaterOrEqual(t, time.Since(start), 3*interval)
}

func TestWaitHonoursCancellation(t *testing.T) {
	store := NewMemoryStore(Config{DefaultInterval: time.Hour, BackoffBase: time.Second}, zerolog.Nop())
	p := models.PlatformCodeChef

	require.NoError(t, store.Wait(context.Background(), p))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.Wait(ctx, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPerPlatformIntervals(t *testing.T) {
	s := NewMemoryStore(DefaultConfig(), zerolog.Nop()).(*memoryStore)
	assert.Equal(t, 2500*time.Millisecond, s.interval(models.PlatformCodeChef))
	assert.Equal(t, 100*time.Millisecond, s.interval(models.PlatformGitHub))

	s = NewMemoryStore(Config{DefaultInterval: time.Second}, zerolog.Nop()).(*memoryStore)
	assert.Equal(t, time.Second, s.interval(models.PlatformCodeChef))
}
