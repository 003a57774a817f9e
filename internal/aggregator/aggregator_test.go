package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/algolog/stats-service/internal/fetcher"
	"github.com/algolog/stats-service/internal/models"
	"github.com/algolog/stats-service/internal/parser"
	"github.com/algolog/stats-service/internal/throttle"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	agg      Aggregator
	fetcher  *fakeFetcher
	throttle throttle.Store
	archive  *fakeArchive
}

func newHarness() *harness {
	h := &harness{
		fetcher:  newFakeFetcher(),
		throttle: throttle.NewMemoryStore(throttle.DefaultConfig(), zerolog.Nop()),
		archive:  &fakeArchive{},
	}
	h.agg = New(h.fetcher, parser.DefaultRegistry(), h.throttle, h.archive, Config{}, zerolog.Nop())
	return h
}

func newStudent(id string) *models.Student {
	return &models.Student{ID: id, Handles: fullHandles(), Stats: models.StatsDocument{}}
}

func failWith(kind fetcher.Kind, status int) fetchFunc {
	return func(ctx context.Context, handle string) (*models.RawResponse, int, error) {
		return nil, 0, &fetcher.Error{Platform: "", Kind: kind, Status: status}
	}
}

func TestAggregateAllSucceed(t *testing.T) {
	h := newHarness()
	res, err := h.agg.Aggregate(context.Background(), newStudent("s1"), nil)
	require.NoError(t, err)

	assert.Empty(t, res.Failures)
	assert.ElementsMatch(t, models.AllPlatforms, res.Updated)
	assert.Len(t, res.Attempts, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		require.NotNil(t, res.Stats[p], p)
		assert.Equal(t, p, res.Stats[p].Platform)
	}
	assert.Equal(t, 30, res.Stats[models.PlatformLeetCode].LeetCode.Solved.All)
}

func TestAggregateRetainsPriorOnFailure(t *testing.T) {
	h := newHarness()
	prior := models.NewCodeChefStats(&models.CodeChefStats{Username: "alice", Rating: 1700, FullySolved: 99})
	student := newStudent("s1")
	student.Stats[models.PlatformCodeChef] = prior

	h.fetcher.set(models.PlatformCodeChef, failWith(fetcher.KindNotFound, 404))

	res, err := h.agg.Aggregate(context.Background(), student, nil)
	require.NoError(t, err)

	assert.Equal(t, map[models.Platform]models.Outcome{models.PlatformCodeChef: models.OutcomeNotFound}, res.Failures)
	assert.Same(t, prior, res.Stats[models.PlatformCodeChef])
	require.NotNil(t, res.Stats[models.PlatformLeetCode])
	assert.Equal(t, 1500.5, res.Stats[models.PlatformLeetCode].LeetCode.Rating)
	assert.NotContains(t, res.Updated, models.PlatformCodeChef)
	assert.Same(t, prior, student.Stats[models.PlatformCodeChef], "input document untouched")
}

func TestAggregateNeverFetchedStaysAbsent(t *testing.T) {
	h := newHarness()
	h.fetcher.set(models.PlatformGitHub, failWith(fetcher.KindTimeout, 0))

	res, err := h.agg.Aggregate(context.Background(), newStudent("s1"), nil)
	require.NoError(t, err)
	_, present := res.Stats[models.PlatformGitHub]
	assert.False(t, present)
	assert.Equal(t, models.OutcomeTimeout, res.Failures[models.PlatformGitHub])
}

func TestAggregateHackerRankLayoutChange(t *testing.T) {
	h := newHarness()
	h.fetcher.set(models.PlatformHackerRank, func(ctx context.Context, handle string) (*models.RawResponse, int, error) {
		return &models.RawResponse{
			Platform: models.PlatformHackerRank,
			Handle:   handle,
			Body:     []byte(`<div class="badges-v2"><span class="badge">Java</span></div>`),
		}, 0, nil
	})

	res, err := h.agg.Aggregate(context.Background(), newStudent("s1"), nil)
	require.NoError(t, err)

	assert.Equal(t, map[models.Platform]models.Outcome{models.PlatformHackerRank: models.OutcomeParseError}, res.Failures)
	assert.Len(t, res.Updated, len(models.AllPlatforms)-1)
	assert.Contains(t, res.Details[models.PlatformHackerRank], "layout-changed")
	require.Len(t, h.archive.attempts, 1)
	assert.Equal(t, models.PlatformHackerRank, h.archive.attempts[0].Platform)
}

func TestAggregateInvalidHandleIsNotFetched(t *testing.T) {
	h := newHarness()
	student := newStudent("s1")
	student.Handles[models.PlatformSkillRack] = "alice"
	delete(student.Handles, models.PlatformGitHub)

	res, err := h.agg.Aggregate(context.Background(), student, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeInvalidHandle, res.Failures[models.PlatformSkillRack])
	assert.Equal(t, models.OutcomeInvalidHandle, res.Failures[models.PlatformGitHub])
	assert.Equal(t, 0, h.fetcher.count(models.PlatformSkillRack))
	assert.Equal(t, 0, h.fetcher.count(models.PlatformGitHub))
}

func TestAggregateRejectsConcurrentRunForSameStudent(t *testing.T) {
	h := newHarness()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.fetcher.set(models.PlatformLeetCode, func(ctx context.Context, handle string) (*models.RawResponse, int, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
		return fixtureRaw(models.PlatformLeetCode, handle), 0, nil
	})

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = h.agg.Aggregate(context.Background(), newStudent("s1"), nil)
	}()

	<-entered
	assert.True(t, h.agg.InFlight("s1"))
	_, err := h.agg.Aggregate(context.Background(), newStudent("s1"), nil)
	assert.ErrorIs(t, err, ErrInProgress)

	_, err = h.agg.Aggregate(context.Background(), newStudent("s2"), nil)
	assert.NoError(t, err, "other students are not blocked")

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.False(t, h.agg.InFlight("s1"))
	assert.Equal(t, 2, h.fetcher.count(models.PlatformLeetCode))
}

func TestAggregateIsIdempotent(t *testing.T) {
	h := newHarness()
	student := newStudent("s1")

	first, err := h.agg.Aggregate(context.Background(), student, nil)
	require.NoError(t, err)
	student.Stats = first.Stats

	second, err := h.agg.Aggregate(context.Background(), student, nil)
	require.NoError(t, err)

	for _, p := range models.AllPlatforms {
		a, err := json.Marshal(first.Stats[p])
		require.NoError(t, err)
		b, err := json.Marshal(second.Stats[p])
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), p)
	}
	assert.Empty(t, second.Anomalies)
}

func TestAggregateRateLimitDefersPlatform(t *testing.T) {
	h := newHarness()
	h.fetcher.set(models.PlatformCodeforces, failWith(fetcher.KindRateLimited, 429))
	scope := NewRunScope()

	res, err := h.agg.Aggregate(context.Background(), newStudent("s1"), scope)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRateLimited, res.Failures[models.PlatformCodeforces])
	assert.True(t, scope.Deferred(models.PlatformCodeforces))
	assert.False(t, h.throttle.ShouldFetch(models.PlatformCodeforces))

	res, err = h.agg.Aggregate(context.Background(), newStudent("s2"), scope)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDeferred, res.Failures[models.PlatformCodeforces])
	assert.Equal(t, 1, h.fetcher.count(models.PlatformCodeforces))
	assert.Len(t, res.Updated, len(models.AllPlatforms)-1)
}

func TestAggregateRunsPlatformsConcurrently(t *testing.T) {
	h := newHarness()
	delay := 100 * time.Millisecond
	for _, p := range models.AllPlatforms {
		p := p
		h.fetcher.set(p, func(ctx context.Context, handle string) (*models.RawResponse, int, error) {
			time.Sleep(delay)
			return fixtureRaw(p, handle), 0, nil
		})
	}

	start := time.Now()
	res, err := h.agg.Aggregate(context.Background(), newStudent("s1"), nil)
	require.NoError(t, err)
	assert.Len(t, res.Updated, len(models.AllPlatforms))
	assert.Less(t, time.Since(start), 4*delay)
}

func TestAggregateAnomalies(t *testing.T) {
	h := newHarness()
	student := newStudent("s1")
	student.Stats[models.PlatformLeetCode] = models.NewLeetCodeStats(&models.LeetCodeStats{
		Solved: models.LeetCodeSolved{All: 45},
	})

	res, err := h.agg.Aggregate(context.Background(), student, nil)
	require.NoError(t, err)
	require.Contains(t, res.Anomalies, models.PlatformLeetCode)
	assert.Equal(t, []string{"problems solved decreased by 15"}, res.Anomalies[models.PlatformLeetCode])
}

func TestAggregateEmptyPlatformSetFetchesNothing(t *testing.T) {
	h := newHarness()
	agg := New(h.fetcher, parser.DefaultRegistry(), h.throttle, nil, Config{Platforms: []models.Platform{}}, zerolog.Nop())

	res, err := agg.Aggregate(context.Background(), newStudent("s1"), nil)
	require.NoError(t, err)

	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Attempts)
	for _, p := range models.AllPlatforms {
		assert.Equal(t, 0, h.fetcher.count(p))
	}
}

func TestAcquireHoldsStudentUntilReleased(t *testing.T) {
	h := newHarness()

	release, err := h.agg.Acquire("s1")
	require.NoError(t, err)
	assert.True(t, h.agg.InFlight("s1"))

	_, err = h.agg.Acquire("s1")
	assert.ErrorIs(t, err, ErrInProgress)
	_, err = h.agg.Aggregate(context.Background(), newStudent("s1"), nil)
	assert.ErrorIs(t, err, ErrInProgress)

	res := h.agg.Collect(context.Background(), newStudent("s1"), nil)
	assert.Len(t, res.Updated, len(models.AllPlatforms))

	release()
	release()
	assert.False(t, h.agg.InFlight("s1"))

	again, err := h.agg.Acquire("s1")
	require.NoError(t, err)
	again()
}
