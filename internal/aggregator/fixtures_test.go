package aggregator

import (
	"context"
	"sync"

	"github.com/algolog/stats-service/internal/models"
)

var fixtureBodies = map[models.Platform]map[string]string{
	models.PlatformLeetCode: {"": `{"data":{"matchedUser":{"username":"alice",
		"submitStats":{"acSubmissionNum":[{"difficulty":"All","count":30},{"difficulty":"Easy","count":20},{"difficulty":"Medium","count":8},{"difficulty":"Hard","count":2}]},
		"badges":[],"userCalendar":{"streak":2,"totalActiveDays":40}},
		"userContestRanking":{"attendedContestsCount":1,"rating":1500.5,"globalRanking":1000,"topPercentage":50},
		"userContestRankingHistory":[]}}`},
	models.PlatformCodeforces: {
		"info":   `{"status":"OK","result":[{"handle":"alice","rating":1400,"maxRating":1500,"rank":"specialist","maxRank":"specialist"}]}`,
		"rating": `{"status":"OK","result":[{}]}`,
		"status": `{"status":"OK","result":[{"verdict":"OK","problem":{"contestId":1,"index":"A"}}]}`,
	},
	models.PlatformCodeChef:   {"": `<div class="rating-number">1600</div><h3>Total Problems Solved: 12</h3>`},
	models.PlatformHackerRank: {"": `<div class="hacker-badges"><div class="hacker-badge"><div class="badge-title">Java</div><i class="badge-star"></i></div></div>`},
	models.PlatformSkillRack:  {"": `<div class="statistic"><div class="value">10</div><div class="label">PROGRAMS SOLVED</div></div>`},
	models.PlatformGitHub:     {"": `{"data":{"user":{"login":"alice","repositories":{"totalCount":3,"nodes":[]},"contributionsCollection":{"contributionCalendar":{"totalContributions":90}}}}}`},
}

func fullHandles() map[models.Platform]string {
	return map[models.Platform]string{
		models.PlatformLeetCode:   "alice",
		models.PlatformCodeforces: "alice",
		models.PlatformCodeChef:   "alice",
		models.PlatformHackerRank: "alice",
		models.PlatformSkillRack:  "https://www.skillrack.com/profile/1/abc",
		models.PlatformGitHub:     "alice",
	}
}

func fixtureRaw(p models.Platform, handle string) *models.RawResponse {
	raw := &models.RawResponse{Platform: p, Handle: handle, StatusCode: 200}
	parts := fixtureBodies[p]
	if body, ok := parts[""]; ok {
		raw.Body = []byte(body)
		return raw
	}
	raw.Parts = map[string][]byte{}
	for k, v := range parts {
		raw.Parts[k] = []byte(v)
	}
	return raw
}

type fetchFunc func(ctx context.Context, handle string) (*models.RawResponse, int, error)

type fakeFetcher struct {
	mu        sync.Mutex
	overrides map[models.Platform]fetchFunc
	calls     map[models.Platform]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		overrides: map[models.Platform]fetchFunc{},
		calls:     map[models.Platform]int{},
	}
}

func (f *fakeFetcher) set(p models.Platform, fn fetchFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[p] = fn
}

func (f *fakeFetcher) count(p models.Platform) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[p]
}

func (f *fakeFetcher) Fetch(ctx context.Context, p models.Platform, handle string) (*models.RawResponse, int, error) {
	f.mu.Lock()
	f.calls[p]++
	fn := f.overrides[p]
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, handle)
	}
	return fixtureRaw(p, handle), 0, nil
}

type fakeArchive struct {
	mu       sync.Mutex
	attempts []models.FetchAttempt
}

func (a *fakeArchive) Archive(ctx context.Context, attempt models.FetchAttempt, raw *models.RawResponse) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, attempt)
	return nil
}
