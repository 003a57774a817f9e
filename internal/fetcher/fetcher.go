package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/algolog/stats-service/internal/models"
	"github.com/rs/zerolog"
)

var DefaultBaseURLs = map[models.Platform]string{
	models.PlatformLeetCode:   "https://leetcode.com",
	models.PlatformCodeforces: "https://codeforces.com",
	models.PlatformCodeChef:   "https://www.codechef.com",
	models.PlatformHackerRank: "https://www.hackerrank.com",
	models.PlatformSkillRack:  "",
	models.PlatformGitHub:     "https://api.github.com",
}

type Config struct {
	Timeout          time.Duration
	UserAgent        string
	Retry            RetryPolicy
	BaseURLs         map[models.Platform]string
	GitHubToken      string
	CodeforcesKey    string
	CodeforcesSecret string
}

// Pacer spaces requests per platform. A non-context error from Wait means
// the platform is backing off and the fetch is deferred.
type Pacer interface {
	Wait(ctx context.Context, platform models.Platform) error
}

type sourceFunc func(ctx context.Context, handle string) (*models.RawResponse, error)

type Fetcher struct {
	client  *Client
	pacer   Pacer
	config  Config
	logger  zerolog.Logger
	sources map[models.Platform]sourceFunc

	randMu sync.Mutex
	rand   *rand.Rand
	now    func() time.Time
}

func New(cfg Config, pacer Pacer, logger zerolog.Logger) *Fetcher {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	baseURLs := make(map[models.Platform]string, len(DefaultBaseURLs))
	for p, u := range DefaultBaseURLs {
		baseURLs[p] = u
	}
	for p, u := range cfg.BaseURLs {
		if u != "" {
			baseURLs[p] = u
		}
	}
	cfg.BaseURLs = baseURLs

	f := &Fetcher{
		client: NewClient(cfg.Timeout, cfg.UserAgent, logger),
		pacer:  pacer,
		config: cfg,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
	f.sources = map[models.Platform]sourceFunc{
		models.PlatformLeetCode:   f.fetchLeetCode,
		models.PlatformCodeforces: f.fetchCodeforces,
		models.PlatformCodeChef:   f.fetchCodeChef,
		models.PlatformHackerRank: f.fetchHackerRank,
		models.PlatformSkillRack:  f.fetchSkillRack,
		models.PlatformGitHub:     f.fetchGitHub,
	}
	return f
}

// Fetch retrieves the raw profile payload for one handle, applying the
// retry policy. It returns the number of retries it spent alongside the
// result so callers can record the attempt.
func (f *Fetcher) Fetch(ctx context.Context, platform models.Platform, handle string) (*models.RawResponse, int, error) {
	source, ok := f.sources[platform]
	if !ok {
		return nil, 0, fmt.Errorf("no fetcher registered for platform %q", platform)
	}

	normalized, err := NormalizeHandle(platform, handle)
	if err != nil {
		return nil, 0, err
	}

	var raw *models.RawResponse
	retries, err := f.config.Retry.Do(ctx, func(ctx context.Context) error {
		r, err := source(ctx, normalized)
		if err != nil {
			if f.config.Retry.ShouldRetry(err) {
				f.logger.Warn().
					Err(err).
					Str("platform", platform.String()).
					Str("handle", normalized).
					Msg("Transient fetch failure")
			}
			return err
		}
		raw = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			var fe *Error
			if !errors.As(err, &fe) {
				err = newError(platform, KindCancelled, 0, err)
			}
		}
		return nil, retries, err
	}

	raw.Platform = platform
	raw.Handle = normalized
	raw.FetchedAt = f.now()
	return raw, retries, nil
}

// exchange paces, sends and classifies one upstream call. inspect may map a
// platform specific body onto an error before the generic status rules run.
func (f *Fetcher) exchange(ctx context.Context, r request, inspect func(*response) error) (*response, error) {
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx, r.platform); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, newError(r.platform, KindCancelled, 0, err)
			}
			return nil, newError(r.platform, KindDeferred, 0, err)
		}
	}

	resp, err := f.client.do(ctx, r)
	if err != nil {
		return nil, err
	}

	if inspect != nil {
		if err := inspect(resp); err != nil {
			return nil, err
		}
	}

	if err := classifyStatus(r.platform, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Fetcher) baseURL(p models.Platform) string {
	return f.config.BaseURLs[p]
}

func (f *Fetcher) randomToken(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	f.randMu.Lock()
	defer f.randMu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[f.rand.Intn(len(alphabet))]
	}
	return string(b)
}
