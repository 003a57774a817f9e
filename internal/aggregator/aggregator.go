package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/algolog/stats-service/internal/fetcher"
	"github.com/algolog/stats-service/internal/models"
	"github.com/algolog/stats-service/internal/parser"
	"github.com/algolog/stats-service/internal/throttle"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInProgress = errors.New("aggregation already in progress for student")

type Fetcher interface {
	Fetch(ctx context.Context, platform models.Platform, handle string) (*models.RawResponse, int, error)
}

type Parser interface {
	Parse(platform models.Platform, raw *models.RawResponse) (*models.PlatformStats, error)
}

// RawArchive keeps payloads that failed to parse for later inspection.
type RawArchive interface {
	Archive(ctx context.Context, attempt models.FetchAttempt, raw *models.RawResponse) error
}

type Aggregator interface {
	// Acquire claims the student for the caller until release is called.
	// It fails with ErrInProgress while another claim is held.
	Acquire(studentID string) (release func(), err error)
	// Collect runs the pipelines for a student the caller has acquired.
	Collect(ctx context.Context, student *models.Student, scope *RunScope) *models.AggregateResult
	Aggregate(ctx context.Context, student *models.Student, scope *RunScope) (*models.AggregateResult, error)
	InFlight(studentID string) bool
}

type Config struct {
	Platforms           []models.Platform
	PlatformConcurrency int
}

type aggregator struct {
	fetcher  Fetcher
	parser   Parser
	throttle throttle.Store
	archive  RawArchive
	config   Config
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(f Fetcher, p Parser, t throttle.Store, archive RawArchive, cfg Config, logger zerolog.Logger) Aggregator {
	if cfg.Platforms == nil {
		cfg.Platforms = models.AllPlatforms
	}
	if cfg.PlatformConcurrency <= 0 {
		cfg.PlatformConcurrency = len(cfg.Platforms)
	}
	return &aggregator{
		fetcher:  f,
		parser:   p,
		throttle: t,
		archive:  archive,
		config:   cfg,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

func (a *aggregator) Acquire(studentID string) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inflight[studentID]; busy {
		return nil, ErrInProgress
	}
	a.inflight[studentID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.inflight, studentID)
		})
	}, nil
}

func (a *aggregator) InFlight(studentID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, busy := a.inflight[studentID]
	return busy
}

type pipelineResult struct {
	platform models.Platform
	stats    *models.PlatformStats
	attempt  models.FetchAttempt
	warnings []string
}

// Aggregate runs every platform pipeline for one student concurrently and
// merges the successes over the student's current stats. Platform failures
// are reported in the result, never as an error. The only error is
// ErrInProgress when another run for the same student has not finished.
// Callers that also persist the result should Acquire and Collect instead,
// keeping the claim until the write is done.
func (a *aggregator) Aggregate(ctx context.Context, student *models.Student, scope *RunScope) (*models.AggregateResult, error) {
	release, err := a.Acquire(student.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	return a.Collect(ctx, student, scope), nil
}

func (a *aggregator) Collect(ctx context.Context, student *models.Student, scope *RunScope) *models.AggregateResult {
	start := time.Now()
	results := make([]pipelineResult, len(a.config.Platforms))
	sem := make(chan struct{}, a.config.PlatformConcurrency)

	var wg sync.WaitGroup
	for i, p := range a.config.Platforms {
		wg.Add(1)
		go func(i int, p models.Platform) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = a.runPipeline(ctx, student, p, scope)
		}(i, p)
	}
	wg.Wait()

	merged := student.Stats.Clone()
	res := &models.AggregateResult{
		StudentID: student.ID,
		Stats:     merged,
		Updated:   []models.Platform{},
		Failures:  map[models.Platform]models.Outcome{},
		Details:   map[models.Platform]string{},
		Anomalies: map[models.Platform][]string{},
	}

	for _, r := range results {
		res.Attempts = append(res.Attempts, r.attempt)
		if r.stats == nil {
			res.Failures[r.platform] = r.attempt.Outcome
			if r.attempt.Detail != "" {
				res.Details[r.platform] = r.attempt.Detail
			}
			continue
		}
		if anomalies := DetectAnomalies(student.Stats[r.platform], r.stats); len(anomalies) > 0 {
			res.Anomalies[r.platform] = anomalies
		}
		res.Warnings = append(res.Warnings, r.warnings...)
		merged[r.platform] = r.stats
		res.Updated = append(res.Updated, r.platform)
	}
	res.Duration = time.Since(start)

	a.logger.Info().
		Str("student_id", student.ID).
		Int("updated", len(res.Updated)).
		Int("failed", len(res.Failures)).
		Dur("duration", res.Duration).
		Msg("Aggregation completed")

	for p, anomalies := range res.Anomalies {
		a.logger.Warn().
			Str("student_id", student.ID).
			Str("platform", p.String()).
			Strs("anomalies", anomalies).
			Msg("Stats anomaly detected")
	}

	return res
}

func (a *aggregator) runPipeline(ctx context.Context, student *models.Student, p models.Platform, scope *RunScope) pipelineResult {
	attempt := models.FetchAttempt{
		ID:        uuid.New().String(),
		Platform:  p,
		StudentID: student.ID,
		Handle:    student.Handles[p],
		StartedAt: time.Now(),
	}
	result := pipelineResult{platform: p}
	finish := func(outcome models.Outcome, err error) pipelineResult {
		attempt.Outcome = outcome
		attempt.DurationMS = time.Since(attempt.StartedAt).Milliseconds()
		if err != nil {
			attempt.Detail = err.Error()
		}
		result.attempt = attempt
		return result
	}

	handle, err := fetcher.NormalizeHandle(p, attempt.Handle)
	if err != nil {
		return finish(models.OutcomeInvalidHandle, err)
	}
	attempt.Handle = handle

	if ctx.Err() != nil {
		return finish(models.OutcomeCancelled, ctx.Err())
	}
	if scope.Deferred(p) {
		return finish(models.OutcomeDeferred, errors.New("platform deferred for the rest of this run"))
	}
	if !a.throttle.ShouldFetch(p) {
		return finish(models.OutcomeDeferred, throttle.ErrBackoff)
	}

	raw, retries, err := a.fetcher.Fetch(ctx, p, handle)
	attempt.RetryCount = retries
	if err != nil {
		outcome := fetcher.OutcomeOf(err)
		switch outcome {
		case models.OutcomeRateLimited:
			a.throttle.RecordOutcome(p, outcome)
			scope.Defer(p)
		case models.OutcomeDeferred, models.OutcomeCancelled:
		default:
			a.throttle.RecordOutcome(p, outcome)
		}
		a.logger.Warn().
			Err(err).
			Str("student_id", student.ID).
			Str("platform", p.String()).
			Str("handle", handle).
			Str("outcome", outcome.String()).
			Int("retries", retries).
			Msg("Platform fetch failed")
		return finish(outcome, err)
	}
	a.throttle.RecordOutcome(p, models.OutcomeSuccess)

	stats, err := a.parser.Parse(p, raw)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("student_id", student.ID).
			Str("platform", p.String()).
			Str("handle", handle).
			Msg("Platform payload could not be parsed")
		res := finish(models.OutcomeParseError, err)
		if a.archive != nil && parser.IsParseError(err) {
			if archErr := a.archive.Archive(context.WithoutCancel(ctx), res.attempt, raw); archErr != nil {
				a.logger.Warn().Err(archErr).Str("platform", p.String()).Msg("Failed to archive raw payload")
			}
		}
		return res
	}

	result.stats = stats
	result.warnings = Validate(stats)
	return finish(models.OutcomeSuccess, nil)
}
