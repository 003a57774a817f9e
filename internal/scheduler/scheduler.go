package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/algolog/stats-service/internal/aggregator"
	"github.com/algolog/stats-service/internal/models"
	"github.com/algolog/stats-service/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrPersistence = errors.New("failed to persist student stats")

// StudentStore is the slice of the student repository the scheduler needs.
type StudentStore interface {
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	SaveStats(ctx context.Context, id string, patch models.StatsDocument) error
	ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.RosterEntry, error)
	MarkClassUpdated(ctx context.Context, class models.ClassKey) error
}

type AttemptLog interface {
	Append(ctx context.Context, attempts []models.FetchAttempt) error
}

type EventPublisher interface {
	PublishStatsUpdated(ctx context.Context, event models.StatsUpdatedEvent) error
}

type Scheduler interface {
	// Plan resolves the roster for filter and assigns a batch ID.
	Plan(ctx context.Context, filter models.StudentFilter) (*Batch, error)
	Run(ctx context.Context, batch *Batch, opts models.BatchOptions) *models.BatchResult
	RunBatch(ctx context.Context, filter models.StudentFilter, opts models.BatchOptions) (*models.BatchResult, error)
	RefetchOne(ctx context.Context, studentID string) (*models.AggregateResult, error)
}

type Batch struct {
	ID     string
	Roster []models.RosterEntry
}

type Config struct {
	Workers        int
	StudentTimeout time.Duration
}

type scheduler struct {
	aggregator aggregator.Aggregator
	students   StudentStore
	attempts   AttemptLog
	events     EventPublisher
	config     Config
	logger     zerolog.Logger
}

// New builds a scheduler. attempts and events may be nil.
func New(agg aggregator.Aggregator, students StudentStore, attempts AttemptLog, events EventPublisher, cfg Config, logger zerolog.Logger) Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	return &scheduler{
		aggregator: agg,
		students:   students,
		attempts:   attempts,
		events:     events,
		config:     cfg,
		logger:     logger,
	}
}

func (s *scheduler) Plan(ctx context.Context, filter models.StudentFilter) (*Batch, error) {
	roster, err := s.students.ListStudents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return &Batch{ID: uuid.New().String(), Roster: roster}, nil
}

func (s *scheduler) RunBatch(ctx context.Context, filter models.StudentFilter, opts models.BatchOptions) (*models.BatchResult, error) {
	batch, err := s.Plan(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, batch, opts), nil
}

type studentOutcome struct {
	entry   models.RosterEntry
	result  *models.AggregateResult
	err     error
	skipped bool
}

// Run aggregates every student of batch on a bounded pool. Each student is
// persisted as soon as its aggregation finishes. Cancelling ctx stops
// dispatch; students already running finish and are persisted.
func (s *scheduler) Run(ctx context.Context, batch *Batch, opts models.BatchOptions) *models.BatchResult {
	workers := s.config.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	logger := s.logger.With().Str("batch_id", batch.ID).Logger()
	result := &models.BatchResult{
		BatchID:       batch.ID,
		Total:         len(batch.Roster),
		Failed:        map[string]map[models.Platform]models.Outcome{},
		PersistFailed: map[string]string{},
		Errors:        map[string]string{},
		StartedAt:     time.Now(),
	}

	logger.Info().
		Int("students", result.Total).
		Int("workers", workers).
		Msg("Batch started")

	pending := make(map[models.ClassKey]int)
	for _, entry := range batch.Roster {
		pending[entry.Class()]++
	}

	scope := aggregator.NewRunScope()
	outcomes := make(chan studentOutcome, workers)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			s.collect(ctx, result, pending, o, logger)
		}
	}()

	pool := NewWorkerPool(workers, logger)
	pool.Start()

	for i, entry := range batch.Roster {
		entry := entry
		err := pool.Submit(ctx, func() {
			o := studentOutcome{entry: entry}
			defer func() { outcomes <- o }()
			if ctx.Err() != nil {
				o.skipped = true
				return
			}
			o.result, o.err = s.process(ctx, batch.ID, entry.StudentID, scope)
		})
		if err != nil {
			result.Cancelled = true
			for _, rest := range batch.Roster[i:] {
				outcomes <- studentOutcome{entry: rest, skipped: true}
			}
			break
		}
	}

	pool.Stop()
	close(outcomes)
	<-collected

	if ctx.Err() != nil {
		result.Cancelled = true
	}
	result.CompletedAt = time.Now()
	s.logSummary(logger, result, scope)
	return result
}

func (s *scheduler) collect(ctx context.Context, result *models.BatchResult, pending map[models.ClassKey]int, o studentOutcome, logger zerolog.Logger) {
	id := o.entry.StudentID
	switch {
	case o.skipped:
		result.Skipped++
		return
	case errors.Is(o.err, aggregator.ErrInProgress):
		result.Skipped++
		logger.Debug().Str("student_id", id).Msg("Student already being refetched, skipped")
		return
	case errors.Is(o.err, ErrPersistence):
		result.PersistFailed[id] = o.err.Error()
	case o.err != nil:
		result.Errors[id] = o.err.Error()
	}

	if o.result != nil {
		result.PlatformsUpdated += len(o.result.Updated)
		result.PlatformErrors += len(o.result.Failures)
		if len(o.result.Failures) > 0 {
			result.Failed[id] = o.result.Failures
		} else if o.err == nil {
			result.Succeeded++
		}
	}

	class := o.entry.Class()
	pending[class]--
	if pending[class] == 0 {
		if err := s.students.MarkClassUpdated(context.WithoutCancel(ctx), class); err != nil {
			logger.Error().
				Err(err).
				Str("department", class.Department).
				Str("year", class.Year).
				Str("section", class.Section).
				Msg("Failed to mark class updated")
		}
	}
}

func (s *scheduler) RefetchOne(ctx context.Context, studentID string) (*models.AggregateResult, error) {
	return s.process(ctx, "", studentID, aggregator.NewRunScope())
}

// process aggregates one student and persists the updated platforms.
// Persistence runs detached from ctx so a cancelled batch never leaves a
// student half written.
func (s *scheduler) process(ctx context.Context, batchID, studentID string, scope *aggregator.RunScope) (*models.AggregateResult, error) {
	if s.config.StudentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.StudentTimeout)
		defer cancel()
	}

	// The claim spans load, fetch and write so two runs for one student
	// never interleave their saves.
	release, err := s.aggregator.Acquire(studentID)
	if err != nil {
		return nil, err
	}
	defer release()

	student, err := s.students.GetStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	if student == nil {
		return nil, repository.ErrStudentNotFound
	}

	res := s.aggregator.Collect(ctx, student, scope)
	return res, s.persist(context.WithoutCancel(ctx), batchID, res)
}

func (s *scheduler) persist(ctx context.Context, batchID string, res *models.AggregateResult) error {
	logger := s.logger.With().Str("student_id", res.StudentID).Logger()

	if s.attempts != nil {
		if err := s.attempts.Append(ctx, res.Attempts); err != nil {
			logger.Error().Err(err).Msg("Failed to append fetch attempts")
		}
	}

	if len(res.Updated) == 0 {
		return nil
	}

	patch := make(models.StatsDocument, len(res.Updated))
	for _, p := range res.Updated {
		patch[p] = res.Stats[p]
	}
	if err := s.students.SaveStats(ctx, res.StudentID, patch); err != nil {
		logger.Error().Err(err).Msg("Failed to save stats")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if s.events != nil {
		event := models.StatsUpdatedEvent{
			StudentID:        res.StudentID,
			BatchID:          batchID,
			UpdatedPlatforms: res.Updated,
			Failures:         res.Failures,
			UpdatedAt:        time.Now(),
		}
		if err := s.events.PublishStatsUpdated(ctx, event); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish stats updated event")
		}
	}
	return nil
}

func (s *scheduler) logSummary(logger zerolog.Logger, result *models.BatchResult, scope *aggregator.RunScope) {
	elapsed := result.CompletedAt.Sub(result.StartedAt)
	processed := result.Total - result.Skipped
	var avg time.Duration
	if processed > 0 {
		avg = elapsed / time.Duration(processed)
	}

	deferred := scope.DeferredPlatforms()
	names := make([]string, 0, len(deferred))
	for _, p := range deferred {
		names = append(names, p.String())
	}

	logger.Info().
		Int("total", result.Total).
		Int("succeeded", result.Succeeded).
		Int("failed", len(result.Failed)).
		Int("persist_failed", len(result.PersistFailed)).
		Int("errors", len(result.Errors)).
		Int("skipped", result.Skipped).
		Int("platforms_updated", result.PlatformsUpdated).
		Int("platform_errors", result.PlatformErrors).
		Strs("deferred_platforms", names).
		Bool("cancelled", result.Cancelled).
		Dur("duration", elapsed).
		Dur("avg_per_student", avg).
		Msg("Batch completed")
}
