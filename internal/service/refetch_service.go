package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/algolog/stats-service/internal/aggregator"
	"github.com/algolog/stats-service/internal/models"
	"github.com/algolog/stats-service/internal/repository"
	"github.com/algolog/stats-service/internal/scheduler"
	"github.com/algolog/stats-service/internal/throttle"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultAttemptLimit = 50
	maxAttemptLimit     = 500
	defaultHealthWindow = 72 * time.Hour
)

type RefetchService interface {
	RefetchOne(ctx context.Context, studentID string) (*models.RefetchOneResponse, error)
	// RefetchAll resolves the roster and returns at once; the batch keeps
	// running in the background until it finishes or Close is called.
	RefetchAll(ctx context.Context, filter models.StudentFilter) (*models.RefetchAllResponse, error)
	GetAttempts(ctx context.Context, studentID string, limit int) ([]models.FetchAttempt, error)
	GetThrottleState() map[models.Platform]models.ThrottleState
	GetPlatformHealth(ctx context.Context, window time.Duration) ([]models.PlatformHealth, error)
	GetServiceStatus(ctx context.Context) (*models.HealthCheckResponse, error)
	Close()
}

type refetchService struct {
	scheduler   scheduler.Scheduler
	studentRepo repository.StudentRepository
	attemptRepo repository.AttemptRepository
	throttle    throttle.Store
	logger      zerolog.Logger
	startTime   time.Time

	batchCtx    context.Context
	cancelBatch context.CancelFunc
	batches     sync.WaitGroup
}

func NewRefetchService(
	sched scheduler.Scheduler,
	studentRepo repository.StudentRepository,
	attemptRepo repository.AttemptRepository,
	store throttle.Store,
	logger zerolog.Logger,
) RefetchService {
	ctx, cancel := context.WithCancel(context.Background())
	return &refetchService{
		scheduler:   sched,
		studentRepo: studentRepo,
		attemptRepo: attemptRepo,
		throttle:    store,
		logger:      logger,
		startTime:   time.Now(),
		batchCtx:    ctx,
		cancelBatch: cancel,
	}
}

func (s *refetchService) RefetchOne(ctx context.Context, studentID string) (*models.RefetchOneResponse, error) {
	if err := validateStudentID(studentID); err != nil {
		return nil, err
	}

	res, err := s.scheduler.RefetchOne(ctx, studentID)
	switch {
	case errors.Is(err, repository.ErrStudentNotFound):
		return nil, ErrStudentNotFound
	case errors.Is(err, aggregator.ErrInProgress):
		return nil, ErrInProgress
	case err != nil:
		s.logger.Error().Err(err).Str("student_id", studentID).Msg("Refetch failed")
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}

	status := models.RefetchStatusOK
	if len(res.Failures) > 0 {
		status = models.RefetchStatusPartialFailure
	}

	s.logger.Info().
		Str("student_id", studentID).
		Str("status", string(status)).
		Int("updated", len(res.Updated)).
		Int("failed", len(res.Failures)).
		Dur("duration", res.Duration).
		Msg("Student refetched")

	return &models.RefetchOneResponse{
		Status:    status,
		StudentID: res.StudentID,
		Stats:     res.Stats,
		Updated:   res.Updated,
		Failures:  res.Failures,
		Details:   res.Details,
		Anomalies: res.Anomalies,
		Warnings:  res.Warnings,
		Duration:  res.Duration.Milliseconds(),
	}, nil
}

func (s *refetchService) RefetchAll(ctx context.Context, filter models.StudentFilter) (*models.RefetchAllResponse, error) {
	for _, id := range filter.IDs {
		if err := validateStudentID(id); err != nil {
			return nil, err
		}
	}

	batch, err := s.scheduler.Plan(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}

	s.batches.Add(1)
	go func() {
		defer s.batches.Done()
		s.scheduler.Run(s.batchCtx, batch, models.BatchOptions{})
	}()

	return &models.RefetchAllResponse{
		Status:   models.RefetchStatusAccepted,
		Accepted: len(batch.Roster),
		BatchID:  batch.ID,
	}, nil
}

func (s *refetchService) GetAttempts(ctx context.Context, studentID string, limit int) ([]models.FetchAttempt, error) {
	if err := validateStudentID(studentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultAttemptLimit
	}
	if limit > maxAttemptLimit {
		limit = maxAttemptLimit
	}

	student, err := s.studentRepo.GetStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}

	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	return attempts, nil
}

func (s *refetchService) GetThrottleState() map[models.Platform]models.ThrottleState {
	return s.throttle.Snapshot()
}

func (s *refetchService) GetPlatformHealth(ctx context.Context, window time.Duration) ([]models.PlatformHealth, error) {
	if window <= 0 {
		window = defaultHealthWindow
	}
	health, err := s.attemptRepo.Health(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystem, err)
	}
	return health, nil
}

func (s *refetchService) GetServiceStatus(ctx context.Context) (*models.HealthCheckResponse, error) {
	dbOK := s.studentRepo.Ping(ctx) == nil

	status := "healthy"
	if !dbOK {
		status = "degraded"
	}

	return &models.HealthCheckResponse{
		Status:    status,
		Database:  dbOK,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}, nil
}

// Close cancels background batches and waits for them to wind down.
func (s *refetchService) Close() {
	s.cancelBatch()
	s.batches.Wait()
}

func validateStudentID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid student id %q", ErrValidation, id)
	}
	return nil
}
