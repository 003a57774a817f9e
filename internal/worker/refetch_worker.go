package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/algolog/stats-service/internal/models"
	"github.com/algolog/stats-service/internal/scheduler"
	"github.com/algolog/stats-service/internal/service"
	"github.com/algolog/stats-service/internal/worker/queue"
	"github.com/rs/zerolog"
)

type Refetcher interface {
	RefetchOne(ctx context.Context, studentID string) (*models.RefetchOneResponse, error)
}

type RefetchWorker interface {
	Start(ctx context.Context) error
	Stop() error
	GetStats() WorkerStats
}

type WorkerStats struct {
	ActiveWorkers  int `json:"active_workers"`
	TotalProcessed int `json:"total_processed"`
	PartialResults int `json:"partial_results"`
	Rejected       int `json:"rejected"`
	FailedJobs     int `json:"failed_jobs"`
	QueueLength    int `json:"queue_length"`
}

type refetchWorker struct {
	workerPool    *scheduler.WorkerPool
	queueConsumer queue.RabbitMQConsumer
	refetcher     Refetcher
	logger        zerolog.Logger
	stats         WorkerStats
	statsMutex    sync.RWMutex
	startTime     time.Time
	started       bool
	done          chan struct{}
}

// NewRefetchWorker consumes refetch.requested messages and refetches one
// student per message.
func NewRefetchWorker(
	workerPool *scheduler.WorkerPool,
	queueConsumer queue.RabbitMQConsumer,
	refetcher Refetcher,
	logger zerolog.Logger,
) RefetchWorker {
	return &refetchWorker{
		workerPool:    workerPool,
		queueConsumer: queueConsumer,
		refetcher:     refetcher,
		logger:        logger,
		startTime:     time.Now(),
		done:          make(chan struct{}),
	}
}

func (w *refetchWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting refetch worker...")

	w.workerPool.Start()

	msgs, err := w.queueConsumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	w.started = true
	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Refetch worker started")
	return nil
}

func (w *refetchWorker) Stop() error {
	w.logger.Info().Msg("Stopping refetch worker...")
	if !w.started {
		w.workerPool.Stop()
		return nil
	}

	if err := w.queueConsumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}
	<-w.done
	w.workerPool.Stop()

	w.statsMutex.RLock()
	defer w.statsMutex.RUnlock()
	w.logger.Info().
		Int("total_processed", w.stats.TotalProcessed).
		Int("failed_jobs", w.stats.FailedJobs).
		Dur("uptime", time.Since(w.startTime)).
		Msg("Refetch worker stopped")

	return nil
}

func (w *refetchWorker) processMessages(ctx context.Context, msgs <-chan queue.RabbitMQMessage) {
	defer close(w.done)
	for msg := range msgs {
		msg := msg
		err := w.workerPool.Submit(ctx, func() {
			w.handle(ctx, msg)
		})
		if err != nil {
			if nackErr := msg.Nack(false, true); nackErr != nil {
				w.logger.Error().Err(nackErr).Msg("Failed to nack message")
			}
		}
	}
}

func (w *refetchWorker) handle(ctx context.Context, msg queue.RabbitMQMessage) {
	err := w.processMessage(ctx, msg)

	w.statsMutex.Lock()
	switch {
	case err == nil:
		w.stats.TotalProcessed++
	case isPermanentError(err):
		w.stats.Rejected++
	default:
		w.stats.FailedJobs++
	}
	w.statsMutex.Unlock()

	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}

	w.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to process refetch request")
	if isPermanentError(err) {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}
	if nackErr := msg.Nack(false, !msg.Redelivered); nackErr != nil {
		w.logger.Error().Err(nackErr).Msg("Failed to nack message")
	}
}

func (w *refetchWorker) processMessage(ctx context.Context, msg queue.RabbitMQMessage) error {
	var event models.RefetchRequestedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return permanent(fmt.Errorf("failed to unmarshal event: %w", err))
	}
	if strings.TrimSpace(event.StudentID) == "" {
		return permanent(errors.New("empty student_id"))
	}

	w.logger.Info().
		Str("student_id", event.StudentID).
		Str("requested_by", event.RequestedBy).
		Msg("Processing refetch request")

	resp, err := w.refetcher.RefetchOne(ctx, event.StudentID)
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrStudentNotFound):
		return permanent(err)
	case errors.Is(err, service.ErrInProgress):
		w.logger.Info().Str("student_id", event.StudentID).Msg("Refetch already running, request dropped")
		return nil
	case err != nil:
		return err
	}

	if resp.Status == models.RefetchStatusPartialFailure {
		w.statsMutex.Lock()
		w.stats.PartialResults++
		w.statsMutex.Unlock()
	}
	return nil
}

func (w *refetchWorker) GetStats() WorkerStats {
	w.statsMutex.Lock()
	defer w.statsMutex.Unlock()

	queueLength, err := w.queueConsumer.QueueLength()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to get queue length")
	} else {
		w.stats.QueueLength = queueLength
	}
	w.stats.ActiveWorkers = w.workerPool.ActiveWorkers()

	return w.stats
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
