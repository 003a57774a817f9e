package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/algolog/stats-service/internal/models"
	"github.com/algolog/stats-service/internal/scheduler"
	"github.com/algolog/stats-service/internal/service"
	"github.com/algolog/stats-service/internal/worker/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanConsumer struct {
	msgs chan queue.RabbitMQMessage
	once sync.Once
}

func (c *chanConsumer) Consume(ctx context.Context) (<-chan queue.RabbitMQMessage, error) {
	return c.msgs, nil
}

func (c *chanConsumer) QueueLength() (int, error) { return len(c.msgs), nil }

func (c *chanConsumer) Close() error {
	c.once.Do(func() { close(c.msgs) })
	return nil
}

type refetcherFunc func(ctx context.Context, studentID string) (*models.RefetchOneResponse, error)

func (f refetcherFunc) RefetchOne(ctx context.Context, studentID string) (*models.RefetchOneResponse, error) {
	return f(ctx, studentID)
}

type delivery struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (d *delivery) message(body string, redelivered bool) queue.RabbitMQMessage {
	return queue.RabbitMQMessage{
		Body:        []byte(body),
		Redelivered: redelivered,
		Ack: func(bool) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.acked = true
			return nil
		},
		Nack: func(_ bool, requeue bool) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.nacked = true
			d.requeue = requeue
			return nil
		},
	}
}

func runWorker(t *testing.T, refetcher Refetcher, msgs ...queue.RabbitMQMessage) RefetchWorker {
	t.Helper()
	consumer := &chanConsumer{msgs: make(chan queue.RabbitMQMessage, len(msgs))}
	for _, m := range msgs {
		consumer.msgs <- m
	}

	w := NewRefetchWorker(scheduler.NewWorkerPool(2, zerolog.Nop()), consumer, refetcher, zerolog.Nop())
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	return w
}

func TestRefetchWorker_AcksAndNacks(t *testing.T) {
	const (
		okID        = "11111111-1111-1111-1111-111111111111"
		partialID   = "22222222-2222-2222-2222-222222222222"
		missingID   = "33333333-3333-3333-3333-333333333333"
		busyID      = "44444444-4444-4444-4444-444444444444"
		brokenID    = "55555555-5555-5555-5555-555555555555"
		redelivered = "66666666-6666-6666-6666-666666666666"
	)

	refetcher := refetcherFunc(func(ctx context.Context, id string) (*models.RefetchOneResponse, error) {
		switch id {
		case okID:
			return &models.RefetchOneResponse{Status: models.RefetchStatusOK}, nil
		case partialID:
			return &models.RefetchOneResponse{Status: models.RefetchStatusPartialFailure}, nil
		case missingID:
			return nil, service.ErrStudentNotFound
		case busyID:
			return nil, service.ErrInProgress
		case "bogus":
			return nil, fmt.Errorf("%w: invalid student id", service.ErrValidation)
		}
		return nil, fmt.Errorf("%w: connection refused", service.ErrSystem)
	})

	cases := []struct {
		name        string
		body        string
		redelivered bool
		ack         bool
		requeue     bool
	}{
		{name: "success", body: `{"student_id":"` + okID + `"}`, ack: true},
		{name: "partial failure", body: `{"student_id":"` + partialID + `"}`, ack: true},
		{name: "unknown student", body: `{"student_id":"` + missingID + `"}`, ack: true},
		{name: "in progress", body: `{"student_id":"` + busyID + `"}`, ack: true},
		{name: "invalid id", body: `{"student_id":"bogus"}`, ack: true},
		{name: "malformed json", body: `{"student_id":`, ack: true},
		{name: "empty id", body: `{"student_id":"  "}`, ack: true},
		{name: "system error", body: `{"student_id":"` + brokenID + `"}`, requeue: true},
		{name: "system error on redelivery", body: `{"student_id":"` + redelivered + `"}`, redelivered: true},
	}

	deliveries := make([]*delivery, len(cases))
	msgs := make([]queue.RabbitMQMessage, len(cases))
	for i, c := range cases {
		deliveries[i] = &delivery{}
		msgs[i] = deliveries[i].message(c.body, c.redelivered)
	}

	w := runWorker(t, refetcher, msgs...)

	for i, c := range cases {
		d := deliveries[i]
		assert.Equal(t, c.ack, d.acked, c.name)
		assert.Equal(t, !c.ack, d.nacked, c.name)
		assert.Equal(t, c.requeue, d.requeue, c.name)
	}

	stats := w.GetStats()
	assert.Equal(t, 3, stats.TotalProcessed)
	assert.Equal(t, 1, stats.PartialResults)
	assert.Equal(t, 4, stats.Rejected)
	assert.Equal(t, 2, stats.FailedJobs)
}

func TestPermanentError(t *testing.T) {
	base := errors.New("bad payload")
	err := fmt.Errorf("wrapped: %w", permanent(base))

	assert.True(t, isPermanentError(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, isPermanentError(base))
}
