package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/algolog/stats-service/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScheduler struct {
	Scheduler
	runs int
	err  error
}

func (r *recordingScheduler) RunBatch(ctx context.Context, filter models.StudentFilter, opts models.BatchOptions) (*models.BatchResult, error) {
	r.runs++
	if r.err != nil {
		return nil, r.err
	}
	return &models.BatchResult{BatchID: "b1"}, nil
}

func TestNewCronTrigger_RejectsInvalidSpec(t *testing.T) {
	_, err := NewCronTrigger(&recordingScheduler{}, "every day", zerolog.Nop())
	assert.Error(t, err)
}

func TestNewCronTrigger_DefaultsToMidnight(t *testing.T) {
	trigger, err := NewCronTrigger(&recordingScheduler{}, "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultCronSpec, trigger.spec)
	assert.Len(t, trigger.cron.Entries(), 1)
}

func TestCronTrigger_FireRunsBatch(t *testing.T) {
	rec := &recordingScheduler{}
	trigger, err := NewCronTrigger(rec, "*/5 * * * *", zerolog.Nop())
	require.NoError(t, err)

	trigger.Start(context.Background())
	trigger.fire()
	rec.err = errors.New("roster unavailable")
	trigger.fire()
	trigger.Stop()

	assert.Equal(t, 2, rec.runs)
}
