package scheduler

import (
	"context"
	"fmt"

	"github.com/algolog/stats-service/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const DefaultCronSpec = "0 0 * * *"

// CronTrigger runs a full batch on a cron schedule. Overlapping runs are
// skipped, never queued.
type CronTrigger struct {
	cron      *cron.Cron
	scheduler Scheduler
	spec      string
	filter    models.StudentFilter
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewCronTrigger(s Scheduler, spec string, logger zerolog.Logger) (*CronTrigger, error) {
	if spec == "" {
		spec = DefaultCronSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	cl := cronLogger{logger: logger}
	t := &CronTrigger{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		scheduler: s,
		spec:      spec,
		logger:    logger,
	}
	if _, err := t.cron.AddFunc(spec, t.fire); err != nil {
		return nil, fmt.Errorf("failed to register cron job: %w", err)
	}
	return t, nil
}

func (t *CronTrigger) Start(ctx context.Context) {
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.cron.Start()
	t.logger.Info().Str("spec", t.spec).Msg("Batch cron trigger started")
}

// Stop cancels a running batch and waits for it to return.
func (t *CronTrigger) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	<-t.cron.Stop().Done()
	t.logger.Info().Msg("Batch cron trigger stopped")
}

func (t *CronTrigger) fire() {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := t.scheduler.RunBatch(ctx, t.filter, models.BatchOptions{})
	if err != nil {
		t.logger.Error().Err(err).Msg("Scheduled batch failed")
		return
	}
	t.logger.Debug().
		Str("batch_id", result.BatchID).
		Int("succeeded", result.Succeeded).
		Msg("Scheduled batch finished")
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
