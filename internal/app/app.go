package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/algolog/stats-service/internal/aggregator"
	"github.com/algolog/stats-service/internal/config"
	"github.com/algolog/stats-service/internal/delivery/httpd"
	"github.com/algolog/stats-service/internal/fetcher"
	"github.com/algolog/stats-service/internal/models"
	"github.com/algolog/stats-service/internal/parser"
	"github.com/algolog/stats-service/internal/repository"
	"github.com/algolog/stats-service/internal/scheduler"
	"github.com/algolog/stats-service/internal/service"
	"github.com/algolog/stats-service/internal/throttle"
	"github.com/algolog/stats-service/internal/worker"
	"github.com/algolog/stats-service/internal/worker/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type App struct {
	server         *http.Server
	logger         zerolog.Logger
	config         *config.Config
	db             *sql.DB
	scheduler      scheduler.Scheduler
	refetchService service.RefetchService
	refetchWorker  worker.RefetchWorker
	cronTrigger    *scheduler.CronTrigger
	rabbitMQRepo   repository.RabbitMQRepository
	cancel         context.CancelFunc
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	studentRepo := repository.NewStudentRepository(db, log)
	attemptRepo := repository.NewAttemptRepository(db, log)

	store := throttle.NewMemoryStore(throttleConfig(cfg), log.With().Str("component", "throttle").Logger())

	f := fetcher.New(fetcherConfig(cfg), store, log.With().Str("component", "fetcher").Logger())

	var archive aggregator.RawArchive
	if cfg.Storage.Enabled {
		rawRepo, err := repository.NewRawArchiveRepository(
			cfg.Storage.Endpoint,
			cfg.Storage.AccessKey,
			cfg.Storage.SecretKey,
			cfg.Storage.Bucket,
			cfg.Storage.Region,
			cfg.Storage.UseSSL,
			log,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create raw archive: %w", err)
		}
		archive = rawRepo
	}

	if !cfg.GitHubConfigured() {
		log.Warn().Msg("GitHub token not configured, github stats will not be refreshed")
	}

	agg := aggregator.New(f, parser.DefaultRegistry(), store, archive, aggregator.Config{
		Platforms:           cfg.EnabledPlatforms(),
		PlatformConcurrency: cfg.Aggregator.PlatformConcurrency,
	}, log.With().Str("component", "aggregator").Logger())

	a := &App{
		logger: log,
		config: cfg,
		db:     db,
	}

	var events scheduler.EventPublisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQRepo, err := repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
		if err != nil {
			return nil, err
		}
		a.rabbitMQRepo = rabbitMQRepo

		if err := rabbitMQRepo.SetupQueue(
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.RefetchQueue,
			cfg.RabbitMQ.RefetchRoutingKey,
		); err != nil {
			rabbitMQRepo.Close()
			return nil, err
		}
		events = queue.NewStatsEventPublisher(rabbitMQRepo, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.StatsRoutingKey)
	}

	a.scheduler = scheduler.New(agg, studentRepo, attemptRepo, events, scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		StudentTimeout: cfg.Scheduler.StudentTimeout,
	}, log.With().Str("component", "scheduler").Logger())

	a.refetchService = service.NewRefetchService(a.scheduler, studentRepo, attemptRepo, store, log)

	if a.rabbitMQRepo != nil {
		consumer := queue.NewRabbitMQConsumer(
			a.rabbitMQRepo.Channel(),
			cfg.RabbitMQ.RefetchQueue,
			cfg.RabbitMQ.ConsumerTag,
			cfg.RabbitMQ.PrefetchCount,
			log,
		)
		a.refetchWorker = worker.NewRefetchWorker(
			scheduler.NewWorkerPool(cfg.RabbitMQ.Workers, log),
			consumer,
			a.refetchService,
			log.With().Str("component", "refetch_worker").Logger(),
		)
	}

	if cfg.Scheduler.Enabled {
		trigger, err := scheduler.NewCronTrigger(a.scheduler, cfg.Scheduler.Cron, log)
		if err != nil {
			a.closeBroker()
			return nil, err
		}
		a.cronTrigger = trigger
	}

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      newRouter(cfg, httpd.NewHandler(a.refetchService, log), log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

func newRouter(cfg *config.Config, handler *httpd.Handler, log zerolog.Logger) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(httpd.Recovery(log))
	router.Use(httpd.RequestLogger(log))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)
	return router
}

func throttleConfig(cfg *config.Config) throttle.Config {
	intervals := make(map[models.Platform]time.Duration, len(throttle.DefaultIntervals))
	for p, d := range throttle.DefaultIntervals {
		intervals[p] = d
	}
	for _, p := range models.AllPlatforms {
		if d := cfg.Platform(p).MinInterval; d > 0 {
			intervals[p] = d
		}
	}
	return throttle.Config{
		DefaultInterval: cfg.Throttle.DefaultInterval,
		Intervals:       intervals,
		BackoffBase:     cfg.Throttle.BackoffBase,
		BackoffMax:      cfg.Throttle.BackoffMax,
	}
}

func fetcherConfig(cfg *config.Config) fetcher.Config {
	retry := fetcher.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Fetcher.MaxAttempts
	if cfg.Fetcher.BackoffBase > 0 {
		retry.BackoffBase = cfg.Fetcher.BackoffBase
	}

	baseURLs := make(map[models.Platform]string)
	for _, p := range models.AllPlatforms {
		if u := cfg.Platform(p).BaseURL; u != "" {
			baseURLs[p] = u
		}
	}

	return fetcher.Config{
		Timeout:          cfg.Fetcher.Timeout,
		UserAgent:        cfg.Fetcher.UserAgent,
		Retry:            retry,
		BaseURLs:         baseURLs,
		GitHubToken:      cfg.Platform(models.PlatformGitHub).Token,
		CodeforcesKey:    cfg.Platform(models.PlatformCodeforces).APIKey,
		CodeforcesSecret: cfg.Platform(models.PlatformCodeforces).APISecret,
	}
}

// Run starts the background consumers and serves HTTP until Shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.refetchWorker != nil {
		if err := a.refetchWorker.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Failed to start refetch worker")
			return err
		}
	}
	if a.cronTrigger != nil {
		a.cronTrigger.Start(ctx)
	}

	a.logger.Info().Msgf("Starting stats service on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunBatch runs one batch in the foreground and returns its summary.
func (a *App) RunBatch(ctx context.Context, filter models.StudentFilter) (*models.BatchResult, error) {
	defer a.closeBroker()
	return a.scheduler.RunBatch(ctx, filter, models.BatchOptions{})
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down stats service...")

	serverErr := a.server.Shutdown(ctx)
	if serverErr != nil {
		a.logger.Error().Err(serverErr).Msg("Failed to shutdown HTTP server")
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.cronTrigger != nil {
		a.cronTrigger.Stop()
	}
	if a.refetchWorker != nil {
		if err := a.refetchWorker.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to stop refetch worker")
		}
	}
	a.refetchService.Close()
	a.closeBroker()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	a.logger.Info().Msg("Stats service stopped")
	return serverErr
}

func (a *App) closeBroker() {
	if a.rabbitMQRepo == nil {
		return
	}
	if err := a.rabbitMQRepo.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
	}
	a.rabbitMQRepo = nil
}
