package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/algolog/stats-service/internal/app"
	"github.com/algolog/stats-service/internal/config"
	"github.com/algolog/stats-service/internal/database"
	"github.com/algolog/stats-service/internal/models"
	"github.com/algolog/stats-service/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		serve(cfg, log)
	case "migrate":
		direction := "up"
		if len(os.Args) > 2 {
			direction = os.Args[2]
		}
		runMigrations(cfg, log, direction)
	case "batch":
		runBatch(cfg, log, os.Args[2:])
	default:
		log.Fatal().Str("command", command).Msg("Unknown command. Use serve, migrate or batch")
	}
}

func serve(cfg *config.Config, log zerolog.Logger) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Database connection established")

	application, err := app.New(cfg, log, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	go func() {
		if err := application.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to run application")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown gracefully")
	}
}

func runMigrations(cfg *config.Config, log zerolog.Logger, direction string) {
	migrator, err := database.NewMigrator(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}

	switch direction {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied successfully")
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatal().Err(err).Msg("Failed to rollback migrations")
		}
		log.Info().Msg("Migrations rolled back successfully")
	default:
		log.Fatal().Msg("Invalid migration direction. Use 'up' or 'down'")
	}
}

// runBatch refetches a roster subset once and exits; intended for cron jobs
// outside the service.
func runBatch(cfg *config.Config, log zerolog.Logger, args []string) {
	flags := flag.NewFlagSet("batch", flag.ExitOnError)
	department := flags.String("department", "", "only students of this department")
	year := flags.String("year", "", "only students of this year")
	section := flags.String("section", "", "only students of this section")
	ids := flags.String("ids", "", "comma separated student ids")
	flags.Parse(args)

	filter := models.StudentFilter{Department: *department, Year: *year, Section: *section}
	if *ids != "" {
		filter.IDs = strings.Split(*ids, ",")
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	cfg.Scheduler.Enabled = false
	application, err := app.New(cfg, log, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := application.RunBatch(ctx, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch failed")
	}
	if len(result.PersistFailed) > 0 || len(result.Errors) > 0 {
		log.Error().
			Int("persist_failed", len(result.PersistFailed)).
			Int("errors", len(result.Errors)).
			Msg("Batch finished with student errors")
		os.Exit(1)
	}
}
