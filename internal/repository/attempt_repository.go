package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/algolog/stats-service/internal/models"
	"github.com/rs/zerolog"
)

type AttemptRepository interface {
	Append(ctx context.Context, attempts []models.FetchAttempt) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.FetchAttempt, error)
	Health(ctx context.Context, since time.Time) ([]models.PlatformHealth, error)
}

type attemptRepository struct {
	*PostgresRepository
}

func NewAttemptRepository(db *sql.DB, logger zerolog.Logger) AttemptRepository {
	return &attemptRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *attemptRepository) Append(ctx context.Context, attempts []models.FetchAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	query := `
		INSERT INTO fetch_attempts (
			id, student_id, platform, handle, started_at, duration_ms, outcome, retry_count, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare attempt insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range attempts {
			if _, err := stmt.ExecContext(ctx,
				a.ID,
				a.StudentID,
				a.Platform,
				a.Handle,
				a.StartedAt,
				a.DurationMS,
				a.Outcome,
				a.RetryCount,
				a.Detail,
			); err != nil {
				return fmt.Errorf("failed to insert attempt %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

func (r *attemptRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.FetchAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, student_id, platform, handle, started_at, duration_ms, outcome, retry_count, detail
		FROM fetch_attempts
		WHERE student_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []models.FetchAttempt{}
	for rows.Next() {
		var a models.FetchAttempt
		if err := rows.Scan(
			&a.ID,
			&a.StudentID,
			&a.Platform,
			&a.Handle,
			&a.StartedAt,
			&a.DurationMS,
			&a.Outcome,
			&a.RetryCount,
			&a.Detail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Health groups attempts since the given time by platform and outcome.
func (r *attemptRepository) Health(ctx context.Context, since time.Time) ([]models.PlatformHealth, error) {
	query := `
		SELECT platform, outcome, COUNT(*), MAX(started_at)
		FROM fetch_attempts
		WHERE started_at >= $1
		GROUP BY platform, outcome
		ORDER BY platform, outcome
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query platform health: %w", err)
	}
	defer rows.Close()

	byPlatform := map[models.Platform]*models.PlatformHealth{}
	for rows.Next() {
		var (
			platform models.Platform
			outcome  models.Outcome
			count    int
			last     time.Time
		)
		if err := rows.Scan(&platform, &outcome, &count, &last); err != nil {
			return nil, fmt.Errorf("failed to scan platform health: %w", err)
		}

		h, ok := byPlatform[platform]
		if !ok {
			h = &models.PlatformHealth{Platform: platform, Failures: map[models.Outcome]int{}}
			byPlatform[platform] = h
		}
		h.Attempts += count
		if outcome == models.OutcomeSuccess {
			h.Successes += count
			h.LastSuccessAt = latest(h.LastSuccessAt, last)
			continue
		}
		h.Failures[outcome] += count
		h.LastFailureAt = latest(h.LastFailureAt, last)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	health := make([]models.PlatformHealth, 0, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		if h, ok := byPlatform[p]; ok {
			health = append(health, *h)
			continue
		}
		health = append(health, models.PlatformHealth{Platform: p, Failures: map[models.Outcome]int{}})
	}
	return health, nil
}

func latest(current *time.Time, t time.Time) *time.Time {
	if current == nil || t.After(*current) {
		return &t
	}
	return current
}
