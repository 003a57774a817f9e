package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/algolog/stats-service/internal/models"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

var ErrStudentNotFound = errors.New("student not found")

type StudentRepository interface {
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	LoadHandles(ctx context.Context, id string) (map[models.Platform]string, error)
	LoadStats(ctx context.Context, id string) (models.StatsDocument, error)
	SaveStats(ctx context.Context, id string, patch models.StatsDocument) error
	ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.RosterEntry, error)
	MarkClassUpdated(ctx context.Context, class models.ClassKey) error
	Ping(ctx context.Context) error
}

type studentRepository struct {
	*PostgresRepository
}

func NewStudentRepository(db *sql.DB, logger zerolog.Logger) StudentRepository {
	return &studentRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

// GetStudent returns nil without error when the student does not exist.
func (r *studentRepository) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	query := `
		SELECT id, name, roll_no, email, department, year, section, handles, stats, updated_at
		FROM students
		WHERE id = $1
	`

	student := &models.Student{}
	var handles, stats []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&student.ID,
		&student.Name,
		&student.RollNo,
		&student.Email,
		&student.Department,
		&student.Year,
		&student.Section,
		&handles,
		&stats,
		&student.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load student %s: %w", id, err)
	}

	if student.Handles, err = decodeHandles(handles); err != nil {
		return nil, err
	}
	if student.Stats, err = decodeStats(stats); err != nil {
		return nil, err
	}
	return student, nil
}

func (r *studentRepository) LoadHandles(ctx context.Context, id string) (map[models.Platform]string, error) {
	var handles []byte
	err := r.db.QueryRowContext(ctx, `SELECT handles FROM students WHERE id = $1`, id).Scan(&handles)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load handles for %s: %w", id, err)
	}
	return decodeHandles(handles)
}

func (r *studentRepository) LoadStats(ctx context.Context, id string) (models.StatsDocument, error) {
	var stats []byte
	err := r.db.QueryRowContext(ctx, `SELECT stats FROM students WHERE id = $1`, id).Scan(&stats)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for %s: %w", id, err)
	}
	return decodeStats(stats)
}

// SaveStats merges patch into the stored document key by key. Platforms
// absent from patch keep their stored value.
func (r *studentRepository) SaveStats(ctx context.Context, id string, patch models.StatsDocument) error {
	if len(patch) == 0 {
		return nil
	}

	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	query := `
		UPDATE students
		SET stats = COALESCE(stats, '{}'::jsonb) || $2::jsonb,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, body)
	if err != nil {
		return fmt.Errorf("failed to save stats for %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func (r *studentRepository) ListStudents(ctx context.Context, filter models.StudentFilter) ([]models.RosterEntry, error) {
	whereClauses := []string{}
	args := []interface{}{}
	argCount := 1

	for _, f := range []struct {
		column string
		value  string
	}{
		{"department", filter.Department},
		{"year", filter.Year},
		{"section", filter.Section},
	} {
		if f.value == "" {
			continue
		}
		whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", f.column, argCount))
		args = append(args, f.value)
		argCount++
	}
	if len(filter.IDs) > 0 {
		whereClauses = append(whereClauses, fmt.Sprintf("id = ANY($%d::uuid[])", argCount))
		args = append(args, pq.Array(filter.IDs))
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT id, department, year, section
		FROM students
		%s
		ORDER BY department, year, section, roll_no
	`, whereSQL)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var entries []models.RosterEntry
	for rows.Next() {
		var e models.RosterEntry
		if err := rows.Scan(&e.StudentID, &e.Department, &e.Year, &e.Section); err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *studentRepository) MarkClassUpdated(ctx context.Context, class models.ClassKey) error {
	query := `
		INSERT INTO classes (department, year, section, students_updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (department, year, section)
		DO UPDATE SET students_updated_at = EXCLUDED.students_updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, class.Department, class.Year, class.Section); err != nil {
		return fmt.Errorf("failed to mark class updated: %w", err)
	}
	return nil
}

func decodeHandles(data []byte) (map[models.Platform]string, error) {
	handles := map[models.Platform]string{}
	if len(data) == 0 {
		return handles, nil
	}
	if err := json.Unmarshal(data, &handles); err != nil {
		return nil, fmt.Errorf("failed to decode handles: %w", err)
	}
	return handles, nil
}

func decodeStats(data []byte) (models.StatsDocument, error) {
	doc := models.StatsDocument{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return doc, nil
}
