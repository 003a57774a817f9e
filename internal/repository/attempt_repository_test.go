package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/algolog/stats-service/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAttemptRepo(t *testing.T) (AttemptRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAttemptRepository(db, zerolog.Nop()), mock
}

func sampleAttempts() []models.FetchAttempt {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return []models.FetchAttempt{
		{ID: "a1", StudentID: "s1", Platform: models.PlatformLeetCode, Handle: "alice", StartedAt: start, DurationMS: 120, Outcome: models.OutcomeSuccess},
		{ID: "a2", StudentID: "s1", Platform: models.PlatformCodeChef, Handle: "alice", StartedAt: start, DurationMS: 800, Outcome: models.OutcomeNotFound, Detail: "not found"},
	}
}

func TestAppendAttemptsInTransaction(t *testing.T) {
	repo, mock := newAttemptRepo(t)
	attempts := sampleAttempts()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO fetch_attempts`)
	for _, a := range attempts {
		prep.ExpectExec().
			WithArgs(a.ID, a.StudentID, a.Platform, a.Handle, a.StartedAt, a.DurationMS, a.Outcome, a.RetryCount, a.Detail).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.Append(context.Background(), attempts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAttemptsRollsBackOnError(t *testing.T) {
	repo, mock := newAttemptRepo(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO fetch_attempts`)
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Append(context.Background(), sampleAttempts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAttemptsByStudent(t *testing.T) {
	repo, mock := newAttemptRepo(t)
	start := time.Now()

	rows := sqlmock.NewRows([]string{"id", "student_id", "platform", "handle", "started_at", "duration_ms", "outcome", "retry_count", "detail"}).
		AddRow("a1", "s1", "leetcode", "alice", start, int64(100), "success", 0, "")
	mock.ExpectQuery(`FROM fetch_attempts\s+WHERE student_id = \$1`).WithArgs("s1", 50).WillReturnRows(rows)

	attempts, err := repo.ListByStudent(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.OutcomeSuccess, attempts[0].Outcome)
	assert.Equal(t, models.PlatformLeetCode, attempts[0].Platform)
}

func TestPlatformHealth(t *testing.T) {
	repo, mock := newAttemptRepo(t)
	since := time.Now().Add(-72 * time.Hour)
	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	rows := sqlmock.NewRows([]string{"platform", "outcome", "count", "max"}).
		AddRow("codechef", "parse_error", 12, t2).
		AddRow("codechef", "success", 3, t1).
		AddRow("leetcode", "success", 20, t2)
	mock.ExpectQuery(`GROUP BY platform, outcome`).WithArgs(since).WillReturnRows(rows)

	health, err := repo.Health(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, health, len(models.AllPlatforms))

	byPlatform := map[models.Platform]models.PlatformHealth{}
	for _, h := range health {
		byPlatform[h.Platform] = h
	}
	cc := byPlatform[models.PlatformCodeChef]
	assert.Equal(t, 15, cc.Attempts)
	assert.Equal(t, 3, cc.Successes)
	assert.Equal(t, 12, cc.Failures[models.OutcomeParseError])
	require.NotNil(t, cc.LastFailureAt)
	assert.Equal(t, t2, *cc.LastFailureAt)
	assert.Equal(t, 0, byPlatform[models.PlatformGitHub].Attempts)
}
