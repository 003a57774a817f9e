package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/algolog/stats-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	exchange, routingKey string
	body                 []byte
	err                  error
}

func (r *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	r.exchange, r.routingKey, r.body = exchange, routingKey, body
	return r.err
}

func TestStatsEventPublisher(t *testing.T) {
	rec := &recordingPublisher{}
	pub := NewStatsEventPublisher(rec, "stats_exchange", "stats.updated")

	event := models.StatsUpdatedEvent{
		StudentID:        "s1",
		BatchID:          "b1",
		UpdatedPlatforms: []models.Platform{models.PlatformLeetCode, models.PlatformGitHub},
		Failures:         map[models.Platform]models.Outcome{models.PlatformCodeChef: models.OutcomeNotFound},
		UpdatedAt:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishStatsUpdated(context.Background(), event))

	assert.Equal(t, "stats_exchange", rec.exchange)
	assert.Equal(t, "stats.updated", rec.routingKey)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.body, &decoded))
	assert.Equal(t, "s1", decoded["student_id"])
	assert.Equal(t, []interface{}{"leetcode", "github"}, decoded["updated_platforms"])
	assert.Equal(t, map[string]interface{}{"codechef": "not_found"}, decoded["failures"])
}

func TestStatsEventPublisher_PropagatesError(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("channel closed")}
	pub := NewStatsEventPublisher(rec, "x", "y")

	err := pub.PublishStatsUpdated(context.Background(), models.StatsUpdatedEvent{StudentID: "s1"})
	assert.EqualError(t, err, "channel closed")
}
