package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/algolog/stats-service/internal/models"
)

type RabbitMQPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// StatsEventPublisher announces persisted stats updates.
type StatsEventPublisher struct {
	publisher  RabbitMQPublisher
	exchange   string
	routingKey string
}

func NewStatsEventPublisher(publisher RabbitMQPublisher, exchange, routingKey string) *StatsEventPublisher {
	return &StatsEventPublisher{
		publisher:  publisher,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

func (p *StatsEventPublisher) PublishStatsUpdated(ctx context.Context, event models.StatsUpdatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stats updated event: %w", err)
	}
	return p.publisher.Publish(ctx, p.exchange, p.routingKey, body)
}
