package eventbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/matthewbaird/immo/internal/event"
)

// LogConsumer logs all domain events for observability.
type LogConsumer struct {
	log *zap.Logger
}

func NewLogConsumer(logger *zap.Logger) *LogConsumer {
	return &LogConsumer{log: logger.Named("events")}
}

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	entities := make([]string, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		entities[i] = ref.EntityType + ":" + ref.EntityID
	}
	c.log.Info(evt.Summary,
		zap.String("event_type", evt.EventType),
		zap.String("event_id", evt.ID),
		zap.String("category", evt.Category),
		zap.String("weight", evt.Weight),
		zap.Strings("entities", entities))
	return nil
}
