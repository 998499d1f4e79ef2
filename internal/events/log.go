package events

import (
	"context"

	"github.com/joefazee/parimutuel/internal/logger"
)

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	log logger.Logger
}

var _ Publisher = (*LogPublisher)(nil)

func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, events ...Event) error {
	for _, e := range events {
		p.log.Info("settlement event", logger.Fields{
			"event_id":     e.ID.String(),
			"event_type":   e.Type,
			"aggregate_id": e.AggregateID.String(),
			"payload":      string(e.Payload),
			"occurred_at":  e.OccurredAt,
		})
	}
	return nil
}
