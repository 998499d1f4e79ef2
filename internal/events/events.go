// Package events delivers settlement notifications to observers. Delivery is
// best effort: a publish failure never undoes the state change it reports.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published for every committed state change.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Publisher sends events to observers.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}
