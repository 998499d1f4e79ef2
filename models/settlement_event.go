package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventType identifies a settlement notification.
type EventType string

const (
	EventMarketCreated         EventType = "market.created"
	EventStakePlaced           EventType = "stake.placed"
	EventMarketResolved        EventType = "market.resolved"
	EventRewardClaimed         EventType = "reward.claimed"
	EventClaimTokenTransferred EventType = "claim_token.transferred"
)

// IsValid checks if the event type is one the engine emits
func (t EventType) IsValid() bool {
	switch t {
	case EventMarketCreated, EventStakePlaced, EventMarketResolved,
		EventRewardClaimed, EventClaimTokenTransferred:
		return true
	}
	return false
}

// SettlementEvent is an append-only record of a notification emitted with a
// state change. It is written in the same transaction as the change.
type SettlementEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	MarketID  uuid.UUID      `gorm:"type:uuid;not null;index:idx_settlement_events_market" json:"market_id"`
	Type      EventType      `gorm:"type:varchar(50);not null" json:"type"`
	ActorID   uuid.UUID      `gorm:"type:uuid;not null" json:"actor_id"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index:idx_settlement_events_market" json:"created_at"`
}

// TableName specifies the table name for SettlementEvent model
func (*SettlementEvent) TableName() string {
	return "settlement_events"
}

// BeforeCreate sets up the model before creation
func (e *SettlementEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// NewSettlementEvent builds an event record with payload encoded as JSON.
func NewSettlementEvent(t EventType, marketID, actorID uuid.UUID, payload interface{}, at time.Time) (*SettlementEvent, error) {
	if !t.IsValid() {
		return nil, ErrInvalidEventType
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &SettlementEvent{
		ID:        uuid.New(),
		MarketID:  marketID,
		Type:      t,
		ActorID:   actorID,
		Payload:   datatypes.JSON(data),
		CreatedAt: at,
	}, nil
}

// DecodePayload unmarshals the payload into v.
func (e *SettlementEvent) DecodePayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
