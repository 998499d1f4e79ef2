package settlement

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/joefazee/parimutuel/internal/events"
	"github.com/joefazee/parimutuel/models"
)

// Notification is emitted by the engine for every successful mutation.
type Notification interface {
	Type() models.EventType
	Market() uuid.UUID
	Actor() uuid.UUID
}

type MarketCreated struct {
	MarketID uuid.UUID `json:"market_id"`
	Creator  uuid.UUID `json:"creator"`
	Question string    `json:"question"`
	LabelA   string    `json:"label_a"`
	LabelB   string    `json:"label_b"`
	Deadline time.Time `json:"deadline"`
}

func (e MarketCreated) Type() models.EventType { return models.EventMarketCreated }
func (e MarketCreated) Market() uuid.UUID      { return e.MarketID }
func (e MarketCreated) Actor() uuid.UUID       { return e.Creator }

type StakePlaced struct {
	MarketID     uuid.UUID      `json:"market_id"`
	Staker       uuid.UUID      `json:"staker"`
	Outcome      models.Outcome `json:"outcome"`
	Amount       uint64         `json:"amount"`
	ClaimTokenID uuid.UUID      `json:"claim_token_id"`
}

func (e StakePlaced) Type() models.EventType { return models.EventStakePlaced }
func (e StakePlaced) Market() uuid.UUID      { return e.MarketID }
func (e StakePlaced) Actor() uuid.UUID       { return e.Staker }

type MarketResolved struct {
	MarketID        uuid.UUID      `json:"market_id"`
	Resolver        uuid.UUID      `json:"resolver"`
	WinningOutcome  models.Outcome `json:"winning_outcome"`
	FinalAggregateA uint64         `json:"final_aggregate_a"`
	FinalAggregateB uint64         `json:"final_aggregate_b"`
}

func (e MarketResolved) Type() models.EventType { return models.EventMarketResolved }
func (e MarketResolved) Market() uuid.UUID      { return e.MarketID }
func (e MarketResolved) Actor() uuid.UUID       { return e.Resolver }

type RewardClaimed struct {
	MarketID     uuid.UUID `json:"market_id"`
	Claimant     uuid.UUID `json:"claimant"`
	ClaimTokenID uuid.UUID `json:"claim_token_id"`
	RewardAmount uint64    `json:"reward_amount"`
}

func (e RewardClaimed) Type() models.EventType { return models.EventRewardClaimed }
func (e RewardClaimed) Market() uuid.UUID      { return e.MarketID }
func (e RewardClaimed) Actor() uuid.UUID       { return e.Claimant }

type ClaimTokenTransferred struct {
	TokenID  uuid.UUID `json:"token_id"`
	MarketID uuid.UUID `json:"market_id"`
	From     uuid.UUID `json:"from"`
	To       uuid.UUID `json:"to"`
}

func (e ClaimTokenTransferred) Type() models.EventType { return models.EventClaimTokenTransferred }
func (e ClaimTokenTransferred) Market() uuid.UUID      { return e.MarketID }
func (e ClaimTokenTransferred) Actor() uuid.UUID       { return e.From }

// recordsFor converts notifications into rows for the settlement history.
func recordsFor(at time.Time, ns ...Notification) ([]*models.SettlementEvent, error) {
	out := make([]*models.SettlementEvent, 0, len(ns))
	for _, n := range ns {
		rec, err := models.NewSettlementEvent(n.Type(), n.Market(), n.Actor(), n, at)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func busEvents(records []*models.SettlementEvent) []events.Event {
	out := make([]events.Event, 0, len(records))
	for _, r := range records {
		out = append(out, events.Event{
			ID:          r.ID,
			Type:        string(r.Type),
			AggregateID: r.MarketID,
			Payload:     json.RawMessage(r.Payload),
			OccurredAt:  r.CreatedAt,
		})
	}
	return out
}
