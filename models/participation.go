package models

import (
	"time"

	"github.com/google/uuid"
)

// Participation is one entry of a market's stake ledger. The composite
// primary key guarantees an identity stakes at most once per market.
type Participation struct {
	MarketID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"market_id"`
	ParticipantID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"participant_id"`
	Outcome       Outcome   `gorm:"type:smallint;not null" json:"outcome"`
	Amount        uint64    `gorm:"type:bigint;not null" json:"amount"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Participation model
func (*Participation) TableName() string {
	return "participations"
}

// Validate performs validation on the participation model
func (p *Participation) Validate() error {
	if p.MarketID == uuid.Nil {
		return ErrInvalidMarketID
	}
	if p.ParticipantID == uuid.Nil {
		return ErrInvalidUserID
	}
	if !p.Outcome.Valid() {
		return ErrInvalidOutcome
	}
	if p.Amount == 0 {
		return ErrInsufficientStake
	}
	return nil
}
