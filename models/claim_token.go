package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimToken is the credential minted to a staker. It records the backed
// outcome and amount and is the only way to redeem a reward. Redemption
// deletes the row, so a token can never be presented twice.
type ClaimToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	MarketID  uuid.UUID `gorm:"type:uuid;not null;index" json:"market_id"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Outcome   Outcome   `gorm:"type:smallint;not null" json:"outcome"`
	Amount    uint64    `gorm:"type:bigint;not null" json:"amount"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	burned bool
}

// TableName specifies the table name for ClaimToken model
func (*ClaimToken) TableName() string {
	return "claim_tokens"
}

// BeforeCreate sets up the model before creation
func (t *ClaimToken) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Burn marks the in-memory token as consumed. Storage removal is done by the
// repository in the same transaction.
func (t *ClaimToken) Burn() {
	t.burned = true
}

// IsBurned reports whether the token has been consumed by a claim.
func (t *ClaimToken) IsBurned() bool {
	return t.burned
}

// OwnedBy reports whether id currently holds the token.
func (t *ClaimToken) OwnedBy(id uuid.UUID) bool {
	return id != uuid.Nil && t.OwnerID == id
}

// Validate performs validation on the claim token model
func (t *ClaimToken) Validate() error {
	if t.MarketID == uuid.Nil {
		return ErrInvalidMarketID
	}
	if t.OwnerID == uuid.Nil {
		return ErrInvalidUserID
	}
	if !t.Outcome.Valid() {
		return ErrInvalidOutcome
	}
	if t.Amount == 0 {
		return ErrInsufficientStake
	}
	return nil
}
