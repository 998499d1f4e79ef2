package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome selects one of the two mutually exclusive results of a market.
type Outcome uint8

const (
	OutcomeA Outcome = 0
	OutcomeB Outcome = 1
)

// OutcomeCount is the number of outcomes every market has.
const OutcomeCount = 2

// MaxAmount bounds every stake, aggregate and pool. Amounts are stored in
// signed 64-bit columns.
const MaxAmount uint64 = math.MaxInt64

// Valid reports whether o is 0 or 1.
func (o Outcome) Valid() bool {
	return o < OutcomeCount
}

func (o Outcome) String() string {
	switch o {
	case OutcomeA:
		return "A"
	case OutcomeB:
		return "B"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// ParseOutcome converts a raw selector into an Outcome.
func ParseOutcome(v int) (Outcome, error) {
	if v < 0 || v >= OutcomeCount {
		return 0, ErrInvalidOutcome
	}
	return Outcome(v), nil
}

// Market represents one binary staking contest and its escrow pool.
//
// Amounts are unsigned integers in the smallest unit of the staked asset.
// PaidOut tracks rewards extracted so that Pool + PaidOut always equals
// StakeA + StakeB.
type Market struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	CreatorID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"creator_id"`
	Question         string     `gorm:"type:text;not null" json:"question"`
	Description      string     `gorm:"type:text;not null;default:''" json:"description"`
	LabelA           string     `gorm:"type:text;not null" json:"label_a"`
	LabelB           string     `gorm:"type:text;not null" json:"label_b"`
	Deadline         time.Time  `gorm:"type:timestamptz;not null;index" json:"deadline"`
	StakeA           uint64     `gorm:"type:bigint;not null;default:0" json:"stake_a"`
	StakeB           uint64     `gorm:"type:bigint;not null;default:0" json:"stake_b"`
	Pool             uint64     `gorm:"type:bigint;not null;default:0" json:"pool"`
	PaidOut          uint64     `gorm:"type:bigint;not null;default:0" json:"paid_out"`
	PoolAtResolution uint64     `gorm:"type:bigint;not null;default:0" json:"pool_at_resolution"`
	ParticipantCount int64      `gorm:"type:bigint;not null;default:0" json:"participant_count"`
	Resolved         bool       `gorm:"not null;default:false;index" json:"resolved"`
	WinningOutcome   *Outcome   `gorm:"type:smallint" json:"winning_outcome,omitempty"`
	ResolvedAt       *time.Time `gorm:"type:timestamptz" json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Market model
func (*Market) TableName() string {
	return "markets"
}

// BeforeCreate sets up the model before creation
func (m *Market) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Label returns the human readable label of an outcome.
func (m *Market) Label(o Outcome) string {
	if o == OutcomeB {
		return m.LabelB
	}
	return m.LabelA
}

// AggregateStake returns the total staked on an outcome.
func (m *Market) AggregateStake(o Outcome) uint64 {
	if o == OutcomeB {
		return m.StakeB
	}
	return m.StakeA
}

// TotalStaked returns the sum of both aggregates.
func (m *Market) TotalStaked() uint64 {
	return m.StakeA + m.StakeB
}

// IsResolved checks if the market has been resolved
func (m *Market) IsResolved() bool {
	return m.Resolved
}

// Winner returns the winning outcome once the market is resolved.
func (m *Market) Winner() (Outcome, bool) {
	if !m.Resolved || m.WinningOutcome == nil {
		return 0, false
	}
	return *m.WinningOutcome, true
}

// AcceptsStakesAt reports whether a stake at t would pass the lifecycle checks.
func (m *Market) AcceptsStakesAt(t time.Time) bool {
	return !m.Resolved && t.Before(m.Deadline)
}

// AddStake credits amount to the outcome aggregate and the pool. The caller
// must have validated the outcome. Totals above MaxAmount are rejected with
// ErrAmountOverflow and leave the market untouched.
func (m *Market) AddStake(o Outcome, amount uint64) error {
	if amount > MaxAmount {
		return ErrAmountOverflow
	}
	headroom := MaxAmount - amount
	if m.AggregateStake(o) > headroom || m.Pool+m.PaidOut > headroom {
		return ErrAmountOverflow
	}
	if o == OutcomeB {
		m.StakeB += amount
	} else {
		m.StakeA += amount
	}
	m.Pool += amount
	return nil
}

// Withdraw extracts amount from the pool as a paid reward.
func (m *Market) Withdraw(amount uint64) error {
	if amount > m.Pool {
		return ErrConservationViolated
	}
	m.Pool -= amount
	m.PaidOut += amount
	return nil
}

// CheckConservation verifies pool accounting against the recorded stakes.
func (m *Market) CheckConservation() error {
	if m.Pool+m.PaidOut != m.StakeA+m.StakeB {
		return ErrConservationViolated
	}
	return nil
}

// Validate performs validation on the market model
func (m *Market) Validate() error {
	if m.ID == uuid.Nil {
		return ErrInvalidMarketID
	}
	if m.CreatorID == uuid.Nil {
		return ErrInvalidCreatorID
	}
	if strings.TrimSpace(m.Question) == "" {
		return ErrInvalidQuestion
	}
	if m.Deadline.IsZero() {
		return ErrInvalidDeadline
	}
	if m.WinningOutcome != nil && !m.WinningOutcome.Valid() {
		return ErrInvalidOutcome
	}
	if m.Resolved != (m.WinningOutcome != nil) {
		return ErrInvalidOutcome
	}
	return m.CheckConservation()
}
