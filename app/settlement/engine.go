package settlement

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joefazee/parimutuel/models"
)

// Engine holds the settlement rules for binary parimutuel markets. It works
// on records handed to it by the caller and never performs I/O, takes locks
// or reads the clock. Callers must serialize calls that touch the same
// market. Every check runs before any mutation, so a returned error means the
// records were left untouched.
type Engine struct {
	basis                PayoutBasis
	resolveAfterDeadline bool
}

// NewEngine creates an engine using cfg for payout basis and resolution rules.
func NewEngine(cfg *Config) *Engine {
	basis := PayoutBasis(cfg.PayoutBasis)
	if !basis.Valid() {
		basis = PayoutLive
	}
	return &Engine{basis: basis, resolveAfterDeadline: cfg.ResolveAfterDeadline}
}

// Basis returns the payout basis in use.
func (e *Engine) Basis() PayoutBasis {
	return e.basis
}

type CreateParams struct {
	Creator     uuid.UUID
	Question    string
	Description string
	LabelA      string
	LabelB      string
	Deadline    time.Time
}

// CreateMarket opens a market. A deadline in the past is accepted; such a
// market simply never takes a stake.
func (e *Engine) CreateMarket(p CreateParams) (*models.Market, MarketCreated, error) {
	if p.Creator == uuid.Nil {
		return nil, MarketCreated{}, models.ErrInvalidCreatorID
	}
	if strings.TrimSpace(p.Question) == "" {
		return nil, MarketCreated{}, models.ErrInvalidQuestion
	}
	if p.Deadline.IsZero() {
		return nil, MarketCreated{}, models.ErrInvalidDeadline
	}

	m := &models.Market{
		ID:          uuid.New(),
		CreatorID:   p.Creator,
		Question:    p.Question,
		Description: p.Description,
		LabelA:      p.LabelA,
		LabelB:      p.LabelB,
		Deadline:    p.Deadline,
	}

	return m, MarketCreated{
		MarketID: m.ID,
		Creator:  m.CreatorID,
		Question: m.Question,
		LabelA:   m.LabelA,
		LabelB:   m.LabelB,
		Deadline: m.Deadline,
	}, nil
}

type StakeParams struct {
	Staker  uuid.UUID
	Outcome int
	Funds   *models.Funds
	// Existing is the staker's ledger entry for this market, nil if none.
	Existing *models.Participation
	Now      time.Time
}

type StakeResult struct {
	Token         *models.ClaimToken
	Participation *models.Participation
	Event         StakePlaced
}

// PlaceStake moves the funds into the pool, records the staker in the ledger
// and mints a claim token owned by the staker. Checks run in this order:
// resolved, deadline, outcome, prior participation, amount.
func (e *Engine) PlaceStake(m *models.Market, p StakeParams) (*StakeResult, error) {
	if m.Resolved {
		return nil, models.ErrAlreadyResolved
	}
	if !p.Now.Before(m.Deadline) {
		return nil, models.ErrDeadlinePassed
	}
	outcome, err := models.ParseOutcome(p.Outcome)
	if err != nil {
		return nil, err
	}
	if p.Existing != nil {
		return nil, models.ErrAlreadyParticipated
	}
	if p.Funds == nil || p.Funds.IsZero() {
		return nil, models.ErrInsufficientStake
	}
	if p.Staker == uuid.Nil {
		return nil, models.ErrInvalidUserID
	}

	if err := m.AddStake(outcome, p.Funds.Amount()); err != nil {
		return nil, err
	}
	amount := p.Funds.Take()
	m.ParticipantCount++

	token := &models.ClaimToken{
		ID:       uuid.New(),
		MarketID: m.ID,
		OwnerID:  p.Staker,
		Outcome:  outcome,
		Amount:   amount,
	}
	part := &models.Participation{
		MarketID:      m.ID,
		ParticipantID: p.Staker,
		Outcome:       outcome,
		Amount:        amount,
	}

	return &StakeResult{
		Token:         token,
		Participation: part,
		Event: StakePlaced{
			MarketID:     m.ID,
			Staker:       p.Staker,
			Outcome:      outcome,
			Amount:       amount,
			ClaimTokenID: token.ID,
		},
	}, nil
}

type ResolveParams struct {
	Caller  uuid.UUID
	Outcome int
	Now     time.Time
}

// Resolve fixes the winning outcome. Only the creator may resolve and only
// once. The deadline is enforced only when the engine is configured to
// resolve after the deadline.
func (e *Engine) Resolve(m *models.Market, p ResolveParams) (MarketResolved, error) {
	if p.Caller != m.CreatorID {
		return MarketResolved{}, models.ErrNotCreator
	}
	if m.Resolved {
		return MarketResolved{}, models.ErrAlreadyResolved
	}
	outcome, err := models.ParseOutcome(p.Outcome)
	if err != nil {
		return MarketResolved{}, err
	}
	if e.resolveAfterDeadline && p.Now.Before(m.Deadline) {
		return MarketResolved{}, models.ErrDeadlineNotReached
	}

	resolvedAt := p.Now
	m.Resolved = true
	m.WinningOutcome = &outcome
	m.ResolvedAt = &resolvedAt
	m.PoolAtResolution = m.Pool

	return MarketResolved{
		MarketID:        m.ID,
		Resolver:        p.Caller,
		WinningOutcome:  outcome,
		FinalAggregateA: m.StakeA,
		FinalAggregateB: m.StakeB,
	}, nil
}

type ClaimResult struct {
	Reward uint64
	Event  RewardClaimed
}

// Claim redeems token against m. On success the reward leaves the pool and
// the token is burned; the caller must drop it from storage. A failed claim
// leaves the token intact.
func (e *Engine) Claim(m *models.Market, token *models.ClaimToken, caller uuid.UUID) (*ClaimResult, error) {
	if token.IsBurned() {
		return nil, models.ErrClaimTokenBurned
	}
	if !token.OwnedBy(caller) {
		return nil, models.ErrNotTokenOwner
	}

	reward, err := e.reward(m, token)
	if err != nil {
		return nil, err
	}
	if err := m.Withdraw(reward); err != nil {
		return nil, err
	}
	token.Burn()

	return &ClaimResult{
		Reward: reward,
		Event: RewardClaimed{
			MarketID:     m.ID,
			Claimant:     caller,
			ClaimTokenID: token.ID,
			RewardAmount: reward,
		},
	}, nil
}

// Quote returns what a claim with token would pay right now.
func (e *Engine) Quote(m *models.Market, token *models.ClaimToken) (uint64, error) {
	if token.IsBurned() {
		return 0, models.ErrClaimTokenBurned
	}
	return e.reward(m, token)
}

func (e *Engine) reward(m *models.Market, token *models.ClaimToken) (uint64, error) {
	winner, ok := m.Winner()
	if !ok {
		return 0, models.ErrNotResolved
	}
	if token.MarketID != m.ID || token.Outcome != winner {
		return 0, models.ErrWrongOutcome
	}

	aggregate := m.AggregateStake(winner)
	if aggregate == 0 {
		return 0, models.ErrNoWinningStake
	}

	pool := m.Pool
	if e.basis == PayoutSnapshot {
		pool = m.PoolAtResolution
	}
	reward, err := proportionalShare(token.Amount, pool, aggregate)
	if err != nil {
		return 0, err
	}
	if reward > m.Pool {
		return 0, models.ErrConservationViolated
	}
	return reward, nil
}

type TransferParams struct {
	From uuid.UUID
	To   uuid.UUID
}

// Transfer reassigns token ownership. The market and its ledger are not
// touched: the ledger records who staked, the token records who may claim.
func (e *Engine) Transfer(token *models.ClaimToken, p TransferParams) (ClaimTokenTransferred, error) {
	if token.IsBurned() {
		return ClaimTokenTransferred{}, models.ErrClaimTokenBurned
	}
	if !token.OwnedBy(p.From) {
		return ClaimTokenTransferred{}, models.ErrNotTokenOwner
	}
	if p.To == uuid.Nil || p.To == p.From {
		return ClaimTokenTransferred{}, models.ErrInvalidRecipient
	}

	token.OwnerID = p.To
	return ClaimTokenTransferred{
		TokenID:  token.ID,
		MarketID: token.MarketID,
		From:     p.From,
		To:       p.To,
	}, nil
}

// Odds is the stake distribution of a market.
type Odds struct {
	StakeA uint64
	StakeB uint64
	Total  uint64
}

func (e *Engine) Odds(m *models.Market) Odds {
	return Odds{StakeA: m.StakeA, StakeB: m.StakeB, Total: m.TotalStaked()}
}

// Status reports whether m is resolved and, if so, the winner.
func (e *Engine) Status(m *models.Market) (bool, *models.Outcome) {
	w, ok := m.Winner()
	if !ok {
		return false, nil
	}
	return true, &w
}

// PoolValue returns the funds currently held for m.
func (e *Engine) PoolValue(m *models.Market) uint64 {
	return m.Pool
}
