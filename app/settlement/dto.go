package settlement

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/joefazee/parimutuel/internal/sanitizer"
	"github.com/joefazee/parimutuel/internal/validator"
	"github.com/joefazee/parimutuel/models"
	"github.com/shopspring/decimal"
)

// CreateMarketRequest represents the request to open a market
type CreateMarketRequest struct {
	Question    string    `json:"question" validate:"required"`
	Description string    `json:"description"`
	LabelA      string    `json:"label_a"`
	LabelB      string    `json:"label_b"`
	Deadline    time.Time `json:"deadline" validate:"required"`
}

// SanitizeAndValidate strips markup from the description and checks lengths.
// Question and labels are kept verbatim.
func (r *CreateMarketRequest) SanitizeAndValidate(v *validator.Validator, s sanitizer.HTMLStripperer, cfg *Config) {
	r.Description = s.StripHTML(r.Description)

	v.Check(validator.NotBlank(r.Question), "question", "question is required")
	v.Check(validator.MaxRunes(r.Question, cfg.MaxQuestionLength), "question", "question is too long")
	v.Check(validator.MaxRunes(r.Description, cfg.MaxDescriptionLength), "description", "description is too long")
	v.Check(!r.Deadline.IsZero(), "deadline", "deadline is required")
}

// PlaceStakeRequest represents a stake on one outcome. The amount is in the
// smallest unit of the staked asset. A missing outcome is rejected by the
// engine after the lifecycle checks.
type PlaceStakeRequest struct {
	Outcome *int   `json:"outcome"`
	Amount  uint64 `json:"amount"`
}

// ResolveMarketRequest names the winning outcome
type ResolveMarketRequest struct {
	Outcome *int `json:"outcome"`
}

// ClaimRewardRequest identifies the claim token being surrendered
type ClaimRewardRequest struct {
	ClaimTokenID string `json:"claim_token_id" validate:"required,uuid"`
}

// TransferClaimTokenRequest names the new owner of a claim token
type TransferClaimTokenRequest struct {
	Recipient string `json:"recipient" validate:"required,uuid"`
}

// MarketFilters represents filters for listing markets
type MarketFilters struct {
	CreatorID *uuid.UUID `form:"-"`
	Creator   string     `form:"creator" validate:"omitempty,uuid"`
	Resolved  *bool      `form:"resolved"`
	Page      int        `form:"page" validate:"omitempty,min=1"`
	PerPage   int        `form:"per_page" validate:"omitempty,min=1"`
}

// ClaimTokenFilters represents filters for listing claim tokens
type ClaimTokenFilters struct {
	MarketID   *uuid.UUID `form:"-"`
	MarketText string     `form:"market_id" validate:"omitempty,uuid"`
	Page       int        `form:"page" validate:"omitempty,min=1"`
	PerPage    int        `form:"per_page" validate:"omitempty,min=1"`
}

// normalizePage clamps page and perPage to the configured bounds.
func normalizePage(page, perPage int, cfg *Config) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = cfg.DefaultPageSize
	}
	if perPage > cfg.MaxPageSize {
		perPage = cfg.MaxPageSize
	}
	return page, perPage
}

// MarketResponse represents a market in API responses. It is also the value
// kept in the market view cache.
type MarketResponse struct {
	ID               uuid.UUID  `json:"id"`
	CreatorID        uuid.UUID  `json:"creator_id"`
	Question         string     `json:"question"`
	Description      string     `json:"description,omitempty"`
	Labels           [2]string  `json:"labels"`
	Deadline         time.Time  `json:"deadline"`
	AggregateStakes  [2]uint64  `json:"aggregate_stakes"`
	Pool             uint64     `json:"pool"`
	PaidOut          uint64     `json:"paid_out"`
	PoolAtResolution uint64     `json:"pool_at_resolution"`
	ParticipantCount int64      `json:"participant_count"`
	Resolved         bool       `json:"resolved"`
	WinningOutcome   *int       `json:"winning_outcome,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ToMarketResponse converts a market model to its response
func ToMarketResponse(m *models.Market) *MarketResponse {
	resp := &MarketResponse{
		ID:               m.ID,
		CreatorID:        m.CreatorID,
		Question:         m.Question,
		Description:      m.Description,
		Labels:           [2]string{m.LabelA, m.LabelB},
		Deadline:         m.Deadline,
		AggregateStakes:  [2]uint64{m.StakeA, m.StakeB},
		Pool:             m.Pool,
		PaidOut:          m.PaidOut,
		PoolAtResolution: m.PoolAtResolution,
		ParticipantCount: m.ParticipantCount,
		Resolved:         m.Resolved,
		ResolvedAt:       m.ResolvedAt,
		CreatedAt:        m.CreatedAt,
	}
	if w, ok := m.Winner(); ok {
		v := int(w)
		resp.WinningOutcome = &v
	}
	return resp
}

// MarketListResponse represents a page of markets
type MarketListResponse struct {
	Markets    []MarketResponse `json:"markets"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

// OddsResponse represents the stake distribution of a market
type OddsResponse struct {
	MarketID            uuid.UUID       `json:"market_id"`
	StakeA              uint64          `json:"stake_a"`
	StakeB              uint64          `json:"stake_b"`
	Total               uint64          `json:"total"`
	ImpliedProbabilityA decimal.Decimal `json:"implied_probability_a"`
	ImpliedProbabilityB decimal.Decimal `json:"implied_probability_b"`
}

// PoolResponse represents the funds held by a market
type PoolResponse struct {
	MarketID    uuid.UUID `json:"market_id"`
	Pool        uint64    `json:"pool"`
	PaidOut     uint64    `json:"paid_out"`
	TotalStaked uint64    `json:"total_staked"`
}

// StatusResponse represents the resolution state of a market
type StatusResponse struct {
	MarketID       uuid.UUID `json:"market_id"`
	Resolved       bool      `json:"resolved"`
	WinningOutcome *int      `json:"winning_outcome,omitempty"`
	WinningLabel   string    `json:"winning_label,omitempty"`
}

// ParticipationResponse answers whether an identity has staked in a market
type ParticipationResponse struct {
	MarketID     uuid.UUID `json:"market_id"`
	Identity     uuid.UUID `json:"identity"`
	Participated bool      `json:"participated"`
	Outcome      *int      `json:"outcome,omitempty"`
	Amount       uint64    `json:"amount,omitempty"`
}

// ClaimTokenResponse represents a claim token
type ClaimTokenResponse struct {
	ID        uuid.UUID `json:"id"`
	MarketID  uuid.UUID `json:"market_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Outcome   int       `json:"outcome"`
	Amount    uint64    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// ToClaimTokenResponse converts a claim token model to its response
func ToClaimTokenResponse(t *models.ClaimToken) *ClaimTokenResponse {
	return &ClaimTokenResponse{
		ID:        t.ID,
		MarketID:  t.MarketID,
		OwnerID:   t.OwnerID,
		Outcome:   int(t.Outcome),
		Amount:    t.Amount,
		CreatedAt: t.CreatedAt,
	}
}

// ClaimTokenListItem is a token annotated with the state of its market
type ClaimTokenListItem struct {
	ClaimTokenResponse
	MarketResolved bool `json:"market_resolved"`
	Claimable      bool `json:"claimable"`
}

// ClaimTokenListResponse represents a page of claim tokens
type ClaimTokenListResponse struct {
	Tokens     []ClaimTokenListItem `json:"tokens"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	PerPage    int                  `json:"per_page"`
	TotalPages int                  `json:"total_pages"`
}

// StakeResponse is returned after a stake is placed
type StakeResponse struct {
	ClaimToken ClaimTokenResponse `json:"claim_token"`
	MarketID   uuid.UUID          `json:"market_id"`
	Pool       uint64             `json:"pool"`
}

// ClaimResponse is returned after a reward is paid
type ClaimResponse struct {
	MarketID      uuid.UUID `json:"market_id"`
	ClaimTokenID  uuid.UUID `json:"claim_token_id"`
	Claimant      uuid.UUID `json:"claimant"`
	Reward        uint64    `json:"reward"`
	PoolRemaining uint64    `json:"pool_remaining"`
}

// QuoteResponse reports what a claim would pay now
type QuoteResponse struct {
	ClaimTokenID uuid.UUID   `json:"claim_token_id"`
	MarketID     uuid.UUID   `json:"market_id"`
	Reward       uint64      `json:"reward"`
	PayoutBasis  PayoutBasis `json:"payout_basis"`
}

// EventResponse represents one entry of a market's settlement history
type EventResponse struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	ActorID   uuid.UUID       `json:"actor_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func totalPages(total int64, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
