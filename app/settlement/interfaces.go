package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/joefazee/parimutuel/models"
)

// Repository defines storage for markets, the stake ledger and claim tokens.
// Every write made inside Transaction commits or rolls back as a unit.
type Repository interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	CreateMarket(ctx context.Context, market *models.Market) error
	GetMarket(ctx context.Context, id uuid.UUID) (*models.Market, error)
	// GetMarketForUpdate loads the market and locks its row until the
	// surrounding transaction ends.
	GetMarketForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error)
	UpdateMarket(ctx context.Context, market *models.Market) error
	ListMarkets(ctx context.Context, filters *MarketFilters) ([]models.Market, int64, error)
	GetMarketsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Market, error)

	GetParticipation(ctx context.Context, marketID, participantID uuid.UUID) (*models.Participation, error)
	CreateParticipation(ctx context.Context, participation *models.Participation) error

	CreateClaimToken(ctx context.Context, token *models.ClaimToken) error
	GetClaimToken(ctx context.Context, id uuid.UUID) (*models.ClaimToken, error)
	GetClaimTokenForUpdate(ctx context.Context, id uuid.UUID) (*models.ClaimToken, error)
	UpdateClaimToken(ctx context.Context, token *models.ClaimToken) error
	DeleteClaimToken(ctx context.Context, id uuid.UUID) error
	ListClaimTokens(ctx context.Context, ownerID uuid.UUID, filters *ClaimTokenFilters) ([]models.ClaimToken, int64, error)

	AppendEvents(ctx context.Context, events ...*models.SettlementEvent) error
	ListEvents(ctx context.Context, marketID uuid.UUID, limit int) ([]models.SettlementEvent, error)
}

// Service defines the settlement operations exposed to transports
type Service interface {
	CreateMarket(ctx context.Context, creator uuid.UUID, req *CreateMarketRequest) (*MarketResponse, error)
	PlaceStake(ctx context.Context, marketID, staker uuid.UUID, req *PlaceStakeRequest) (*StakeResponse, error)
	ResolveMarket(ctx context.Context, marketID, caller uuid.UUID, req *ResolveMarketRequest) (*MarketResponse, error)
	ClaimReward(ctx context.Context, marketID, caller uuid.UUID, req *ClaimRewardRequest) (*ClaimResponse, error)
	TransferClaimToken(ctx context.Context, tokenID, caller uuid.UUID, req *TransferClaimTokenRequest) (*ClaimTokenResponse, error)

	GetMarketInfo(ctx context.Context, marketID uuid.UUID) (*MarketResponse, error)
	ListMarkets(ctx context.Context, filters *MarketFilters) (*MarketListResponse, error)
	GetOdds(ctx context.Context, marketID uuid.UUID) (*OddsResponse, error)
	GetPoolValue(ctx context.Context, marketID uuid.UUID) (*PoolResponse, error)
	GetStatus(ctx context.Context, marketID uuid.UUID) (*StatusResponse, error)
	HasParticipated(ctx context.Context, marketID, identity uuid.UUID) (*ParticipationResponse, error)
	GetMarketEvents(ctx context.Context, marketID uuid.UUID) ([]EventResponse, error)

	GetClaimTokenInfo(ctx context.Context, tokenID uuid.UUID) (*ClaimTokenResponse, error)
	ListClaimTokens(ctx context.Context, owner uuid.UUID, filters *ClaimTokenFilters) (*ClaimTokenListResponse, error)
	QuoteReward(ctx context.Context, tokenID uuid.UUID) (*QuoteResponse, error)
}
