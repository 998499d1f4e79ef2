package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joefazee/parimutuel/models"
)

// repository implements the Repository interface using GORM
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new settlement repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return models.ErrDuplicateRecord
	default:
		return err
	}
}

func (r *repository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	})
}

func (r *repository) CreateMarket(ctx context.Context, market *models.Market) error {
	return translateError(r.db.WithContext(ctx).Create(market).Error)
}

// GetMarket returns a market by ID
func (r *repository) GetMarket(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	var market models.Market
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&market).Error; err != nil {
		return nil, translateError(err)
	}
	return &market, nil
}

func (r *repository) GetMarketForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	var market models.Market
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&market).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &market, nil
}

func (r *repository) UpdateMarket(ctx context.Context, market *models.Market) error {
	res := r.db.WithContext(ctx).
		Model(market).
		Select("stake_a", "stake_b", "pool", "paid_out", "pool_at_resolution",
			"participant_count", "resolved", "winning_outcome", "resolved_at", "updated_at").
		Updates(market)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// ListMarkets returns paginated markets newest first
func (r *repository) ListMarkets(ctx context.Context, filters *MarketFilters) ([]models.Market, int64, error) {
	var (
		markets []models.Market
		total   int64
	)

	query := r.db.WithContext(ctx).Model(&models.Market{})
	if filters.CreatorID != nil {
		query = query.Where("creator_id = ?", *filters.CreatorID)
	}
	if filters.Resolved != nil {
		query = query.Where("resolved = ?", *filters.Resolved)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	offset := (filters.Page - 1) * filters.PerPage
	err := query.Order("created_at DESC").Offset(offset).Limit(filters.PerPage).Find(&markets).Error
	if err != nil {
		return nil, 0, translateError(err)
	}
	return markets, total, nil
}

func (r *repository) GetMarketsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Market, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var markets []models.Market
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&markets).Error; err != nil {
		return nil, translateError(err)
	}
	return markets, nil
}

func (r *repository) GetParticipation(ctx context.Context, marketID, participantID uuid.UUID) (*models.Participation, error) {
	var p models.Participation
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND participant_id = ?", marketID, participantID).
		First(&p).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &p, nil
}

// CreateParticipation inserts a ledger entry. The primary key rejects a
// second entry for the same identity with models.ErrDuplicateRecord.
func (r *repository) CreateParticipation(ctx context.Context, participation *models.Participation) error {
	return translateError(r.db.WithContext(ctx).Create(participation).Error)
}

func (r *repository) CreateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	return translateError(r.db.WithContext(ctx).Create(token).Error)
}

func (r *repository) GetClaimToken(ctx context.Context, id uuid.UUID) (*models.ClaimToken, error) {
	var token models.ClaimToken
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&token).Error; err != nil {
		return nil, translateError(err)
	}
	return &token, nil
}

func (r *repository) GetClaimTokenForUpdate(ctx context.Context, id uuid.UUID) (*models.ClaimToken, error) {
	var token models.ClaimToken
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&token).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &token, nil
}

func (r *repository) UpdateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	res := r.db.WithContext(ctx).Model(token).Select("owner_id", "updated_at").Updates(token)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// DeleteClaimToken removes a redeemed token so it can never be presented again
func (r *repository) DeleteClaimToken(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ClaimToken{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListClaimTokens(ctx context.Context, ownerID uuid.UUID, filters *ClaimTokenFilters) ([]models.ClaimToken, int64, error) {
	var (
		tokens []models.ClaimToken
		total  int64
	)

	query := r.db.WithContext(ctx).Model(&models.ClaimToken{}).Where("owner_id = ?", ownerID)
	if filters.MarketID != nil {
		query = query.Where("market_id = ?", *filters.MarketID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	offset := (filters.Page - 1) * filters.PerPage
	err := query.Order("created_at DESC").Offset(offset).Limit(filters.PerPage).Find(&tokens).Error
	if err != nil {
		return nil, 0, translateError(err)
	}
	return tokens, total, nil
}

func (r *repository) AppendEvents(ctx context.Context, events ...*models.SettlementEvent) error {
	if len(events) == 0 {
		return nil
	}
	return translateError(r.db.WithContext(ctx).Create(events).Error)
}

// ListEvents returns the most recent events of a market in the order they happened
func (r *repository) ListEvents(ctx context.Context, marketID uuid.UUID, limit int) ([]models.SettlementEvent, error) {
	var evs []models.SettlementEvent
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at DESC").
		Limit(limit).
		Find(&evs).Error
	if err != nil {
		return nil, translateError(err)
	}
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	return evs, nil
}
