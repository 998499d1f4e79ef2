package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/joefazee/parimutuel/internal/cache"
	"github.com/joefazee/parimutuel/internal/events"
	"github.com/joefazee/parimutuel/internal/lock"
	"github.com/joefazee/parimutuel/internal/logger"
	"github.com/joefazee/parimutuel/internal/sanitizer"
	"github.com/joefazee/parimutuel/internal/validator"
	"github.com/joefazee/parimutuel/models"
)

// ServiceOptions carries the collaborators of the settlement service. Nil
// fields fall back to in-process implementations.
type ServiceOptions struct {
	Locker    lock.Locker
	Publisher events.Publisher
	Views     cache.Cache[MarketResponse]
	Sanitizer sanitizer.HTMLStripperer
	Logger    logger.Logger
	Clock     func() time.Time
}

// service implements the Service interface. It is the host of the engine:
// it serializes mutations per market, runs each one in a storage
// transaction and publishes the resulting events after commit.
type service struct {
	repo      Repository
	engine    *Engine
	config    *Config
	locker    lock.Locker
	publisher events.Publisher
	views     cache.Cache[MarketResponse]
	sanitizer sanitizer.HTMLStripperer
	log       logger.Logger
	now       func() time.Time
	group     singleflight.Group
}

// NewService creates a new settlement service
func NewService(repo Repository, config *Config, opts ServiceOptions) Service {
	if opts.Locker == nil {
		opts.Locker = lock.NewKeyedMutex()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNullLogger()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NewLogPublisher(opts.Logger)
	}
	if opts.Views == nil {
		opts.Views = cache.NewMemoryCache[MarketResponse](cache.WithDefaultTTL(config.CacheTTL))
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitizer.NewHTMLStripper()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &service{
		repo:      repo,
		engine:    NewEngine(config),
		config:    config,
		locker:    opts.Locker,
		publisher: opts.Publisher,
		views:     opts.Views,
		sanitizer: opts.Sanitizer,
		log:       opts.Logger,
		now:       opts.Clock,
	}
}

func marketLockKey(id uuid.UUID) string {
	return "settlement:market:" + id.String()
}

func marketViewKey(id uuid.UUID) string {
	return "settlement:view:market:" + id.String()
}

// withMarket runs fn while holding the lock of marketID inside a storage
// transaction. The notifications fn returns are stored with the change and
// published once the transaction has committed.
func (s *service) withMarket(ctx context.Context, marketID uuid.UUID, fn func(tx Repository, now time.Time) ([]Notification, error)) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.config.LockTimeout)
	unlock, err := s.locker.Lock(lockCtx, marketLockKey(marketID))
	cancel()
	if err != nil {
		return err
	}

	var records []*models.SettlementEvent
	err = func() error {
		defer unlock()
		return s.repo.Transaction(ctx, func(tx Repository) error {
			now := s.now().UTC()
			notes, err := fn(tx, now)
			if err != nil {
				return err
			}
			records, err = recordsFor(now, notes...)
			if err != nil {
				return fmt.Errorf("encode settlement events: %w", err)
			}
			return tx.AppendEvents(ctx, records...)
		})
	}()
	if err != nil {
		return err
	}

	s.invalidate(ctx, marketID)
	s.publish(ctx, records)
	return nil
}

func (s *service) publish(ctx context.Context, records []*models.SettlementEvent) {
	for _, r := range records {
		s.log.Info("settlement committed", logger.Fields{
			"event_type": string(r.Type),
			"market_id":  r.MarketID.String(),
			"actor_id":   r.ActorID.String(),
		})
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), busEvents(records)...); err != nil {
		s.log.Error(err, logger.Fields{"op": "publish", "count": len(records)})
	}
}

func (s *service) invalidate(ctx context.Context, marketID uuid.UUID) {
	if err := s.views.Delete(context.WithoutCancel(ctx), marketViewKey(marketID)); err != nil {
		s.log.Warn("market view invalidation failed", logger.Fields{
			"market_id": marketID.String(),
			"error":     err.Error(),
		})
	}
}

func (s *service) CreateMarket(ctx context.Context, creator uuid.UUID, req *CreateMarketRequest) (*MarketResponse, error) {
	v := validator.New()
	req.SanitizeAndValidate(v, s.sanitizer, s.config)
	if !v.Valid() {
		return nil, validator.NewValidationError("Validation failed", v.Errors)
	}

	market, created, err := s.engine.CreateMarket(CreateParams{
		Creator:     creator,
		Question:    req.Question,
		Description: req.Description,
		LabelA:      req.LabelA,
		LabelB:      req.LabelB,
		Deadline:    req.Deadline.UTC(),
	})
	if err != nil {
		return nil, err
	}

	var records []*models.SettlementEvent
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		if err := tx.CreateMarket(ctx, market); err != nil {
			return fmt.Errorf("create market: %w", err)
		}
		records, err = recordsFor(s.now().UTC(), created)
		if err != nil {
			return err
		}
		return tx.AppendEvents(ctx, records...)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, records)
	return ToMarketResponse(market), nil
}

// outcomeSelector maps a missing selector to an out-of-range one so the
// engine reports it in its usual check order.
func outcomeSelector(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

func (s *service) PlaceStake(ctx context.Context, marketID, staker uuid.UUID, req *PlaceStakeRequest) (*StakeResponse, error) {

	var resp *StakeResponse
	err := s.withMarket(ctx, marketID, func(tx Repository, now time.Time) ([]Notification, error) {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return nil, err
		}

		existing, err := tx.GetParticipation(ctx, marketID, staker)
		if err != nil && !errors.Is(err, models.ErrRecordNotFound) {
			return nil, err
		}

		funds := models.NewFunds(req.Amount)
		res, err := s.engine.PlaceStake(market, StakeParams{
			Staker:   staker,
			Outcome:  outcomeSelector(req.Outcome),
			Funds:    &funds,
			Existing: existing,
			Now:      now,
		})
		if err != nil {
			return nil, err
		}

		if err := tx.CreateParticipation(ctx, res.Participation); err != nil {
			if errors.Is(err, models.ErrDuplicateRecord) {
				return nil, models.ErrAlreadyParticipated
			}
			return nil, fmt.Errorf("record participation: %w", err)
		}
		if err := tx.CreateClaimToken(ctx, res.Token); err != nil {
			return nil, fmt.Errorf("mint claim token: %w", err)
		}
		if err := s.persistMarket(ctx, tx, market); err != nil {
			return nil, err
		}

		resp = &StakeResponse{
			ClaimToken: *ToClaimTokenResponse(res.Token),
			MarketID:   market.ID,
			Pool:       market.Pool,
		}
		return []Notification{res.Event}, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *service) ResolveMarket(ctx context.Context, marketID, caller uuid.UUID, req *ResolveMarketRequest) (*MarketResponse, error) {

	var resp *MarketResponse
	err := s.withMarket(ctx, marketID, func(tx Repository, now time.Time) ([]Notification, error) {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return nil, err
		}

		resolved, err := s.engine.Resolve(market, ResolveParams{Caller: caller, Outcome: outcomeSelector(req.Outcome), Now: now})
		if err != nil {
			return nil, err
		}
		if err := s.persistMarket(ctx, tx, market); err != nil {
			return nil, err
		}

		resp = ToMarketResponse(market)
		return []Notification{resolved}, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *service) ClaimReward(ctx context.Context, marketID, caller uuid.UUID, req *ClaimRewardRequest) (*ClaimResponse, error) {
	tokenID, err := uuid.Parse(req.ClaimTokenID)
	if err != nil {
		return nil, models.ErrInvalidUUID
	}

	var resp *ClaimResponse
	err = s.withMarket(ctx, marketID, func(tx Repository, _ time.Time) ([]Notification, error) {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return nil, err
		}
		token, err := tx.GetClaimTokenForUpdate(ctx, tokenID)
		if err != nil {
			return nil, err
		}

		res, err := s.engine.Claim(market, token, caller)
		if err != nil {
			return nil, err
		}

		if err := tx.DeleteClaimToken(ctx, token.ID); err != nil {
			return nil, fmt.Errorf("burn claim token: %w", err)
		}
		if err := s.persistMarket(ctx, tx, market); err != nil {
			return nil, err
		}

		resp = &ClaimResponse{
			MarketID:      market.ID,
			ClaimTokenID:  token.ID,
			Claimant:      caller,
			Reward:        res.Reward,
			PoolRemaining: market.Pool,
		}
		return []Notification{res.Event}, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *service) TransferClaimToken(ctx context.Context, tokenID, caller uuid.UUID, req *TransferClaimTokenRequest) (*ClaimTokenResponse, error) {
	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		return nil, models.ErrInvalidRecipient
	}

	current, err := s.repo.GetClaimToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	var resp *ClaimTokenResponse
	err = s.withMarket(ctx, current.MarketID, func(tx Repository, _ time.Time) ([]Notification, error) {
		token, err := tx.GetClaimTokenForUpdate(ctx, tokenID)
		if err != nil {
			return nil, err
		}

		moved, err := s.engine.Transfer(token, TransferParams{From: caller, To: recipient})
		if err != nil {
			return nil, err
		}
		if err := tx.UpdateClaimToken(ctx, token); err != nil {
			return nil, fmt.Errorf("transfer claim token: %w", err)
		}

		resp = ToClaimTokenResponse(token)
		return []Notification{moved}, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// persistMarket stores the market after checking pool accounting.
func (s *service) persistMarket(ctx context.Context, tx Repository, market *models.Market) error {
	if err := market.CheckConservation(); err != nil {
		return err
	}
	if err := tx.UpdateMarket(ctx, market); err != nil {
		return fmt.Errorf("update market: %w", err)
	}
	return nil
}

// marketView returns the cached view of a market, loading it on a miss.
// Concurrent misses for the same market share one load.
func (s *service) marketView(ctx context.Context, marketID uuid.UUID) (*MarketResponse, error) {
	key := marketViewKey(marketID)
	if v, err := s.views.Get(ctx, key); err == nil {
		return &v, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("market view cache read failed", logger.Fields{"market_id": marketID.String(), "error": err.Error()})
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		market, err := s.repo.GetMarket(ctx, marketID)
		if err != nil {
			return nil, err
		}
		view := ToMarketResponse(market)
		if err := s.views.Set(ctx, key, *view, s.config.CacheTTL); err != nil {
			s.log.Warn("market view cache write failed", logger.Fields{"market_id": marketID.String(), "error": err.Error()})
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	view := *v.(*MarketResponse)
	return &view, nil
}

func (s *service) GetMarketInfo(ctx context.Context, marketID uuid.UUID) (*MarketResponse, error) {
	return s.marketView(ctx, marketID)
}

func (s *service) ListMarkets(ctx context.Context, filters *MarketFilters) (*MarketListResponse, error) {
	if filters == nil {
		filters = &MarketFilters{}
	}
	f := *filters
	f.Page, f.PerPage = normalizePage(f.Page, f.PerPage, s.config)
	if f.CreatorID == nil && f.Creator != "" {
		id, err := uuid.Parse(f.Creator)
		if err != nil {
			return nil, models.ErrInvalidCreatorID
		}
		f.CreatorID = &id
	}

	markets, total, err := s.repo.ListMarkets(ctx, &f)
	if err != nil {
		return nil, err
	}

	resp := &MarketListResponse{
		Markets:    make([]MarketResponse, 0, len(markets)),
		Total:      total,
		Page:       f.Page,
		PerPage:    f.PerPage,
		TotalPages: totalPages(total, f.PerPage),
	}
	for i := range markets {
		resp.Markets = append(resp.Markets, *ToMarketResponse(&markets[i]))
	}
	return resp, nil
}

func (s *service) GetOdds(ctx context.Context, marketID uuid.UUID) (*OddsResponse, error) {
	view, err := s.marketView(ctx, marketID)
	if err != nil {
		return nil, err
	}
	a, b := view.AggregateStakes[0], view.AggregateStakes[1]
	total := a + b
	return &OddsResponse{
		MarketID:            view.ID,
		StakeA:              a,
		StakeB:              b,
		Total:               total,
		ImpliedProbabilityA: impliedProbability(a, total),
		ImpliedProbabilityB: impliedProbability(b, total),
	}, nil
}

func (s *service) GetPoolValue(ctx context.Context, marketID uuid.UUID) (*PoolResponse, error) {
	view, err := s.marketView(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return &PoolResponse{
		MarketID:    view.ID,
		Pool:        view.Pool,
		PaidOut:     view.PaidOut,
		TotalStaked: view.AggregateStakes[0] + view.AggregateStakes[1],
	}, nil
}

func (s *service) GetStatus(ctx context.Context, marketID uuid.UUID) (*StatusResponse, error) {
	view, err := s.marketView(ctx, marketID)
	if err != nil {
		return nil, err
	}
	resp := &StatusResponse{
		MarketID:       view.ID,
		Resolved:       view.Resolved,
		WinningOutcome: view.WinningOutcome,
	}
	if view.WinningOutcome != nil {
		resp.WinningLabel = view.Labels[*view.WinningOutcome]
	}
	return resp, nil
}

func (s *service) HasParticipated(ctx context.Context, marketID, identity uuid.UUID) (*ParticipationResponse, error) {
	if _, err := s.marketView(ctx, marketID); err != nil {
		return nil, err
	}

	resp := &ParticipationResponse{MarketID: marketID, Identity: identity}
	p, err := s.repo.GetParticipation(ctx, marketID, identity)
	if errors.Is(err, models.ErrRecordNotFound) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	outcome := int(p.Outcome)
	resp.Participated = true
	resp.Outcome = &outcome
	resp.Amount = p.Amount
	return resp, nil
}

func (s *service) GetMarketEvents(ctx context.Context, marketID uuid.UUID) ([]EventResponse, error) {
	if _, err := s.marketView(ctx, marketID); err != nil {
		return nil, err
	}

	evs, err := s.repo.ListEvents(ctx, marketID, s.config.EventHistoryLimit)
	if err != nil {
		return nil, err
	}
	out := make([]EventResponse, 0, len(evs))
	for _, e := range evs {
		out = append(out, EventResponse{
			ID:        e.ID,
			Type:      string(e.Type),
			ActorID:   e.ActorID,
			Payload:   []byte(e.Payload),
			CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}

func (s *service) GetClaimTokenInfo(ctx context.Context, tokenID uuid.UUID) (*ClaimTokenResponse, error) {
	token, err := s.repo.GetClaimToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return ToClaimTokenResponse(token), nil
}

func (s *service) ListClaimTokens(ctx context.Context, owner uuid.UUID, filters *ClaimTokenFilters) (*ClaimTokenListResponse, error) {
	if filters == nil {
		filters = &ClaimTokenFilters{}
	}
	f := *filters
	f.Page, f.PerPage = normalizePage(f.Page, f.PerPage, s.config)
	if f.MarketID == nil && f.MarketText != "" {
		id, err := uuid.Parse(f.MarketText)
		if err != nil {
			return nil, models.ErrInvalidMarketID
		}
		f.MarketID = &id
	}

	tokens, total, err := s.repo.ListClaimTokens(ctx, owner, &f)
	if err != nil {
		return nil, err
	}

	views, err := s.marketViews(ctx, tokens)
	if err != nil {
		return nil, err
	}

	resp := &ClaimTokenListResponse{
		Tokens:     make([]ClaimTokenListItem, 0, len(tokens)),
		Total:      total,
		Page:       f.Page,
		PerPage:    f.PerPage,
		TotalPages: totalPages(total, f.PerPage),
	}
	for i := range tokens {
		item := ClaimTokenListItem{ClaimTokenResponse: *ToClaimTokenResponse(&tokens[i])}
		if view, ok := views[tokens[i].MarketID]; ok {
			item.MarketResolved = view.Resolved
			item.Claimable = view.WinningOutcome != nil &&
				*view.WinningOutcome == int(tokens[i].Outcome) &&
				view.AggregateStakes[*view.WinningOutcome] > 0
		}
		resp.Tokens = append(resp.Tokens, item)
	}
	return resp, nil
}

// marketViews loads the views of every market referenced by tokens with one
// cache round trip, filling misses from storage.
func (s *service) marketViews(ctx context.Context, tokens []models.ClaimToken) (map[uuid.UUID]MarketResponse, error) {
	out := make(map[uuid.UUID]MarketResponse)
	if len(tokens) == 0 {
		return out, nil
	}

	var (
		ids  []uuid.UUID
		keys []string
		seen = make(map[uuid.UUID]bool)
	)
	for _, t := range tokens {
		if seen[t.MarketID] {
			continue
		}
		seen[t.MarketID] = true
		ids = append(ids, t.MarketID)
		keys = append(keys, marketViewKey(t.MarketID))
	}

	vals, errs := s.views.MGet(ctx, keys...)
	var missing []uuid.UUID
	for i, id := range ids {
		if errs[i] != nil {
			missing = append(missing, id)
			continue
		}
		out[id] = vals[i]
	}
	if len(missing) == 0 {
		return out, nil
	}

	markets, err := s.repo.GetMarketsByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	fill := make(map[string]MarketResponse, len(markets))
	for i := range markets {
		view := *ToMarketResponse(&markets[i])
		out[view.ID] = view
		fill[marketViewKey(view.ID)] = view
	}
	if err := s.views.MSet(ctx, fill, s.config.CacheTTL); err != nil {
		s.log.Warn("market view cache fill failed", logger.Fields{"count": len(fill), "error": err.Error()})
	}
	return out, nil
}

func (s *service) QuoteReward(ctx context.Context, tokenID uuid.UUID) (*QuoteResponse, error) {
	token, err := s.repo.GetClaimToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	market, err := s.repo.GetMarket(ctx, token.MarketID)
	if err != nil {
		return nil, err
	}

	reward, err := s.engine.Quote(market, token)
	if err != nil {
		return nil, err
	}
	return &QuoteResponse{
		ClaimTokenID: token.ID,
		MarketID:     market.ID,
		Reward:       reward,
		PayoutBasis:  s.engine.Basis(),
	}, nil
}
