package settlement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joefazee/parimutuel/models"
)

type participationKey struct {
	market      uuid.UUID
	participant uuid.UUID
}

// memoryState is the committed arena. Values are stored by value and copied
// in and out so callers never alias stored state.
type memoryState struct {
	markets        map[uuid.UUID]models.Market
	participations map[participationKey]models.Participation
	tokens         map[uuid.UUID]models.ClaimToken
	events         map[uuid.UUID][]models.SettlementEvent
}

func newMemoryState() *memoryState {
	return &memoryState{
		markets:        make(map[uuid.UUID]models.Market),
		participations: make(map[participationKey]models.Participation),
		tokens:         make(map[uuid.UUID]models.ClaimToken),
		events:         make(map[uuid.UUID][]models.SettlementEvent),
	}
}

// writeSet holds the records one transaction touched. Reads inside the
// transaction see it layered over the committed state.
type writeSet struct {
	markets        map[uuid.UUID]models.Market
	newMarkets     map[uuid.UUID]bool
	participations map[participationKey]models.Participation
	tokens         map[uuid.UUID]models.ClaimToken
	newTokens      map[uuid.UUID]bool
	deletedTokens  map[uuid.UUID]bool
	events         []models.SettlementEvent
}

func newWriteSet() *writeSet {
	return &writeSet{
		markets:        make(map[uuid.UUID]models.Market),
		newMarkets:     make(map[uuid.UUID]bool),
		participations: make(map[participationKey]models.Participation),
		tokens:         make(map[uuid.UUID]models.ClaimToken),
		newTokens:      make(map[uuid.UUID]bool),
		deletedTokens:  make(map[uuid.UUID]bool),
	}
}

func copyMarket(m models.Market) models.Market {
	if m.WinningOutcome != nil {
		w := *m.WinningOutcome
		m.WinningOutcome = &w
	}
	if m.ResolvedAt != nil {
		at := *m.ResolvedAt
		m.ResolvedAt = &at
	}
	return m
}

// MemoryRepository keeps settlement state in process. Every write goes
// through a write set that is merged into the committed state on success, so
// a failed transaction leaves nothing behind. Transactions on different
// markets run concurrently; the state lock is held only while merging.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemoryState(), now: time.Now}
}

// memoryRepo is the Repository view handed to callers. ws is non-nil inside
// a transaction.
type memoryRepo struct {
	root *MemoryRepository
	ws   *writeSet
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*memoryRepo)(nil)
)

func (r *MemoryRepository) view() *memoryRepo {
	return &memoryRepo{root: r}
}

// commit merges ws into the committed state. Conflicts are checked before
// anything is applied.
func (r *MemoryRepository) commit(ws *writeSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state

	for id := range ws.newMarkets {
		if _, ok := s.markets[id]; ok {
			return models.ErrDuplicateRecord
		}
	}
	for key := range ws.participations {
		if _, ok := s.participations[key]; ok {
			return models.ErrDuplicateRecord
		}
	}
	for id := range ws.tokens {
		_, exists := s.tokens[id]
		if ws.newTokens[id] && exists {
			return models.ErrDuplicateRecord
		}
		if !ws.newTokens[id] && !exists {
			return models.ErrRecordNotFound
		}
	}
	for id := range ws.deletedTokens {
		if _, ok := s.tokens[id]; !ok {
			return models.ErrRecordNotFound
		}
	}

	for id, m := range ws.markets {
		s.markets[id] = m
	}
	for key, p := range ws.participations {
		s.participations[key] = p
	}
	for id, t := range ws.tokens {
		s.tokens[id] = t
	}
	for id := range ws.deletedTokens {
		delete(s.tokens, id)
	}
	for _, e := range ws.events {
		s.events[e.MarketID] = append(s.events[e.MarketID], e)
	}
	return nil
}

func (r *memoryRepo) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.ws != nil {
		return fn(r)
	}

	ws := newWriteSet()
	if err := fn(&memoryRepo{root: r.root, ws: ws}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.root.commit(ws)
}

// write runs fn against the current write set, or in a transaction of its
// own outside one.
func (r *memoryRepo) write(ctx context.Context, fn func(ws *writeSet) error) error {
	if r.ws != nil {
		return fn(r.ws)
	}
	return r.Transaction(ctx, func(repo Repository) error {
		return fn(repo.(*memoryRepo).ws)
	})
}

func (r *memoryRepo) market(id uuid.UUID) (models.Market, bool) {
	if r.ws != nil {
		if m, ok := r.ws.markets[id]; ok {
			return copyMarket(m), true
		}
	}
	r.root.mu.RLock()
	defer r.root.mu.RUnlock()
	m, ok := r.root.state.markets[id]
	return copyMarket(m), ok
}

func (r *memoryRepo) participation(key participationKey) (models.Participation, bool) {
	if r.ws != nil {
		if p, ok := r.ws.participations[key]; ok {
			return p, true
		}
	}
	r.root.mu.RLock()
	defer r.root.mu.RUnlock()
	p, ok := r.root.state.participations[key]
	return p, ok
}

func (r *memoryRepo) token(id uuid.UUID) (models.ClaimToken, bool) {
	if r.ws != nil {
		if r.ws.deletedTokens[id] {
			return models.ClaimToken{}, false
		}
		if t, ok := r.ws.tokens[id]; ok {
			return t, true
		}
	}
	r.root.mu.RLock()
	defer r.root.mu.RUnlock()
	t, ok := r.root.state.tokens[id]
	return t, ok
}

// eachMarket calls fn with every market visible to r.
func (r *memoryRepo) eachMarket(fn func(m models.Market)) {
	r.root.mu.RLock()
	for id, m := range r.root.state.markets {
		if r.ws != nil {
			if staged, ok := r.ws.markets[id]; ok {
				m = staged
			}
		}
		fn(copyMarket(m))
	}
	r.root.mu.RUnlock()

	if r.ws != nil {
		for id := range r.ws.newMarkets {
			fn(copyMarket(r.ws.markets[id]))
		}
	}
}

// eachToken calls fn with every claim token visible to r.
func (r *memoryRepo) eachToken(fn func(t models.ClaimToken)) {
	r.root.mu.RLock()
	for id, t := range r.root.state.tokens {
		if r.ws != nil {
			if r.ws.deletedTokens[id] {
				continue
			}
			if staged, ok := r.ws.tokens[id]; ok {
				t = staged
			}
		}
		fn(t)
	}
	r.root.mu.RUnlock()

	if r.ws != nil {
		for id := range r.ws.newTokens {
			fn(r.ws.tokens[id])
		}
	}
}

func (r *memoryRepo) CreateMarket(ctx context.Context, market *models.Market) error {
	return r.write(ctx, func(ws *writeSet) error {
		if market.ID == uuid.Nil {
			market.ID = uuid.New()
		}
		if _, ok := r.market(market.ID); ok {
			return models.ErrDuplicateRecord
		}
		now := r.root.now()
		if market.CreatedAt.IsZero() {
			market.CreatedAt = now
		}
		market.UpdatedAt = now
		ws.markets[market.ID] = copyMarket(*market)
		ws.newMarkets[market.ID] = true
		return nil
	})
}

func (r *memoryRepo) GetMarket(_ context.Context, id uuid.UUID) (*models.Market, error) {
	m, ok := r.market(id)
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &m, nil
}

// GetMarketForUpdate takes no row lock; callers serialize per market.
func (r *memoryRepo) GetMarketForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	return r.GetMarket(ctx, id)
}

func (r *memoryRepo) UpdateMarket(ctx context.Context, market *models.Market) error {
	return r.write(ctx, func(ws *writeSet) error {
		if _, ok := r.market(market.ID); !ok {
			return models.ErrRecordNotFound
		}
		market.UpdatedAt = r.root.now()
		ws.markets[market.ID] = copyMarket(*market)
		return nil
	})
}

func (r *memoryRepo) ListMarkets(_ context.Context, filters *MarketFilters) ([]models.Market, int64, error) {
	var matched []models.Market
	r.eachMarket(func(m models.Market) {
		if filters.CreatorID != nil && m.CreatorID != *filters.CreatorID {
			return
		}
		if filters.Resolved != nil && m.Resolved != *filters.Resolved {
			return
		}
		matched = append(matched, m)
	})

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, filters.Page, filters.PerPage), int64(len(matched)), nil
}

func (r *memoryRepo) GetMarketsByIDs(_ context.Context, ids []uuid.UUID) ([]models.Market, error) {
	var out []models.Market
	for _, id := range ids {
		if m, ok := r.market(id); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetParticipation(_ context.Context, marketID, participantID uuid.UUID) (*models.Participation, error) {
	p, ok := r.participation(participationKey{marketID, participantID})
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &p, nil
}

func (r *memoryRepo) CreateParticipation(ctx context.Context, participation *models.Participation) error {
	return r.write(ctx, func(ws *writeSet) error {
		key := participationKey{participation.MarketID, participation.ParticipantID}
		if _, ok := r.participation(key); ok {
			return models.ErrDuplicateRecord
		}
		if participation.CreatedAt.IsZero() {
			participation.CreatedAt = r.root.now()
		}
		ws.participations[key] = *participation
		return nil
	})
}

func (r *memoryRepo) CreateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	return r.write(ctx, func(ws *writeSet) error {
		if token.ID == uuid.Nil {
			token.ID = uuid.New()
		}
		if _, ok := r.token(token.ID); ok {
			return models.ErrDuplicateRecord
		}
		now := r.root.now()
		if token.CreatedAt.IsZero() {
			token.CreatedAt = now
		}
		token.UpdatedAt = now
		ws.tokens[token.ID] = *token
		ws.newTokens[token.ID] = true
		return nil
	})
}

func (r *memoryRepo) GetClaimToken(_ context.Context, id uuid.UUID) (*models.ClaimToken, error) {
	t, ok := r.token(id)
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return &t, nil
}

func (r *memoryRepo) GetClaimTokenForUpdate(ctx context.Context, id uuid.UUID) (*models.ClaimToken, error) {
	return r.GetClaimToken(ctx, id)
}

func (r *memoryRepo) UpdateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	return r.write(ctx, func(ws *writeSet) error {
		stored, ok := r.token(token.ID)
		if !ok {
			return models.ErrRecordNotFound
		}
		stored.OwnerID = token.OwnerID
		stored.UpdatedAt = r.root.now()
		token.UpdatedAt = stored.UpdatedAt
		ws.tokens[token.ID] = stored
		return nil
	})
}

func (r *memoryRepo) DeleteClaimToken(ctx context.Context, id uuid.UUID) error {
	return r.write(ctx, func(ws *writeSet) error {
		if _, ok := r.token(id); !ok {
			return models.ErrRecordNotFound
		}
		delete(ws.tokens, id)
		if ws.newTokens[id] {
			delete(ws.newTokens, id)
		} else {
			ws.deletedTokens[id] = true
		}
		return nil
	})
}

func (r *memoryRepo) ListClaimTokens(_ context.Context, ownerID uuid.UUID, filters *ClaimTokenFilters) ([]models.ClaimToken, int64, error) {
	var matched []models.ClaimToken
	r.eachToken(func(t models.ClaimToken) {
		if t.OwnerID != ownerID {
			return
		}
		if filters.MarketID != nil && t.MarketID != *filters.MarketID {
			return
		}
		matched = append(matched, t)
	})

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, filters.Page, filters.PerPage), int64(len(matched)), nil
}

func (r *memoryRepo) AppendEvents(ctx context.Context, events ...*models.SettlementEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.write(ctx, func(ws *writeSet) error {
		for _, e := range events {
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = r.root.now()
			}
			ws.events = append(ws.events, *e)
		}
		return nil
	})
}

func (r *memoryRepo) ListEvents(_ context.Context, marketID uuid.UUID, limit int) ([]models.SettlementEvent, error) {
	r.root.mu.RLock()
	committed := r.root.state.events[marketID]
	out := make([]models.SettlementEvent, len(committed))
	copy(out, committed)
	r.root.mu.RUnlock()

	if r.ws != nil {
		for _, e := range r.ws.events {
			if e.MarketID == marketID {
				out = append(out, e)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func paginate[T any](items []T, page, perPage int) []T {
	if perPage <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := min(start+perPage, len(items))
	return items[start:end]
}

// The methods below let *MemoryRepository satisfy Repository directly.

func (r *MemoryRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.view().Transaction(ctx, fn)
}

func (r *MemoryRepository) CreateMarket(ctx context.Context, market *models.Market) error {
	return r.view().CreateMarket(ctx, market)
}

func (r *MemoryRepository) GetMarket(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	return r.view().GetMarket(ctx, id)
}

func (r *MemoryRepository) GetMarketForUpdate(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	return r.view().GetMarketForUpdate(ctx, id)
}

func (r *MemoryRepository) UpdateMarket(ctx context.Context, market *models.Market) error {
	return r.view().UpdateMarket(ctx, market)
}

func (r *MemoryRepository) ListMarkets(ctx context.Context, filters *MarketFilters) ([]models.Market, int64, error) {
	return r.view().ListMarkets(ctx, filters)
}

func (r *MemoryRepository) GetMarketsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Market, error) {
	return r.view().GetMarketsByIDs(ctx, ids)
}

func (r *MemoryRepository) GetParticipation(ctx context.Context, marketID, participantID uuid.UUID) (*models.Participation, error) {
	return r.view().GetParticipation(ctx, marketID, participantID)
}

func (r *MemoryRepository) CreateParticipation(ctx context.Context, participation *models.Participation) error {
	return r.view().CreateParticipation(ctx, participation)
}

func (r *MemoryRepository) CreateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	return r.view().CreateClaimToken(ctx, token)
}

func (r *MemoryRepository) GetClaimToken(ctx context.Context, id uuid.UUID) (*models.ClaimToken, error) {
	return r.view().GetClaimToken(ctx, id)
}

func (r *MemoryRepository) GetClaimTokenForUpdate(ctx context.Context, id uuid.UUID) (*models.ClaimToken, error) {
	return r.view().GetClaimTokenForUpdate(ctx, id)
}

func (r *MemoryRepository) UpdateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	return r.view().UpdateClaimToken(ctx, token)
}

func (r *MemoryRepository) DeleteClaimToken(ctx context.Context, id uuid.UUID) error {
	return r.view().DeleteClaimToken(ctx, id)
}

func (r *MemoryRepository) ListClaimTokens(ctx context.Context, ownerID uuid.UUID, filters *ClaimTokenFilters) ([]models.ClaimToken, int64, error) {
	return r.view().ListClaimTokens(ctx, ownerID, filters)
}

func (r *MemoryRepository) AppendEvents(ctx context.Context, events ...*models.SettlementEvent) error {
	return r.view().AppendEvents(ctx, events...)
}

func (r *MemoryRepository) ListEvents(ctx context.Context, marketID uuid.UUID, limit int) ([]models.SettlementEvent, error) {
	return r.view().ListEvents(ctx, marketID, limit)
}
