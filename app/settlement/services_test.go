package settlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joefazee/parimutuel/internal/cache"
	"github.com/joefazee/parimutuel/internal/deps"
	"github.com/joefazee/parimutuel/internal/events"
	"github.com/joefazee/parimutuel/internal/lock"
	"github.com/joefazee/parimutuel/internal/validator"
	"github.com/joefazee/parimutuel/models"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type serviceFixture struct {
	svc       Service
	repo      *MemoryRepository
	publisher *events.MemoryPublisher
	locker    *lock.KeyedMutex
	clock     *testClock
}

func newServiceFixture(t *testing.T, mutate ...func(*Config)) *serviceFixture {
	t.Helper()
	cfg := GetDefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, cfg.Validate())

	f := &serviceFixture{
		repo:      NewMemoryRepository(),
		publisher: events.NewMemoryPublisher(),
		locker:    lock.NewKeyedMutex(),
		clock:     &testClock{now: testNow},
	}
	f.svc = NewService(f.repo, cfg, ServiceOptions{
		Locker:    f.locker,
		Publisher: f.publisher,
		Views:     cache.NewMemoryCache[MarketResponse](),
		Clock:     f.clock.Now,
	})
	return f
}

func intPtr(v int) *int { return &v }

func (f *serviceFixture) createMarket(t *testing.T, creator uuid.UUID) *MarketResponse {
	t.Helper()
	m, err := f.svc.CreateMarket(context.Background(), creator, &CreateMarketRequest{
		Question:    "Will the bridge open before June?",
		Description: "<b>Resolution</b> by the city council notice",
		LabelA:      "Yes",
		LabelB:      "No",
		Deadline:    testDeadline,
	})
	require.NoError(t, err)
	return m
}

func (f *serviceFixture) stake(t *testing.T, marketID, staker uuid.UUID, outcome int, amount uint64) *StakeResponse {
	t.Helper()
	res, err := f.svc.PlaceStake(context.Background(), marketID, staker, &PlaceStakeRequest{
		Outcome: intPtr(outcome),
		Amount:  amount,
	})
	require.NoError(t, err)
	return res
}

func (f *serviceFixture) assertConserved(t *testing.T, marketID uuid.UUID) {
	t.Helper()
	m, err := f.repo.GetMarket(context.Background(), marketID)
	require.NoError(t, err)
	assert.NoError(t, m.CheckConservation())
}

func TestService_Lifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	creator, a, b, c := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	market := f.createMarket(t, creator)
	assert.Equal(t, "Resolution by the city council notice", market.Description)
	assert.Equal(t, [2]string{"Yes", "No"}, market.Labels)

	tokA := f.stake(t, market.ID, a, 0, 1000)
	tokB := f.stake(t, market.ID, b, 0, 1000)
	tokC := f.stake(t, market.ID, c, 1, 2000)
	assert.Equal(t, uint64(4000), tokC.Pool)
	assert.Equal(t, a, tokA.ClaimToken.OwnerID)

	resolved, err := f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.WinningOutcome)
	assert.Equal(t, 0, *resolved.WinningOutcome)

	claimA, err := f.svc.ClaimReward(ctx, market.ID, a, &ClaimRewardRequest{ClaimTokenID: tokA.ClaimToken.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), claimA.Reward)
	assert.Equal(t, uint64(2000), claimA.PoolRemaining)

	claimB, err := f.svc.ClaimReward(ctx, market.ID, b, &ClaimRewardRequest{ClaimTokenID: tokB.ClaimToken.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), claimB.Reward)

	_, err = f.svc.ClaimReward(ctx, market.ID, c, &ClaimRewardRequest{ClaimTokenID: tokC.ClaimToken.ID.String()})
	assert.ErrorIs(t, err, models.ErrWrongOutcome)
	_, err = f.svc.GetClaimTokenInfo(ctx, tokC.ClaimToken.ID)
	assert.NoError(t, err, "a losing claim must leave the token in place")

	_, err = f.svc.ClaimReward(ctx, market.ID, a, &ClaimRewardRequest{ClaimTokenID: tokA.ClaimToken.ID.String()})
	assert.ErrorIs(t, err, models.ErrRecordNotFound, "a redeemed token cannot be presented again")

	pool, err := f.svc.GetPoolValue(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), pool.Pool)
	assert.Equal(t, uint64(3000), pool.PaidOut)
	assert.Equal(t, uint64(4000), pool.TotalStaked)
	f.assertConserved(t, market.ID)

	assert.Equal(t, []string{
		string(models.EventMarketCreated),
		string(models.EventStakePlaced),
		string(models.EventStakePlaced),
		string(models.EventStakePlaced),
		string(models.EventMarketResolved),
		string(models.EventRewardClaimed),
		string(models.EventRewardClaimed),
	}, f.publisher.Types())

	history, err := f.svc.GetMarketEvents(ctx, market.ID)
	require.NoError(t, err)
	require.Len(t, history, 7)
	assert.Equal(t, string(models.EventMarketCreated), history[0].Type)
	assert.Equal(t, string(models.EventRewardClaimed), history[6].Type)
}

func TestService_PlaceStakeRejections(t *testing.T) {
	ctx := context.Background()
	creator, staker := uuid.New(), uuid.New()

	t.Run("second stake by the same identity", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)
		f.stake(t, market.ID, staker, 0, 500)

		_, err := f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Outcome: intPtr(1), Amount: 700})
		assert.ErrorIs(t, err, models.ErrAlreadyParticipated)

		pool, err := f.svc.GetPoolValue(ctx, market.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), pool.Pool)
	})

	t.Run("deadline passed", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)
		f.clock.Set(testDeadline)

		_, err := f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Outcome: intPtr(0), Amount: 10})
		assert.ErrorIs(t, err, models.ErrDeadlinePassed)
	})

	t.Run("resolved market", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)
		_, err := f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(1)})
		require.NoError(t, err)

		_, err = f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Outcome: intPtr(1), Amount: 10})
		assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	})

	t.Run("invalid outcome and zero amount", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)

		_, err := f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Outcome: intPtr(2), Amount: 10})
		assert.ErrorIs(t, err, models.ErrInvalidOutcome)
		_, err = f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Amount: 10})
		assert.ErrorIs(t, err, models.ErrInvalidOutcome)
		_, err = f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Outcome: intPtr(0)})
		assert.ErrorIs(t, err, models.ErrInsufficientStake)

		p, err := f.svc.HasParticipated(ctx, market.ID, staker)
		require.NoError(t, err)
		assert.False(t, p.Participated, "rejected stakes leave no ledger entry")
	})

	t.Run("unknown market", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.PlaceStake(ctx, uuid.New(), staker, &PlaceStakeRequest{Outcome: intPtr(0), Amount: 10})
		assert.ErrorIs(t, err, models.ErrRecordNotFound)
	})

	t.Run("missing outcome on a resolved market", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)
		_, err := f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
		require.NoError(t, err)

		_, err = f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Amount: 10})
		assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	})

	t.Run("missing outcome after the deadline", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)
		f.clock.Set(testDeadline)

		_, err := f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Amount: 10})
		assert.ErrorIs(t, err, models.ErrDeadlinePassed)
	})

	t.Run("amount above the storable range", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)

		_, err := f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Outcome: intPtr(0), Amount: models.MaxAmount + 1})
		assert.ErrorIs(t, err, models.ErrAmountOverflow)

		pool, err := f.svc.GetPoolValue(ctx, market.ID)
		require.NoError(t, err)
		assert.Zero(t, pool.Pool)
	})
}

func TestService_ResolveMarket(t *testing.T) {
	ctx := context.Background()
	creator := uuid.New()

	t.Run("only the creator resolves, once", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)

		_, err := f.svc.ResolveMarket(ctx, market.ID, uuid.New(), &ResolveMarketRequest{Outcome: intPtr(0)})
		assert.ErrorIs(t, err, models.ErrNotCreator)

		_, err = f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(1)})
		require.NoError(t, err)
		_, err = f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
		assert.ErrorIs(t, err, models.ErrAlreadyResolved)

		status, err := f.svc.GetStatus(ctx, market.ID)
		require.NoError(t, err)
		assert.True(t, status.Resolved)
		assert.Equal(t, "No", status.WinningLabel)
	})

	t.Run("missing outcome reports lifecycle errors first", func(t *testing.T) {
		f := newServiceFixture(t)
		market := f.createMarket(t, creator)

		_, err := f.svc.ResolveMarket(ctx, market.ID, uuid.New(), &ResolveMarketRequest{})
		assert.ErrorIs(t, err, models.ErrNotCreator)
		_, err = f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{})
		assert.ErrorIs(t, err, models.ErrInvalidOutcome)

		_, err = f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(1)})
		require.NoError(t, err)
		_, err = f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{})
		assert.ErrorIs(t, err, models.ErrAlreadyResolved)
	})

	t.Run("deadline rule when configured", func(t *testing.T) {
		f := newServiceFixture(t, func(c *Config) { c.ResolveAfterDeadline = true })
		market := f.createMarket(t, creator)

		_, err := f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
		assert.ErrorIs(t, err, models.ErrDeadlineNotReached)

		f.clock.Set(testDeadline)
		_, err = f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
		assert.NoError(t, err)
	})
}

func TestService_NoWinningStake(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	creator, loser := uuid.New(), uuid.New()

	market := f.createMarket(t, creator)
	tok := f.stake(t, market.ID, loser, 1, 300)
	_, err := f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
	require.NoError(t, err)

	_, err = f.svc.ClaimReward(ctx, market.ID, loser, &ClaimRewardRequest{ClaimTokenID: tok.ClaimToken.ID.String()})
	assert.ErrorIs(t, err, models.ErrWrongOutcome)

	pool, err := f.svc.GetPoolValue(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), pool.Pool, "with no winning stake the pool stays locked")
}

func TestService_ClaimRequiresOwnership(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	creator, owner := uuid.New(), uuid.New()

	market := f.createMarket(t, creator)
	tok := f.stake(t, market.ID, owner, 0, 100)
	_, err := f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
	require.NoError(t, err)

	_, err = f.svc.ClaimReward(ctx, market.ID, uuid.New(), &ClaimRewardRequest{ClaimTokenID: tok.ClaimToken.ID.String()})
	assert.ErrorIs(t, err, models.ErrNotTokenOwner)

	_, err = f.svc.ClaimReward(ctx, market.ID, owner, &ClaimRewardRequest{ClaimTokenID: "not-a-uuid"})
	assert.ErrorIs(t, err, models.ErrInvalidUUID)
}

func TestService_ClaimBeforeResolution(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	market := f.createMarket(t, uuid.New())
	tok := f.stake(t, market.ID, owner, 0, 100)

	_, err := f.svc.ClaimReward(ctx, market.ID, owner, &ClaimRewardRequest{ClaimTokenID: tok.ClaimToken.ID.String()})
	assert.ErrorIs(t, err, models.ErrNotResolved)

	quote, err := f.svc.QuoteReward(ctx, tok.ClaimToken.ID)
	assert.Nil(t, quote)
	assert.ErrorIs(t, err, models.ErrNotResolved)
}

func TestService_TransferClaimToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	creator, staker, buyer := uuid.New(), uuid.New(), uuid.New()

	market := f.createMarket(t, creator)
	tok := f.stake(t, market.ID, staker, 0, 400)
	f.stake(t, market.ID, uuid.New(), 1, 600)

	_, err := f.svc.TransferClaimToken(ctx, tok.ClaimToken.ID, buyer, &TransferClaimTokenRequest{Recipient: staker.String()})
	assert.ErrorIs(t, err, models.ErrNotTokenOwner)
	_, err = f.svc.TransferClaimToken(ctx, tok.ClaimToken.ID, staker, &TransferClaimTokenRequest{Recipient: "nobody"})
	assert.ErrorIs(t, err, models.ErrInvalidRecipient)

	moved, err := f.svc.TransferClaimToken(ctx, tok.ClaimToken.ID, staker, &TransferClaimTokenRequest{Recipient: buyer.String()})
	require.NoError(t, err)
	assert.Equal(t, buyer, moved.OwnerID)

	_, err = f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
	require.NoError(t, err)

	quote, err := f.svc.QuoteReward(ctx, tok.ClaimToken.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), quote.Reward)
	assert.Equal(t, PayoutLive, quote.PayoutBasis)

	_, err = f.svc.ClaimReward(ctx, market.ID, staker, &ClaimRewardRequest{ClaimTokenID: tok.ClaimToken.ID.String()})
	assert.ErrorIs(t, err, models.ErrNotTokenOwner)
	claim, err := f.svc.ClaimReward(ctx, market.ID, buyer, &ClaimRewardRequest{ClaimTokenID: tok.ClaimToken.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), claim.Reward)

	p, err := f.svc.HasParticipated(ctx, market.ID, buyer)
	require.NoError(t, err)
	assert.False(t, p.Participated, "a transfer does not change the participant set")
}

func TestService_ReadViews(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	creator, a, b := uuid.New(), uuid.New(), uuid.New()

	market := f.createMarket(t, creator)

	odds, err := f.svc.GetOdds(ctx, market.ID)
	require.NoError(t, err)
	assert.Zero(t, odds.Total)
	assert.True(t, odds.ImpliedProbabilityA.IsZero())

	info, err := f.svc.GetMarketInfo(ctx, market.ID)
	require.NoError(t, err)
	assert.Zero(t, info.Pool)

	f.stake(t, market.ID, a, 0, 300)
	f.stake(t, market.ID, b, 1, 100)

	info, err = f.svc.GetMarketInfo(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), info.Pool, "a committed stake invalidates the cached view")
	assert.Equal(t, int64(2), info.ParticipantCount)

	odds, err = f.svc.GetOdds(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), odds.StakeA)
	assert.Equal(t, uint64(100), odds.StakeB)
	assert.True(t, decimal.NewFromInt(75).Equal(odds.ImpliedProbabilityA))
	assert.True(t, decimal.NewFromInt(25).Equal(odds.ImpliedProbabilityB))

	p, err := f.svc.HasParticipated(ctx, market.ID, a)
	require.NoError(t, err)
	assert.True(t, p.Participated)
	require.NotNil(t, p.Outcome)
	assert.Equal(t, 0, *p.Outcome)
	assert.Equal(t, uint64(300), p.Amount)

	_, err = f.svc.GetMarketInfo(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
	_, err = f.svc.HasParticipated(ctx, uuid.New(), a)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestService_ListMarkets(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		f.createMarket(t, alice)
	}
	bobs := f.createMarket(t, bob)
	_, err := f.svc.ResolveMarket(ctx, bobs.ID, bob, &ResolveMarketRequest{Outcome: intPtr(0)})
	require.NoError(t, err)

	all, err := f.svc.ListMarkets(ctx, &MarketFilters{PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
	assert.Len(t, all.Markets, 2)
	assert.Equal(t, 2, all.TotalPages)

	mine, err := f.svc.ListMarkets(ctx, &MarketFilters{Creator: alice.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(3), mine.Total)

	resolved := true
	done, err := f.svc.ListMarkets(ctx, &MarketFilters{Resolved: &resolved})
	require.NoError(t, err)
	require.Len(t, done.Markets, 1)
	assert.Equal(t, bobs.ID, done.Markets[0].ID)

	_, err = f.svc.ListMarkets(ctx, &MarketFilters{Creator: "bogus"})
	assert.ErrorIs(t, err, models.ErrInvalidCreatorID)
}

func TestService_ListClaimTokens(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	creator, holder := uuid.New(), uuid.New()

	won := f.createMarket(t, creator)
	lost := f.createMarket(t, creator)
	open := f.createMarket(t, creator)

	f.stake(t, won.ID, holder, 0, 10)
	f.stake(t, lost.ID, holder, 1, 10)
	f.stake(t, lost.ID, uuid.New(), 0, 10)
	f.stake(t, open.ID, holder, 0, 10)

	for _, id := range []uuid.UUID{won.ID, lost.ID} {
		_, err := f.svc.ResolveMarket(ctx, id, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
		require.NoError(t, err)
	}

	list, err := f.svc.ListClaimTokens(ctx, holder, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), list.Total)

	byMarket := make(map[uuid.UUID]ClaimTokenListItem)
	for _, item := range list.Tokens {
		byMarket[item.MarketID] = item
	}
	assert.True(t, byMarket[won.ID].Claimable)
	assert.True(t, byMarket[won.ID].MarketResolved)
	assert.False(t, byMarket[lost.ID].Claimable)
	assert.True(t, byMarket[lost.ID].MarketResolved)
	assert.False(t, byMarket[open.ID].Claimable)
	assert.False(t, byMarket[open.ID].MarketResolved)

	filtered, err := f.svc.ListClaimTokens(ctx, holder, &ClaimTokenFilters{MarketText: won.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered.Total)

	_, err = f.svc.ListClaimTokens(ctx, holder, &ClaimTokenFilters{MarketText: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidMarketID)
}

func TestService_CreateMarketValidation(t *testing.T) {
	f := newServiceFixture(t, func(c *Config) { c.MaxQuestionLength = 10 })

	_, err := f.svc.CreateMarket(context.Background(), uuid.New(), &CreateMarketRequest{
		Question: "This question is far too long",
		Deadline: testDeadline,
	})

	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "question")
	assert.Empty(t, f.publisher.Events())
}

func TestService_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newServiceFixture(t)
	f.publisher.FailWith(errors.New("bus down"))

	market := f.createMarket(t, uuid.New())
	res := f.stake(t, market.ID, uuid.New(), 0, 50)

	assert.Equal(t, uint64(50), res.Pool)
	assert.Empty(t, f.publisher.Events())
	f.assertConserved(t, market.ID)
}

func TestService_LockTimeout(t *testing.T) {
	f := newServiceFixture(t, func(c *Config) { c.LockTimeout = 20 * time.Millisecond })
	market := f.createMarket(t, uuid.New())

	unlock, err := f.locker.Lock(context.Background(), marketLockKey(market.ID))
	require.NoError(t, err)
	defer unlock()

	_, err = f.svc.PlaceStake(context.Background(), market.ID, uuid.New(), &PlaceStakeRequest{Outcome: intPtr(0), Amount: 1})
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
}

func TestService_ConcurrentStakes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	market := f.createMarket(t, uuid.New())

	const stakers = 50
	var wg sync.WaitGroup
	for i := 0; i < stakers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.PlaceStake(ctx, market.ID, uuid.New(), &PlaceStakeRequest{
				Outcome: intPtr(i % 2),
				Amount:  uint64(i + 1),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	info, err := f.svc.GetMarketInfo(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(stakers*(stakers+1)/2), info.Pool)
	assert.Equal(t, int64(stakers), info.ParticipantCount)
	f.assertConserved(t, market.ID)
}

func TestService_ConcurrentStakesSameIdentity(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	market := f.createMarket(t, uuid.New())
	staker := uuid.New()

	var ok, dup int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceStake(ctx, market.ID, staker, &PlaceStakeRequest{Outcome: intPtr(0), Amount: 5})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, models.ErrAlreadyParticipated):
				atomic.AddInt32(&dup, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(19), dup)

	pool, err := f.svc.GetPoolValue(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), pool.Pool)
}

func TestService_ConcurrentClaimsOfOneToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	creator, owner := uuid.New(), uuid.New()

	market := f.createMarket(t, creator)
	tok := f.stake(t, market.ID, owner, 0, 100)
	f.stake(t, market.ID, uuid.New(), 1, 100)
	_, err := f.svc.ResolveMarket(ctx, market.ID, creator, &ResolveMarketRequest{Outcome: intPtr(0)})
	require.NoError(t, err)

	var paid int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ClaimReward(ctx, market.ID, owner, &ClaimRewardRequest{ClaimTokenID: tok.ClaimToken.ID.String()})
			if err == nil {
				atomic.AddInt32(&paid, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), paid)
	pool, err := f.svc.GetPoolValue(ctx, market.ID)
	require.NoError(t, err)
	assert.Zero(t, pool.Pool)
	assert.Equal(t, uint64(200), pool.PaidOut)
}

func TestService_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := GetDefaultConfig()
	svc := NewService(NewMemoryRepository(), cfg, ServiceOptions{
		Locker:    lock.NewRedisLocker(rdb, "", 5*time.Second, 5*time.Millisecond, nil),
		Publisher: events.NewRedisPublisher(rdb, "", ""),
		Views:     cache.NewRedisCacheFromClient[MarketResponse](rdb, time.Second),
		Clock:     func() time.Time { return testNow },
	})
	ctx := context.Background()
	creator := uuid.New()

	market, err := svc.CreateMarket(ctx, creator, &CreateMarketRequest{
		Question: "Will the launch slip?",
		LabelA:   "Slip",
		LabelB:   "On time",
		Deadline: testDeadline,
	})
	require.NoError(t, err)

	_, err = svc.GetMarketInfo(ctx, market.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(marketViewKey(market.ID)))

	_, err = svc.PlaceStake(ctx, market.ID, uuid.New(), &PlaceStakeRequest{Outcome: intPtr(1), Amount: 42})
	require.NoError(t, err)
	assert.False(t, mr.Exists(marketViewKey(market.ID)), "commit drops the cached view")
	assert.False(t, mr.Exists("lock:"+marketLockKey(market.ID)), "lock released after commit")

	info, err := svc.GetMarketInfo(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), info.Pool)

	n, err := rdb.XLen(ctx, events.DefaultStream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestService_ViewCacheHonoursCacheTTL(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.CacheTTL = 45 * time.Second

	built, err := Build(cfg, &deps.Container{})
	require.NoError(t, err)
	views, ok := built.(*service).views.(*cache.MemoryCache[MarketResponse])
	require.True(t, ok)
	defer views.Stop()
	assert.Equal(t, 45*time.Second, views.DefaultTTL())

	direct := NewService(NewMemoryRepository(), cfg, ServiceOptions{})
	views, ok = direct.(*service).views.(*cache.MemoryCache[MarketResponse])
	require.True(t, ok)
	defer views.Stop()
	assert.Equal(t, 45*time.Second, views.DefaultTTL())
}
