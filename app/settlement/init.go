package settlement

import (
	"github.com/gin-gonic/gin"

	"github.com/joefazee/parimutuel/internal/cache"
	"github.com/joefazee/parimutuel/internal/deps"
)

// ServiceKey is the key the settlement service is registered under.
const ServiceKey = "settlement"

// Build creates the settlement service from the shared container. Storage is
// postgres when the container has a database, in-memory otherwise; the market
// view cache follows the same rule for redis.
func Build(config *Config, c *deps.Container) (Service, error) {
	if config == nil {
		config = GetDefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var repo Repository
	if c.DB != nil {
		repo = NewRepository(c.DB)
	} else {
		repo = NewMemoryRepository()
	}

	var views cache.Cache[MarketResponse]
	if c.Redis != nil {
		views = cache.NewRedisCacheFromClient[MarketResponse](c.Redis, 0)
	} else {
		views = cache.NewMemoryCache[MarketResponse](cache.WithDefaultTTL(config.CacheTTL))
	}

	return NewService(repo, config, ServiceOptions{
		Locker:    c.Locker,
		Publisher: c.Publisher,
		Views:     views,
		Sanitizer: c.Sanitizer,
		Logger:    c.Logger,
	}), nil
}

// Mount returns the route mounter of the settlement module.
func Mount(config *Config) func(public, authenticated *gin.RouterGroup, c *deps.Container) {
	return func(public, authenticated *gin.RouterGroup, c *deps.Container) {
		srvs, err := Build(config, c)
		if err != nil {
			panic("Invalid settlement configuration: " + err.Error())
		}
		c.RegisterService(ServiceKey, srvs)

		Routes(public, authenticated, NewHandler(srvs, c.Logger))
	}
}

// Routes registers the settlement endpoints.
func Routes(public, authenticated *gin.RouterGroup, handler *Handler) {
	markets := public.Group("/markets")
	markets.GET("", handler.ListMarkets)
	markets.GET("/:id", handler.GetMarketInfo)
	markets.GET("/:id/odds", handler.GetOdds)
	markets.GET("/:id/pool", handler.GetPoolValue)
	markets.GET("/:id/status", handler.GetStatus)
	markets.GET("/:id/events", handler.GetMarketEvents)
	markets.GET("/:id/participants/:identity", handler.HasParticipated)

	tokens := public.Group("/claim-tokens")
	tokens.GET("/:id", handler.GetClaimTokenInfo)
	tokens.GET("/:id/quote", handler.QuoteReward)

	authMarkets := authenticated.Group("/markets")
	authMarkets.POST("", handler.CreateMarket)
	authMarkets.POST("/:id/stakes", handler.PlaceStake)
	authMarkets.POST("/:id/resolve", handler.ResolveMarket)
	authMarkets.POST("/:id/claims", handler.ClaimReward)

	authTokens := authenticated.Group("/claim-tokens")
	authTokens.GET("", handler.ListMyClaimTokens)
	authTokens.POST("/:id/transfer", handler.TransferClaimToken)
}
