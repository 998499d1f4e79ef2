package deps

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/joefazee/parimutuel/internal/events"
	"github.com/joefazee/parimutuel/internal/lock"
	"github.com/joefazee/parimutuel/internal/logger"
	"github.com/joefazee/parimutuel/internal/sanitizer"
	"github.com/joefazee/parimutuel/internal/security"
)

// Container holds all shared dependencies. DB and Redis are nil when the
// in-memory backends are selected.
type Container struct {
	DB         *gorm.DB
	Redis      *redis.Client
	TokenMaker security.Maker
	Sanitizer  sanitizer.HTMLStripperer
	Logger     logger.Logger
	Locker     lock.Locker
	Publisher  events.Publisher

	// Store services as interfaces to avoid imports
	services map[string]interface{}
}

// Option configures optional members of a Container.
type Option func(*Container)

func WithDB(db *gorm.DB) Option {
	return func(c *Container) { c.DB = db }
}

func WithRedis(rdb *redis.Client) Option {
	return func(c *Container) { c.Redis = rdb }
}

func WithLocker(l lock.Locker) Option {
	return func(c *Container) { c.Locker = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Container) { c.Publisher = p }
}

func NewContainer(tokenMaker security.Maker, sanitizer sanitizer.HTMLStripperer, log logger.Logger, opts ...Option) *Container {
	c := &Container{
		TokenMaker: tokenMaker,
		Sanitizer:  sanitizer,
		Logger:     log,
		services:   make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = logger.NewNullLogger()
	}
	if c.Locker == nil {
		c.Locker = lock.NewKeyedMutex()
	}
	if c.Publisher == nil {
		c.Publisher = events.NewLogPublisher(c.Logger)
	}
	return c
}

// RegisterService stores a service with a key
func (c *Container) RegisterService(key string, service interface{}) {
	c.services[key] = service
}

// GetService retrieves a service by key
func (c *Container) GetService(key string) interface{} {
	return c.services[key]
}
