package settlement

import (
	"time"

	"github.com/joefazee/parimutuel/models"
)

// Config represents the configuration for the settlement module
type Config struct {
	PayoutBasis          string        `env:"SETTLEMENT_PAYOUT_BASIS" validate:"omitempty,oneof=live snapshot"`
	ResolveAfterDeadline bool          `env:"SETTLEMENT_RESOLVE_AFTER_DEADLINE"`
	LockTimeout          time.Duration `env:"SETTLEMENT_LOCK_TIMEOUT"`
	CacheTTL             time.Duration `env:"SETTLEMENT_CACHE_TTL"`
	DefaultPageSize      int           `env:"SETTLEMENT_DEFAULT_PAGE_SIZE"`
	MaxPageSize          int           `env:"SETTLEMENT_MAX_PAGE_SIZE"`
	MaxQuestionLength    int           `env:"SETTLEMENT_MAX_QUESTION_LENGTH"`
	MaxDescriptionLength int           `env:"SETTLEMENT_MAX_DESCRIPTION_LENGTH"`
	EventHistoryLimit    int           `env:"SETTLEMENT_EVENT_HISTORY_LIMIT"`
}

func (c *Config) Validate() error {
	type validation struct {
		ok  bool
		err error
	}

	checks := []validation{
		{PayoutBasis(c.PayoutBasis).Valid(), models.ErrInvalidPayoutBasis},
		{c.LockTimeout > 0 && c.LockTimeout <= time.Minute, models.ErrInvalidLockTimeout},
		{c.DefaultPageSize > 0 && c.MaxPageSize >= c.DefaultPageSize, models.ErrInvalidPageSize},
		{c.MaxQuestionLength > 0 && c.MaxDescriptionLength >= 0, models.ErrInvalidQuestion},
		{c.EventHistoryLimit > 0, models.ErrInvalidPageSize},
	}

	for _, v := range checks {
		if !v.ok {
			return v.err
		}
	}
	return nil
}

// GetDefaultConfig returns the default settlement configuration
func GetDefaultConfig() *Config {
	return &Config{
		PayoutBasis:          string(PayoutLive),
		ResolveAfterDeadline: false,
		LockTimeout:          5 * time.Second,
		CacheTTL:             30 * time.Second,
		DefaultPageSize:      20,
		MaxPageSize:          100,
		MaxQuestionLength:    500,
		MaxDescriptionLength: 4000,
		EventHistoryLimit:    100,
	}
}
