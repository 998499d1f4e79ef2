package models

import "errors"

// Settlement failure conditions. Each one aborts the triggering call with no
// state change.
var (
	ErrAlreadyResolved     = errors.New("market is already resolved")
	ErrDeadlinePassed      = errors.New("market deadline has passed")
	ErrDeadlineNotReached  = errors.New("market deadline has not been reached")
	ErrNotCreator          = errors.New("only the market creator can resolve")
	ErrAlreadyParticipated = errors.New("identity has already staked in this market")
	ErrInvalidOutcome      = errors.New("outcome must be 0 or 1")
	ErrWrongOutcome        = errors.New("claim token does not back the winning outcome of this market")
	ErrNotResolved         = errors.New("market is not resolved")
	ErrInsufficientStake   = errors.New("stake amount must be greater than zero")
	ErrNoWinningStake      = errors.New("no stake was placed on the winning outcome")

	ErrNotTokenOwner        = errors.New("claim token is not owned by caller")
	ErrClaimTokenBurned     = errors.New("claim token has already been redeemed")
	ErrInvalidRecipient     = errors.New("invalid claim token recipient")
	ErrAmountOverflow       = errors.New("amount overflows market accounting")
	ErrConservationViolated = errors.New("market pool does not match recorded stakes")
)

var (
	ErrInvalidMarketID  = errors.New("invalid market ID")
	ErrInvalidCreatorID = errors.New("invalid creator ID")
	ErrInvalidUserID    = errors.New("invalid user ID")
	ErrInvalidDeadline  = errors.New("invalid market deadline")
	ErrInvalidQuestion  = errors.New("invalid market question")

	ErrInvalidEventType = errors.New("invalid settlement event type")

	ErrDatabaseCredentialNotConfigured = errors.New("database credentials not configured")
	ErrInvalidPayoutBasis              = errors.New("invalid payout basis")
	ErrInvalidLockTimeout              = errors.New("invalid lock timeout")
	ErrInvalidPageSize                 = errors.New("invalid page size")

	ErrInvalidUUID     = errors.New("invalid UUID")
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
)
