package settlement

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/joefazee/parimutuel/models"
	"github.com/shopspring/decimal"
)

// PayoutBasis selects which pool value a reward is proportional to.
type PayoutBasis string

const (
	// PayoutLive uses the pool as it stands at claim time. Earlier claims
	// shrink the pool seen by later claimants.
	PayoutLive PayoutBasis = "live"
	// PayoutSnapshot uses the pool captured at resolution.
	PayoutSnapshot PayoutBasis = "snapshot"
)

func (b PayoutBasis) Valid() bool {
	return b == PayoutLive || b == PayoutSnapshot
}

// proportionalShare returns floor(stake * pool / aggregate) computed without
// intermediate overflow. aggregate must be non-zero.
func proportionalShare(stake, pool, aggregate uint64) (uint64, error) {
	if aggregate == 0 {
		return 0, models.ErrNoWinningStake
	}
	z, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(stake),
		uint256.NewInt(pool),
		uint256.NewInt(aggregate),
	)
	if overflow || !z.IsUint64() {
		return 0, models.ErrAmountOverflow
	}
	return z.Uint64(), nil
}

var hundred = decimal.NewFromInt(100)

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// impliedProbability is part/total as a percentage rounded to two places.
// A market with nothing staked reports zero for both outcomes.
func impliedProbability(part, total uint64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimalFromUint64(part).Mul(hundred).DivRound(decimalFromUint64(total), 2)
}
