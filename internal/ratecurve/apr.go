package ratecurve

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/allocator/internal/types"
	"github.com/elys-network/allocator/internal/utils"
	"github.com/holiman/uint256"
)

// SecondsPerYear is the Gregorian average year used to annualize per-second rates.
const SecondsPerYear = 31556952

var secondsPerYear = uint256.NewInt(SecondsPerYear)

// StoredApr annualizes the rate currently stored for the strategy, without recomputation.
func StoredApr(p *types.CurveParams) (*uint256.Int, error) {
	return mul(&p.RatePerSecond, secondsPerYear)
}

// AprAfterDebtChange returns the annualized borrow rate the strategy would pay if the vault's
// debt in it changed by deltaDebt. A zero delta or paused interest returns the stored rate.
func AprAfterDebtChange(p *types.CurveParams, deltaDebt sdkmath.Int) (*uint256.Int, error) {
	if deltaDebt.IsZero() || p.InterestPaused {
		return StoredApr(p)
	}

	newTotal, err := utils.Uint256ToSDKInt(&p.TotalAsset).SafeAdd(deltaDebt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOverflow, err)
	}
	if newTotal.IsNegative() {
		return nil, fmt.Errorf("%w: total_asset %s, delta %s", ErrNegativeAssets, p.TotalAsset.Dec(), deltaDebt.String())
	}
	totalAsset, err := utils.SDKIntToUint256(newTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOverflow, err)
	}

	utilization := new(uint256.Int)
	if !totalAsset.IsZero() {
		if utilization, err = mulDiv(&p.UtilizationPrecision, &p.TotalBorrow, totalAsset); err != nil {
			return nil, err
		}
	}

	if p.CurrentTimestamp.Lt(&p.LastTimestamp) {
		return nil, fmt.Errorf("%w: %s < %s", ErrNegativeElapsed, p.CurrentTimestamp.Dec(), p.LastTimestamp.Dec())
	}
	deltaTime := new(uint256.Int).Sub(&p.CurrentTimestamp, &p.LastTimestamp)

	rate, _, err := NewRate(deltaTime, utilization, p)
	if err != nil {
		return nil, err
	}

	return new(uint256.Int).Mul(uint256.NewInt(rate), secondsPerYear), nil
}
