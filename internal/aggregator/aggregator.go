/*

This file contains the blended APR computation and the decision gate.

A reallocation is accepted only when the debt-weighted APR of the target allocation is strictly
greater than the debt-weighted APR of the current one. Anything else is a rejection, which is a
normal outcome and not an error.

*/

package aggregator

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/ratecurve"
	"github.com/elys-network/allocator/internal/types"
	"github.com/elys-network/allocator/internal/utils"
	"github.com/holiman/uint256"
)

var ErrOverflow = errors.New("weighted APR overflow")

// Decision is the gate's verdict. Plan is nil unless Accepted.
type Decision struct {
	CurrentApr uint256.Int
	NewApr     uint256.Int
	Accepted   bool
	Plan       []types.Position
}

// weightedApr accumulates apr*weight and weight, then averages.
type weightedApr struct {
	totalApr    uint256.Int
	totalAmount uint256.Int
}

func (w *weightedApr) add(apr, weight *uint256.Int) error {
	product, overflow := new(uint256.Int).MulOverflow(apr, weight)
	if overflow {
		return fmt.Errorf("%w: %s * %s", ErrOverflow, apr.Dec(), weight.Dec())
	}
	if _, overflow = w.totalApr.AddOverflow(&w.totalApr, product); overflow {
		return fmt.Errorf("%w: accumulated APR", ErrOverflow)
	}
	if _, overflow = w.totalAmount.AddOverflow(&w.totalAmount, weight); overflow {
		return fmt.Errorf("%w: accumulated debt", ErrOverflow)
	}
	return nil
}

func (w *weightedApr) average() uint256.Int {
	if w.totalApr.IsZero() || w.totalAmount.IsZero() {
		return uint256.Int{}
	}
	return *new(uint256.Int).Div(&w.totalApr, &w.totalAmount)
}

// CurrentApr is the blended APR of the strategies as they stand, weighted by current debt.
func CurrentApr(curveParams []types.CurveParams, strategyCaps []types.StrategyCaps) (uint256.Int, error) {
	var current weightedApr
	for i := range strategyCaps {
		apr, err := ratecurve.AprAfterDebtChange(&curveParams[i], sdkmath.ZeroInt())
		if err != nil {
			return uint256.Int{}, fmt.Errorf("strategy %d: %w", i, err)
		}
		if err := current.add(apr, &strategyCaps[i].CurrentDebt); err != nil {
			return uint256.Int{}, err
		}
	}
	return current.average(), nil
}

// NewApr is the blended APR implied by the optimizer's target debts. Entries are matched to
// strategies by address; aggregation stops at the first entry with no matching strategy.
func NewApr(
	initialPositions []types.Position,
	curveParams []types.CurveParams,
	strategyCaps []types.StrategyCaps,
	optimalPositions []types.Position,
) (uint256.Int, error) {
	var next weightedApr
	for i := range optimalPositions {
		index := -1
		for j := range initialPositions {
			if initialPositions[j].Strategy == optimalPositions[i].Strategy {
				index = j
				break
			}
		}
		if index < 0 {
			break
		}

		delta := utils.Uint256ToSDKInt(&optimalPositions[i].Debt).Sub(utils.Uint256ToSDKInt(&strategyCaps[index].CurrentDebt))
		apr, err := ratecurve.AprAfterDebtChange(&curveParams[index], delta)
		if err != nil {
			return uint256.Int{}, fmt.Errorf("strategy %d: %w", index, err)
		}
		if err := next.add(apr, &optimalPositions[i].Debt); err != nil {
			return uint256.Int{}, err
		}
	}
	return next.average(), nil
}

// CurrentAndNewApr returns both blended APRs. An empty plan has a new APR of zero.
func CurrentAndNewApr(
	initialPositions []types.Position,
	curveParams []types.CurveParams,
	strategyCaps []types.StrategyCaps,
	optimalPositions []types.Position,
) (uint256.Int, uint256.Int, error) {
	current, err := CurrentApr(curveParams, strategyCaps)
	if err != nil {
		return uint256.Int{}, uint256.Int{}, err
	}
	if len(optimalPositions) == 0 {
		return current, uint256.Int{}, nil
	}
	next, err := NewApr(initialPositions, curveParams, strategyCaps, optimalPositions)
	if err != nil {
		return uint256.Int{}, uint256.Int{}, err
	}
	return current, next, nil
}

// Decide computes both APRs and accepts the plan only if the new APR is strictly higher.
func Decide(
	initialPositions []types.Position,
	curveParams []types.CurveParams,
	strategyCaps []types.StrategyCaps,
	optimalPositions []types.Position,
) (*Decision, error) {
	aggregatorLogger := logger.GetForComponent("apr_aggregator")

	current, next, err := CurrentAndNewApr(initialPositions, curveParams, strategyCaps, optimalPositions)
	if err != nil {
		return nil, err
	}

	decision := &Decision{CurrentApr: current, NewApr: next}
	if next.Gt(&current) {
		decision.Accepted = true
		decision.Plan = optimalPositions
	}

	aggregatorLogger.Info().
		Str("currentApr", current.Dec()).
		Str("newApr", next.Dec()).
		Bool("accepted", decision.Accepted).
		Msg("Reallocation decision")

	return decision, nil
}
