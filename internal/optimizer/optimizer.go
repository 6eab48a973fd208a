package optimizer

import (
	"errors"
	"fmt"

	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/ratecurve"
	"github.com/elys-network/allocator/internal/types"
	"github.com/elys-network/allocator/internal/utils"
	"github.com/holiman/uint256"
)

// Error definitions for zero-tolerance error handling
var (
	ErrLengthMismatch        = errors.New("positions, strategy caps and curve params differ in length")
	ErrNoStrategies          = errors.New("no strategies to allocate to")
	ErrZeroChunkCount        = errors.New("chunk count must be at least 1")
	ErrAvailableBelowInitial = errors.New("total available amount is below total initial amount")
	ErrNoFeasibleStrategy    = errors.New("no strategy can take the chunk")
	ErrOverflow              = errors.New("debt overflow")
	ErrRemainderOverCapacity = errors.New("final-chunk remainder exceeds strategy 0 max debt")
)

// InfeasiblePolicy decides what happens to a chunk no strategy can usefully take.
type InfeasiblePolicy string

const (
	// PolicyFallback assigns the chunk to strategy 0 regardless of capacity.
	PolicyFallback InfeasiblePolicy = "fallback"
	// PolicySkip leaves the chunk unallocated.
	PolicySkip InfeasiblePolicy = "skip"
	// PolicyFail aborts the run. It also aborts when the final-chunk remainder pushes
	// strategy 0 past its max debt, so every successful run respects capacity.
	PolicyFail InfeasiblePolicy = "fail"
)

// ParseInfeasiblePolicy maps a config string to a policy.
func ParseInfeasiblePolicy(s string) (InfeasiblePolicy, error) {
	switch InfeasiblePolicy(s) {
	case PolicyFallback, PolicySkip, PolicyFail:
		return InfeasiblePolicy(s), nil
	case "":
		return PolicyFallback, nil
	}
	return "", fmt.Errorf("unknown infeasible chunk policy %q (want fallback, skip or fail)", s)
}

// Options tunes the greedy pass.
type Options struct {
	InfeasiblePolicy InfeasiblePolicy
	// ConserveRemainder adds only the integer-division leftover diff - unit*chunkCount to
	// strategy 0 on the final chunk. Off, diff - unit*(chunkCount-1) is added, as the
	// journal consumers expect, which books one unit more than the new capital.
	ConserveRemainder bool
}

// Outcome is the optimizer's ordered target allocation plus any warnings raised on the way.
type Outcome struct {
	Positions   []types.Position
	Diagnostics []types.Diagnostic
}

// OptimalAllocation splits the new capital into chunkCount equal units and hands each unit to
// the strategy whose APR after taking it is highest, without exceeding any max debt. The result
// lists strategies whose debt went down first, then the rest in reverse input order.
func OptimalAllocation(
	chunkCount uint64,
	totalInitialAmount, totalAvailableAmount *uint256.Int,
	initialPositions []types.Position,
	curveParams []types.CurveParams,
	strategyCaps []types.StrategyCaps,
	opts Options,
) (*Outcome, error) {
	optimizerLogger := logger.GetForComponent("allocation_optimizer")

	if len(initialPositions) != len(curveParams) || len(initialPositions) != len(strategyCaps) {
		return nil, fmt.Errorf("%w: %d positions, %d caps, %d curves", ErrLengthMismatch,
			len(initialPositions), len(strategyCaps), len(curveParams))
	}
	if chunkCount == 0 {
		return nil, ErrZeroChunkCount
	}
	if totalAvailableAmount.Lt(totalInitialAmount) {
		return nil, fmt.Errorf("%w: available %s, initial %s", ErrAvailableBelowInitial,
			totalAvailableAmount.Dec(), totalInitialAmount.Dec())
	}

	diff := new(uint256.Int).Sub(totalAvailableAmount, totalInitialAmount)
	chunks := uint256.NewInt(chunkCount)
	depositUnit := new(uint256.Int).Div(diff, chunks)
	if depositUnit.IsZero() {
		optimizerLogger.Info().
			Str("diff", diff.Dec()).
			Uint64("chunkCount", chunkCount).
			Msg("Deposit unit is zero, nothing to reallocate")
		return &Outcome{}, nil
	}

	strategyCount := len(initialPositions)
	if strategyCount == 0 {
		return nil, ErrNoStrategies
	}

	// unit*chunkCount <= diff, so neither product can wrap.
	var leftover *uint256.Int
	if opts.ConserveRemainder {
		leftover = new(uint256.Int).Sub(diff, new(uint256.Int).Mul(depositUnit, chunks))
	} else {
		leftover = new(uint256.Int).Sub(diff, new(uint256.Int).Mul(depositUnit, uint256.NewInt(chunkCount-1)))
	}

	debts := make([]uint256.Int, strategyCount)
	for i := range initialPositions {
		debts[i] = initialPositions[i].Debt
	}

	var diagnostics []types.Diagnostic

	for chunkIndex := uint64(0); chunkIndex < chunkCount; chunkIndex++ {
		if chunkIndex == chunkCount-1 {
			if _, overflow := debts[0].AddOverflow(&debts[0], leftover); overflow {
				return nil, fmt.Errorf("%w: strategy 0 remainder", ErrOverflow)
			}
			if opts.InfeasiblePolicy == PolicyFail && debts[0].Gt(&strategyCaps[0].MaxDebt) {
				return nil, fmt.Errorf("%w: debt %s, max %s", ErrRemainderOverCapacity,
					debts[0].Dec(), strategyCaps[0].MaxDebt.Dec())
			}
		}

		maxApr, maxIndex, feasible, err := bestStrategy(debts, depositUnit, curveParams, strategyCaps)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunkIndex, err)
		}

		if maxApr.IsZero() {
			kind := types.DiagnosticZeroApr
			if !feasible {
				kind = types.DiagnosticNoFeasibleStrategy
			}

			policy := opts.InfeasiblePolicy
			if policy == "" {
				policy = PolicyFallback
			}

			optimizerLogger.Warn().
				Uint64("chunkIndex", chunkIndex).
				Str("kind", string(kind)).
				Str("policy", string(policy)).
				Str("depositUnit", depositUnit.Dec()).
				Msg("There is no max APR for chunk")

			switch policy {
			case PolicyFail:
				return nil, fmt.Errorf("%w: chunk %d (%s)", ErrNoFeasibleStrategy, chunkIndex, kind)
			case PolicySkip:
				diagnostics = append(diagnostics, types.Diagnostic{Kind: kind, ChunkIndex: chunkIndex, Action: "skipped"})
				continue
			default:
				diagnostics = append(diagnostics, types.Diagnostic{Kind: kind, ChunkIndex: chunkIndex, Action: "fallback"})
				maxIndex = 0
			}
		}

		if _, overflow := debts[maxIndex].AddOverflow(&debts[maxIndex], depositUnit); overflow {
			return nil, fmt.Errorf("%w: strategy %d", ErrOverflow, maxIndex)
		}

		optimizerLogger.Debug().
			Uint64("chunkIndex", chunkIndex).
			Int("strategyIndex", maxIndex).
			Str("apr", maxApr.Dec()).
			Msg("Chunk assigned")
	}

	positions := orderPositions(initialPositions, strategyCaps, debts)

	optimizerLogger.Info().
		Int("strategies", strategyCount).
		Uint64("chunkCount", chunkCount).
		Str("depositUnit", depositUnit.Dec()).
		Int("warnings", len(diagnostics)).
		Msg("Optimal allocation computed")

	return &Outcome{Positions: positions, Diagnostics: diagnostics}, nil
}

// bestStrategy scans all strategies that can take one more unit and returns the highest APR,
// its index (earliest wins ties) and whether any strategy had room at all.
func bestStrategy(
	debts []uint256.Int,
	depositUnit *uint256.Int,
	curveParams []types.CurveParams,
	strategyCaps []types.StrategyCaps,
) (*uint256.Int, int, bool, error) {
	maxApr := new(uint256.Int)
	maxIndex := 0
	feasible := false

	for j := range debts {
		next, overflow := new(uint256.Int).AddOverflow(&debts[j], depositUnit)
		if overflow || next.Gt(&strategyCaps[j].MaxDebt) {
			continue
		}
		feasible = true

		delta := utils.Uint256ToSDKInt(next).Sub(utils.Uint256ToSDKInt(&strategyCaps[j].CurrentDebt))
		apr, err := ratecurve.AprAfterDebtChange(&curveParams[j], delta)
		if err != nil {
			return nil, 0, false, fmt.Errorf("strategy %d: %w", j, err)
		}

		if apr.Gt(maxApr) {
			maxApr = apr
			maxIndex = j
		}
	}

	return maxApr, maxIndex, feasible, nil
}

// orderPositions puts strategies being drained ahead of strategies receiving capital, so
// liquidity is freed before it is committed. The deposit group is emitted in reverse order.
func orderPositions(initialPositions []types.Position, strategyCaps []types.StrategyCaps, debts []uint256.Int) []types.Position {
	withdrawals := make([]types.Position, 0, len(debts))
	deposits := make([]types.Position, 0, len(debts))

	for i := range debts {
		position := types.Position{
			Strategy: initialPositions[i].Strategy,
			Debt:     debts[i],
		}
		if strategyCaps[i].CurrentDebt.Gt(&debts[i]) {
			withdrawals = append(withdrawals, position)
		} else {
			deposits = append(deposits, position)
		}
	}

	for i, j := 0, len(deposits)-1; i < j; i, j = i+1, j-1 {
		deposits[i], deposits[j] = deposits[j], deposits[i]
	}

	return append(withdrawals, deposits...)
}
