package planner

import (
	"errors"
	"fmt"

	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownStrategy   = errors.New("target position refers to an unknown strategy")
	ErrDuplicateStrategy = errors.New("strategy listed more than once")
	ErrOrdering          = errors.New("withdrawal scheduled after a deposit")
	ErrOverflow          = errors.New("plan total overflow")
)

// GenerateActionPlan turns the ordered target positions into executable steps. Every target
// becomes one SubAction; the optimizer's order is kept, so withdrawals precede deposits.
func GenerateActionPlan(
	targets []types.Position,
	initialPositions []types.Position,
	strategyCaps []types.StrategyCaps,
) (types.ActionPlan, error) {
	actionLogger := logger.GetForComponent("action_planner")

	plan := types.ActionPlan{
		GoalDescription: "Reallocate debt to maximize blended APR",
		SubActions:      make([]types.SubAction, 0, len(targets)),
	}

	// ===== INDEX CURRENT DEBT BY STRATEGY =====
	currentDebt := make(map[common.Address]*uint256.Int, len(initialPositions))
	for i := range initialPositions {
		if i >= len(strategyCaps) {
			break
		}
		if _, dup := currentDebt[initialPositions[i].Strategy]; dup {
			return types.ActionPlan{}, fmt.Errorf("%w: %s", ErrDuplicateStrategy, initialPositions[i].Strategy.Hex())
		}
		currentDebt[initialPositions[i].Strategy] = &strategyCaps[i].CurrentDebt
	}

	// ===== BUILD SUB-ACTIONS =====
	depositSeen := false
	for _, target := range targets {
		current, found := currentDebt[target.Strategy]
		if !found {
			return types.ActionPlan{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, target.Strategy.Hex())
		}

		action := types.SubAction{
			Strategy:    target.Strategy,
			CurrentDebt: *current,
			TargetDebt:  target.Debt,
		}

		switch current.Cmp(&target.Debt) {
		case 1:
			if depositSeen {
				return types.ActionPlan{}, fmt.Errorf("%w: %s", ErrOrdering, target.Strategy.Hex())
			}
			action.Type = types.SubActionWithdraw
			action.Amount.Sub(current, &target.Debt)
			if _, overflow := plan.TotalWithdrawn.AddOverflow(&plan.TotalWithdrawn, &action.Amount); overflow {
				return types.ActionPlan{}, ErrOverflow
			}
		case -1:
			depositSeen = true
			action.Type = types.SubActionDeposit
			action.Amount.Sub(&target.Debt, current)
			if _, overflow := plan.TotalDeposited.AddOverflow(&plan.TotalDeposited, &action.Amount); overflow {
				return types.ActionPlan{}, ErrOverflow
			}
		default:
			depositSeen = true
			action.Type = types.SubActionNoOp
		}

		actionLogger.Debug().
			Str("strategy", target.Strategy.Hex()).
			Str("type", string(action.Type)).
			Str("amount", action.Amount.Dec()).
			Msg("Planned sub-action")

		plan.SubActions = append(plan.SubActions, action)
	}

	actionLogger.Info().
		Int("subActions", len(plan.SubActions)).
		Str("totalWithdrawn", plan.TotalWithdrawn.Dec()).
		Str("totalDeposited", plan.TotalDeposited.Dec()).
		Msg("Action plan generation completed successfully")

	return plan, nil
}
