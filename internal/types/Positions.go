/*

This file contains the types for positions and the action plan derived from them.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position pairs a strategy with a debt amount. It is used for both the current
// allocation handed to the optimizer and the target allocation it returns.
type Position struct {
	Strategy common.Address `json:"strategy"`
	Debt     uint256.Int    `json:"debt"`
}

// SubActionType defines the specific low-level operations.
type SubActionType string

const (
	SubActionWithdraw SubActionType = "WITHDRAW" // Reduce the strategy's debt
	SubActionDeposit  SubActionType = "DEPOSIT"  // Increase the strategy's debt
	SubActionNoOp     SubActionType = "NO_OP"    // Target equals current debt
)

// SubAction represents a single step in a reallocation plan.
type SubAction struct {
	Type        SubActionType  `json:"type"`
	Strategy    common.Address `json:"strategy"`
	CurrentDebt uint256.Int    `json:"current_debt"`
	TargetDebt  uint256.Int    `json:"target_debt"`
	Amount      uint256.Int    `json:"amount"` // Absolute debt change
}

// ActionPlan holds the ordered sequence of SubActions. Withdrawals always come first.
type ActionPlan struct {
	GoalDescription string      `json:"goal_description"`
	SubActions      []SubAction `json:"sub_actions"`
	TotalWithdrawn  uint256.Int `json:"total_withdrawn"`
	TotalDeposited  uint256.Int `json:"total_deposited"`
}
