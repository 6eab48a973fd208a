/*

This file contains the per-strategy inputs of an allocation run: the rate curve parameters
of the lending market behind a strategy and the vault-side capacity record for it.

*/

package types

import (
	"github.com/holiman/uint256"
)

// CurveParams is the rate curve state of one lending strategy at snapshot time.
// Field order matches the wire order of the input tuple.
type CurveParams struct {
	CurrentTimestamp       uint256.Int `json:"current_timestamp"`
	LastTimestamp          uint256.Int `json:"last_timestamp"`
	RatePerSecond          uint256.Int `json:"rate_per_second"`       // Currently stored borrow rate
	FullUtilizationRate    uint256.Int `json:"full_utilization_rate"` // Rate at 100% utilization before decay/growth
	TotalAsset             uint256.Int `json:"total_asset"`
	TotalBorrow            uint256.Int `json:"total_borrow"`
	UtilizationPrecision   uint256.Int `json:"utilization_precision"` // e.g. 1e5 = 100%
	MinTargetUtilization   uint256.Int `json:"min_target_utilization"`
	MaxTargetUtilization   uint256.Int `json:"max_target_utilization"`
	VertexUtilization      uint256.Int `json:"vertex_utilization"`
	MinFullUtilizationRate uint256.Int `json:"min_full_utilization_rate"`
	MaxFullUtilizationRate uint256.Int `json:"max_full_utilization_rate"`
	ZeroUtilizationRate    uint256.Int `json:"zero_utilization_rate"`
	RateHalfLife           uint256.Int `json:"rate_half_life"` // Seconds
	VertexRatePercent      uint256.Int `json:"vertex_rate_percent"`
	RatePrecision          uint256.Int `json:"rate_precision"`
	InterestPaused         bool        `json:"interest_paused"`
}

// StrategyCaps is the vault's view of a strategy: its current debt and the debt ceiling.
type StrategyCaps struct {
	ActivationTime uint256.Int `json:"activation_time"`
	LastReportTime uint256.Int `json:"last_report_time"`
	CurrentDebt    uint256.Int `json:"current_debt"`
	MaxDebt        uint256.Int `json:"max_debt"`
}
