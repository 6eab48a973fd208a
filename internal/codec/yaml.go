package codec

import (
	"fmt"
	"strings"

	"github.com/elys-network/allocator/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

// amount is a decimal 256-bit value in a YAML fixture. Underscores are allowed as separators.
type amount uint256.Int

func (a *amount) UnmarshalYAML(node *yaml.Node) error {
	text := strings.ReplaceAll(strings.TrimSpace(node.Value), "_", "")
	v, err := uint256.FromDecimal(text)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a 256-bit decimal: %w", node.Line, node.Value, err)
	}
	*a = amount(*v)
	return nil
}

func (a amount) value() uint256.Int {
	return uint256.Int(a)
}

type yamlCaps struct {
	ActivationTime amount `yaml:"activation_time"`
	LastReportTime amount `yaml:"last_report_time"`
	CurrentDebt    amount `yaml:"current_debt"`
	MaxDebt        amount `yaml:"max_debt"`
}

type yamlCurve struct {
	CurrentTimestamp       amount `yaml:"current_timestamp"`
	LastTimestamp          amount `yaml:"last_timestamp"`
	RatePerSecond          amount `yaml:"rate_per_second"`
	FullUtilizationRate    amount `yaml:"full_utilization_rate"`
	TotalAsset             amount `yaml:"total_asset"`
	TotalBorrow            amount `yaml:"total_borrow"`
	UtilizationPrecision   amount `yaml:"utilization_precision"`
	MinTargetUtilization   amount `yaml:"min_target_utilization"`
	MaxTargetUtilization   amount `yaml:"max_target_utilization"`
	VertexUtilization      amount `yaml:"vertex_utilization"`
	MinFullUtilizationRate amount `yaml:"min_full_utilization_rate"`
	MaxFullUtilizationRate amount `yaml:"max_full_utilization_rate"`
	ZeroUtilizationRate    amount `yaml:"zero_utilization_rate"`
	RateHalfLife           amount `yaml:"rate_half_life"`
	VertexRatePercent      amount `yaml:"vertex_rate_percent"`
	RatePrecision          amount `yaml:"rate_precision"`
	InterestPaused         bool   `yaml:"interest_paused"`
}

type yamlStrategy struct {
	Address string    `yaml:"address"`
	Debt    amount    `yaml:"debt"`
	Caps    yamlCaps  `yaml:"caps"`
	Curve   yamlCurve `yaml:"curve"`
}

type yamlSnapshot struct {
	ChunkCount           uint64         `yaml:"chunk_count"`
	TotalInitialAmount   amount         `yaml:"total_initial_amount"`
	TotalAvailableAmount amount         `yaml:"total_available_amount"`
	Strategies           []yamlStrategy `yaml:"strategies"`
}

// ParseSnapshotYAML reads an operator fixture. Each strategy entry carries its position, caps and
// curve together, so the three positional lists are equal in length by construction.
func ParseSnapshotYAML(data []byte) (*types.Snapshot, error) {
	var raw yamlSnapshot
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	n := len(raw.Strategies)
	snapshot := &types.Snapshot{
		ChunkCount:           raw.ChunkCount,
		TotalInitialAmount:   raw.TotalInitialAmount.value(),
		TotalAvailableAmount: raw.TotalAvailableAmount.value(),
		InitialPositions:     make([]types.Position, n),
		StrategyCaps:         make([]types.StrategyCaps, n),
		CurveParams:          make([]types.CurveParams, n),
	}

	for i, s := range raw.Strategies {
		if !common.IsHexAddress(s.Address) {
			return nil, fmt.Errorf("%w: strategy %d address %q", ErrMalformedInput, i, s.Address)
		}
		snapshot.InitialPositions[i] = types.Position{
			Strategy: common.HexToAddress(s.Address),
			Debt:     s.Debt.value(),
		}
		snapshot.StrategyCaps[i] = types.StrategyCaps{
			ActivationTime: s.Caps.ActivationTime.value(),
			LastReportTime: s.Caps.LastReportTime.value(),
			CurrentDebt:    s.Caps.CurrentDebt.value(),
			MaxDebt:        s.Caps.MaxDebt.value(),
		}
		c := s.Curve
		snapshot.CurveParams[i] = types.CurveParams{
			CurrentTimestamp:       c.CurrentTimestamp.value(),
			LastTimestamp:          c.LastTimestamp.value(),
			RatePerSecond:          c.RatePerSecond.value(),
			FullUtilizationRate:    c.FullUtilizationRate.value(),
			TotalAsset:             c.TotalAsset.value(),
			TotalBorrow:            c.TotalBorrow.value(),
			UtilizationPrecision:   c.UtilizationPrecision.value(),
			MinTargetUtilization:   c.MinTargetUtilization.value(),
			MaxTargetUtilization:   c.MaxTargetUtilization.value(),
			VertexUtilization:      c.VertexUtilization.value(),
			MinFullUtilizationRate: c.MinFullUtilizationRate.value(),
			MaxFullUtilizationRate: c.MaxFullUtilizationRate.value(),
			ZeroUtilizationRate:    c.ZeroUtilizationRate.value(),
			RateHalfLife:           c.RateHalfLife.value(),
			VertexRatePercent:      c.VertexRatePercent.value(),
			RatePrecision:          c.RatePrecision.value(),
			InterestPaused:         c.InterestPaused,
		}
	}

	if err := checkDistinctStrategies(snapshot.InitialPositions); err != nil {
		return nil, err
	}
	return snapshot, nil
}
