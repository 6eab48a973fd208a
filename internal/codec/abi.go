/*

This file contains the Solidity ABI codec for the allocator's input snapshot and output journal.

Input:   (uint256 chunkCount, uint256 totalInitialAmount, uint256 totalAvailableAmount,
          (address,uint256)[] initialPositions,
          (uint256,uint256,uint256,uint256)[] strategyCaps,
          (uint256 x16, bool)[] curveParams)

Journal: (uint256[] plan, uint256 newApr, uint256 currentApr, bool accepted)
         plan is flattened as [strategy0, debt0, strategy1, debt1, ...], each address left-padded
         into a 32-byte word. It is empty unless accepted.

*/

package codec

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/elys-network/allocator/internal/types"
	"github.com/elys-network/allocator/internal/utils"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrMalformedInput = errors.New("malformed input")

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

var (
	uint256Type = mustNewType("uint256", nil)
	boolType    = mustNewType("bool", nil)

	positionComponents = []abi.ArgumentMarshaling{
		{Name: "strategy", Type: "address"},
		{Name: "debt", Type: "uint256"},
	}

	capsComponents = []abi.ArgumentMarshaling{
		{Name: "activationTime", Type: "uint256"},
		{Name: "lastReportTime", Type: "uint256"},
		{Name: "currentDebt", Type: "uint256"},
		{Name: "maxDebt", Type: "uint256"},
	}

	curveComponents = []abi.ArgumentMarshaling{
		{Name: "currentTimestamp", Type: "uint256"},
		{Name: "lastTimestamp", Type: "uint256"},
		{Name: "ratePerSecond", Type: "uint256"},
		{Name: "fullUtilizationRate", Type: "uint256"},
		{Name: "totalAsset", Type: "uint256"},
		{Name: "totalBorrow", Type: "uint256"},
		{Name: "utilizationPrecision", Type: "uint256"},
		{Name: "minTargetUtilization", Type: "uint256"},
		{Name: "maxTargetUtilization", Type: "uint256"},
		{Name: "vertexUtilization", Type: "uint256"},
		{Name: "minFullUtilizationRate", Type: "uint256"},
		{Name: "maxFullUtilizationRate", Type: "uint256"},
		{Name: "zeroUtilizationRate", Type: "uint256"},
		{Name: "rateHalfLife", Type: "uint256"},
		{Name: "vertexRatePercent", Type: "uint256"},
		{Name: "ratePrecision", Type: "uint256"},
		{Name: "interestPaused", Type: "bool"},
	}

	inputArguments = abi.Arguments{
		{Name: "chunkCount", Type: uint256Type},
		{Name: "totalInitialAmount", Type: uint256Type},
		{Name: "totalAvailableAmount", Type: uint256Type},
		{Name: "initialPositions", Type: mustNewType("tuple[]", positionComponents)},
		{Name: "strategyCaps", Type: mustNewType("tuple[]", capsComponents)},
		{Name: "curveParams", Type: mustNewType("tuple[]", curveComponents)},
	}

	journalArguments = abi.Arguments{
		{Name: "plan", Type: mustNewType("uint256[]", nil)},
		{Name: "newApr", Type: uint256Type},
		{Name: "currentApr", Type: uint256Type},
		{Name: "accepted", Type: boolType},
	}
)

// Field order of these structs must follow the tuple components above.

type positionTuple struct {
	Strategy common.Address
	Debt     *big.Int
}

type capsTuple struct {
	ActivationTime *big.Int
	LastReportTime *big.Int
	CurrentDebt    *big.Int
	MaxDebt        *big.Int
}

type curveTuple struct {
	CurrentTimestamp       *big.Int
	LastTimestamp          *big.Int
	RatePerSecond          *big.Int
	FullUtilizationRate    *big.Int
	TotalAsset             *big.Int
	TotalBorrow            *big.Int
	UtilizationPrecision   *big.Int
	MinTargetUtilization   *big.Int
	MaxTargetUtilization   *big.Int
	VertexUtilization      *big.Int
	MinFullUtilizationRate *big.Int
	MaxFullUtilizationRate *big.Int
	ZeroUtilizationRate    *big.Int
	RateHalfLife           *big.Int
	VertexRatePercent      *big.Int
	RatePrecision          *big.Int
	InterestPaused         bool
}

type inputTuple struct {
	ChunkCount           *big.Int
	TotalInitialAmount   *big.Int
	TotalAvailableAmount *big.Int
	InitialPositions     []positionTuple
	StrategyCaps         []capsTuple
	CurveParams          []curveTuple
}

type journalTuple struct {
	Plan       []*big.Int
	NewApr     *big.Int
	CurrentApr *big.Int
	Accepted   bool
}

// Journal is the decoded form of an output journal.
type Journal struct {
	Plan       []types.Position `json:"plan"`
	NewApr     uint256.Int      `json:"new_apr"`
	CurrentApr uint256.Int      `json:"current_apr"`
	Accepted   bool             `json:"accepted"`
}

// DecodeInput parses an ABI-encoded snapshot. The three lists must have equal length.
func DecodeInput(data []byte) (*types.Snapshot, error) {
	values, err := inputArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	var raw inputTuple
	if err := inputArguments.Copy(&raw, values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	if !raw.ChunkCount.IsUint64() {
		return nil, fmt.Errorf("%w: chunk count %s does not fit 64 bits", ErrMalformedInput, raw.ChunkCount.String())
	}
	n := len(raw.InitialPositions)
	if len(raw.StrategyCaps) != n || len(raw.CurveParams) != n {
		return nil, fmt.Errorf("%w: %d positions, %d caps, %d curves", ErrMalformedInput,
			n, len(raw.StrategyCaps), len(raw.CurveParams))
	}

	snapshot := &types.Snapshot{
		ChunkCount:       raw.ChunkCount.Uint64(),
		InitialPositions: make([]types.Position, n),
		StrategyCaps:     make([]types.StrategyCaps, n),
		CurveParams:      make([]types.CurveParams, n),
	}

	conv := converter{}
	snapshot.TotalInitialAmount = conv.word(raw.TotalInitialAmount)
	snapshot.TotalAvailableAmount = conv.word(raw.TotalAvailableAmount)

	for i := 0; i < n; i++ {
		p := raw.InitialPositions[i]
		snapshot.InitialPositions[i] = types.Position{Strategy: p.Strategy, Debt: conv.word(p.Debt)}

		c := raw.StrategyCaps[i]
		snapshot.StrategyCaps[i] = types.StrategyCaps{
			ActivationTime: conv.word(c.ActivationTime),
			LastReportTime: conv.word(c.LastReportTime),
			CurrentDebt:    conv.word(c.CurrentDebt),
			MaxDebt:        conv.word(c.MaxDebt),
		}

		r := raw.CurveParams[i]
		snapshot.CurveParams[i] = types.CurveParams{
			CurrentTimestamp:       conv.word(r.CurrentTimestamp),
			LastTimestamp:          conv.word(r.LastTimestamp),
			RatePerSecond:          conv.word(r.RatePerSecond),
			FullUtilizationRate:    conv.word(r.FullUtilizationRate),
			TotalAsset:             conv.word(r.TotalAsset),
			TotalBorrow:            conv.word(r.TotalBorrow),
			UtilizationPrecision:   conv.word(r.UtilizationPrecision),
			MinTargetUtilization:   conv.word(r.MinTargetUtilization),
			MaxTargetUtilization:   conv.word(r.MaxTargetUtilization),
			VertexUtilization:      conv.word(r.VertexUtilization),
			MinFullUtilizationRate: conv.word(r.MinFullUtilizationRate),
			MaxFullUtilizationRate: conv.word(r.MaxFullUtilizationRate),
			ZeroUtilizationRate:    conv.word(r.ZeroUtilizationRate),
			RateHalfLife:           conv.word(r.RateHalfLife),
			VertexRatePercent:      conv.word(r.VertexRatePercent),
			RatePrecision:          conv.word(r.RatePrecision),
			InterestPaused:         r.InterestPaused,
		}
	}

	if conv.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, conv.err)
	}
	if err := checkDistinctStrategies(snapshot.InitialPositions); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// checkDistinctStrategies rejects a snapshot that lists the same strategy twice. Targets are
// matched back to strategies by address, so a repeated address would be ambiguous.
func checkDistinctStrategies(positions []types.Position) error {
	seen := make(map[common.Address]int, len(positions))
	for i := range positions {
		if first, ok := seen[positions[i].Strategy]; ok {
			return fmt.Errorf("%w: strategy %s listed at %d and %d", ErrMalformedInput,
				positions[i].Strategy.Hex(), first, i)
		}
		seen[positions[i].Strategy] = i
	}
	return nil
}

// converter keeps the first conversion error so field mapping stays flat.
type converter struct {
	err error
}

func (c *converter) word(v *big.Int) uint256.Int {
	out, err := utils.BigToUint256(v)
	if err != nil && c.err == nil {
		c.err = err
	}
	return out
}

// EncodeInput is the inverse of DecodeInput, used to build guest inputs from fixtures.
func EncodeInput(snapshot *types.Snapshot) ([]byte, error) {
	n := len(snapshot.InitialPositions)
	if len(snapshot.StrategyCaps) != n || len(snapshot.CurveParams) != n {
		return nil, fmt.Errorf("%w: %d positions, %d caps, %d curves", ErrMalformedInput,
			n, len(snapshot.StrategyCaps), len(snapshot.CurveParams))
	}

	positions := make([]positionTuple, n)
	strategyCaps := make([]capsTuple, n)
	curves := make([]curveTuple, n)
	for i := 0; i < n; i++ {
		p := &snapshot.InitialPositions[i]
		positions[i] = positionTuple{Strategy: p.Strategy, Debt: p.Debt.ToBig()}

		c := &snapshot.StrategyCaps[i]
		strategyCaps[i] = capsTuple{
			ActivationTime: c.ActivationTime.ToBig(),
			LastReportTime: c.LastReportTime.ToBig(),
			CurrentDebt:    c.CurrentDebt.ToBig(),
			MaxDebt:        c.MaxDebt.ToBig(),
		}

		r := &snapshot.CurveParams[i]
		curves[i] = curveTuple{
			CurrentTimestamp:       r.CurrentTimestamp.ToBig(),
			LastTimestamp:          r.LastTimestamp.ToBig(),
			RatePerSecond:          r.RatePerSecond.ToBig(),
			FullUtilizationRate:    r.FullUtilizationRate.ToBig(),
			TotalAsset:             r.TotalAsset.ToBig(),
			TotalBorrow:            r.TotalBorrow.ToBig(),
			UtilizationPrecision:   r.UtilizationPrecision.ToBig(),
			MinTargetUtilization:   r.MinTargetUtilization.ToBig(),
			MaxTargetUtilization:   r.MaxTargetUtilization.ToBig(),
			VertexUtilization:      r.VertexUtilization.ToBig(),
			MinFullUtilizationRate: r.MinFullUtilizationRate.ToBig(),
			MaxFullUtilizationRate: r.MaxFullUtilizationRate.ToBig(),
			ZeroUtilizationRate:    r.ZeroUtilizationRate.ToBig(),
			RateHalfLife:           r.RateHalfLife.ToBig(),
			VertexRatePercent:      r.VertexRatePercent.ToBig(),
			RatePrecision:          r.RatePrecision.ToBig(),
			InterestPaused:         r.InterestPaused,
		}
	}

	return inputArguments.Pack(
		new(big.Int).SetUint64(snapshot.ChunkCount),
		snapshot.TotalInitialAmount.ToBig(),
		snapshot.TotalAvailableAmount.ToBig(),
		positions,
		strategyCaps,
		curves,
	)
}

// EncodeJournal serializes a result. A rejected result always carries an empty plan.
func EncodeJournal(result *types.Result) ([]byte, error) {
	plan := make([]*big.Int, 0, 2*len(result.Plan))
	if result.Accepted {
		for i := range result.Plan {
			p := &result.Plan[i]
			plan = append(plan, new(big.Int).SetBytes(p.Strategy.Bytes()), p.Debt.ToBig())
		}
	}
	return journalArguments.Pack(plan, result.NewApr.ToBig(), result.CurrentApr.ToBig(), result.Accepted)
}

// DecodeJournal parses a journal produced by EncodeJournal.
func DecodeJournal(data []byte) (*Journal, error) {
	values, err := journalArguments.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	var raw journalTuple
	if err := journalArguments.Copy(&raw, values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if len(raw.Plan)%2 != 0 {
		return nil, fmt.Errorf("%w: plan has odd word count %d", ErrMalformedInput, len(raw.Plan))
	}

	conv := converter{}
	journal := &Journal{
		NewApr:     conv.word(raw.NewApr),
		CurrentApr: conv.word(raw.CurrentApr),
		Accepted:   raw.Accepted,
		Plan:       make([]types.Position, 0, len(raw.Plan)/2),
	}
	for i := 0; i < len(raw.Plan); i += 2 {
		if raw.Plan[i].BitLen() > 8*common.AddressLength {
			return nil, fmt.Errorf("%w: word %d is not an address", ErrMalformedInput, i)
		}
		journal.Plan = append(journal.Plan, types.Position{
			Strategy: common.BigToAddress(raw.Plan[i]),
			Debt:     conv.word(raw.Plan[i+1]),
		})
	}
	if conv.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, conv.err)
	}
	return journal, nil
}
