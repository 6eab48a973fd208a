package aggregator

import (
	"testing"

	"github.com/elys-network/allocator/internal/ratecurve"
	"github.com/elys-network/allocator/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	strategyA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	strategyB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	unknown   = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func u(v uint64) uint256.Int {
	return *uint256.NewInt(v)
}

func curve(vertex, storedRate uint64) types.CurveParams {
	return types.CurveParams{
		CurrentTimestamp:       u(1_000),
		LastTimestamp:          u(1_000),
		RatePerSecond:          u(storedRate),
		FullUtilizationRate:    u(10_000),
		TotalAsset:             u(1_000),
		TotalBorrow:            u(800),
		UtilizationPrecision:   u(100_000),
		MinTargetUtilization:   u(75_000),
		MaxTargetUtilization:   u(85_000),
		VertexUtilization:      u(vertex),
		MinFullUtilizationRate: u(1_000),
		MaxFullUtilizationRate: u(1_000_000),
		ZeroUtilizationRate:    u(0),
		RateHalfLife:           u(100),
		VertexRatePercent:      *uint256.MustFromDecimal("500000000000000000"),
		RatePrecision:          *uint256.MustFromDecimal("1000000000000000000"),
	}
}

func annual(rate uint64) uint64 {
	return rate * ratecurve.SecondsPerYear
}

func TestCurrentAndNewApr_EmptyPlan(t *testing.T) {
	curves := []types.CurveParams{curve(80_000, 3_000), curve(80_000, 1_000)}
	strategyCaps := []types.StrategyCaps{{CurrentDebt: u(100)}, {CurrentDebt: u(300)}}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(300)}}

	current, next, err := CurrentAndNewApr(positions, curves, strategyCaps, nil)
	require.NoError(t, err)
	require.True(t, next.IsZero())
	// (3000*100 + 1000*300) / 400
	require.Equal(t, annual(1_500), current.Uint64())

	decision, err := Decide(positions, curves, strategyCaps, nil)
	require.NoError(t, err)
	require.False(t, decision.Accepted)
	require.Empty(t, decision.Plan)
}

func TestCurrentApr_ZeroDebt(t *testing.T) {
	curves := []types.CurveParams{curve(80_000, 3_000)}
	current, err := CurrentApr(curves, []types.StrategyCaps{{CurrentDebt: u(0)}})
	require.NoError(t, err)
	require.True(t, current.IsZero())
}

func TestDecide_Accepts(t *testing.T) {
	curves := []types.CurveParams{curve(90_000, 3_000), curve(80_000, 3_000)}
	strategyCaps := []types.StrategyCaps{{CurrentDebt: u(100)}, {CurrentDebt: u(100)}}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}
	optimal := []types.Position{{Strategy: strategyB, Debt: u(200)}, {Strategy: strategyA, Debt: u(100)}}

	decision, err := Decide(positions, curves, strategyCaps, optimal)
	require.NoError(t, err)
	require.Equal(t, annual(3_000), decision.CurrentApr.Uint64())
	// B at 72727 utilization pays 4545/s on 200, A keeps its stored 3000/s on 100.
	require.Equal(t, annual(4_030), decision.NewApr.Uint64())
	require.True(t, decision.Accepted)
	require.Equal(t, optimal, decision.Plan)
}

func TestDecide_RejectsWhenNotStrictlyBetter(t *testing.T) {
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}
	strategyCaps := []types.StrategyCaps{{CurrentDebt: u(100)}, {CurrentDebt: u(100)}}

	t.Run("lower", func(t *testing.T) {
		curves := []types.CurveParams{curve(90_000, 1_000_000), curve(80_000, 1_000_000)}
		optimal := []types.Position{{Strategy: strategyB, Debt: u(200)}, {Strategy: strategyA, Debt: u(100)}}

		decision, err := Decide(positions, curves, strategyCaps, optimal)
		require.NoError(t, err)
		require.True(t, decision.NewApr.Lt(&decision.CurrentApr))
		require.False(t, decision.Accepted)
		require.Nil(t, decision.Plan)
	})

	t.Run("equal", func(t *testing.T) {
		curves := []types.CurveParams{curve(90_000, 3_000), curve(80_000, 3_000)}
		// Unchanged debts keep the stored rates.
		decision, err := Decide(positions, curves, strategyCaps, positions)
		require.NoError(t, err)
		require.True(t, decision.NewApr.Eq(&decision.CurrentApr))
		require.False(t, decision.Accepted)
		require.Nil(t, decision.Plan)
	})
}

func TestNewApr_StopsAtUnknownStrategy(t *testing.T) {
	curves := []types.CurveParams{curve(90_000, 3_000), curve(80_000, 3_000)}
	strategyCaps := []types.StrategyCaps{{CurrentDebt: u(100)}, {CurrentDebt: u(100)}}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	next, err := NewApr(positions, curves, strategyCaps, []types.Position{
		{Strategy: unknown, Debt: u(500)},
		{Strategy: strategyA, Debt: u(100)},
	})
	require.NoError(t, err)
	require.True(t, next.IsZero())

	next, err = NewApr(positions, curves, strategyCaps, []types.Position{
		{Strategy: strategyA, Debt: u(100)},
		{Strategy: unknown, Debt: u(500)},
		{Strategy: strategyB, Debt: u(200)},
	})
	require.NoError(t, err)
	require.Equal(t, annual(3_000), next.Uint64())
}

func TestCurrentApr_Overflow(t *testing.T) {
	curves := []types.CurveParams{curve(80_000, 3_000)}
	huge := *new(uint256.Int).Lsh(uint256.NewInt(1), 250)

	_, err := CurrentApr(curves, []types.StrategyCaps{{CurrentDebt: huge}})
	require.ErrorIs(t, err, ErrOverflow)
}
