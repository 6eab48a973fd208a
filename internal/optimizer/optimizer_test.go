package optimizer

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/allocator/internal/ratecurve"
	"github.com/elys-network/allocator/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	strategyA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	strategyB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	strategyC = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func u(v uint64) uint256.Int {
	return *uint256.NewInt(v)
}

func curve(vertex uint64) types.CurveParams {
	return types.CurveParams{
		CurrentTimestamp:       u(1_000),
		LastTimestamp:          u(1_000),
		RatePerSecond:          u(3_000),
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

func caps(current, max uint64) types.StrategyCaps {
	return types.StrategyCaps{CurrentDebt: u(current), MaxDebt: u(max)}
}

func sumDebts(positions []types.Position) *uint256.Int {
	total := new(uint256.Int)
	for i := range positions {
		total.Add(total, &positions[i].Debt)
	}
	return total
}

func TestOptimalAllocation_PicksHigherMarginalApr(t *testing.T) {
	curves := []types.CurveParams{curve(90_000), curve(80_000)}
	strategyCaps := []types.StrategyCaps{caps(100, 1_000_000), caps(100, 1_000_000)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	// One chunk: the remainder diff - unit*0 = 100 lands on A before placement, so A's candidate
	// delta is 200 while B's is 100.
	aprA, err := ratecurve.AprAfterDebtChange(&curves[0], sdkmath.NewInt(200))
	require.NoError(t, err)
	aprB, err := ratecurve.AprAfterDebtChange(&curves[1], sdkmath.NewInt(100))
	require.NoError(t, err)
	require.True(t, aprB.Gt(aprA))

	outcome, err := OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(300), positions, curves, strategyCaps, Options{})
	require.NoError(t, err)
	require.Len(t, outcome.Positions, 2)
	require.Empty(t, outcome.Diagnostics)

	// Both strategies are in the deposit group, emitted in reverse input order.
	require.Equal(t, strategyB, outcome.Positions[0].Strategy)
	require.Equal(t, uint64(200), outcome.Positions[0].Debt.Uint64())
	require.Equal(t, strategyA, outcome.Positions[1].Strategy)
	require.Equal(t, uint64(200), outcome.Positions[1].Debt.Uint64())
}

func TestOptimalAllocation_ConserveRemainderCandidate(t *testing.T) {
	curves := []types.CurveParams{curve(90_000), curve(80_000)}
	strategyCaps := []types.StrategyCaps{caps(100, 1_000_000), caps(100, 1_000_000)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	// Without the extra unit both candidate deltas are 100 and B still wins.
	outcome, err := OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(300), positions, curves, strategyCaps,
		Options{ConserveRemainder: true})
	require.NoError(t, err)
	require.Equal(t, strategyB, outcome.Positions[0].Strategy)
	require.Equal(t, uint64(200), outcome.Positions[0].Debt.Uint64())
	require.Equal(t, strategyA, outcome.Positions[1].Strategy)
	require.Equal(t, uint64(100), outcome.Positions[1].Debt.Uint64())
}

func TestOptimalAllocation_ZeroDepositUnit(t *testing.T) {
	curves := []types.CurveParams{curve(80_000), curve(80_000)}
	strategyCaps := []types.StrategyCaps{caps(100, 1_000), caps(100, 1_000)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	tests := []struct {
		name      string
		available uint64
		chunks    uint64
	}{
		{name: "nothing new", available: 200, chunks: 1},
		{name: "diff smaller than chunk count", available: 203, chunks: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := OptimalAllocation(tt.chunks, uint256.NewInt(200), uint256.NewInt(tt.available),
				positions, curves, strategyCaps, Options{})
			require.NoError(t, err)
			require.Empty(t, outcome.Positions)
		})
	}
}

func TestOptimalAllocation_RemainderBooking(t *testing.T) {
	curves := []types.CurveParams{curve(90_000), curve(80_000), curve(85_000)}
	strategyCaps := []types.StrategyCaps{caps(100, 100_000), caps(100, 100_000), caps(100, 100_000)}
	positions := []types.Position{
		{Strategy: strategyA, Debt: u(100)},
		{Strategy: strategyB, Debt: u(100)},
		{Strategy: strategyC, Debt: u(100)},
	}

	for _, chunks := range []uint64{1, 2, 3, 7, 10, 64} {
		unit := 1_000 / chunks

		// The final chunk books diff - unit*(chunks-1) on strategy 0, one unit above the new capital.
		outcome, err := OptimalAllocation(chunks, uint256.NewInt(300), uint256.NewInt(1_300),
			positions, curves, strategyCaps, Options{})
		require.NoError(t, err)
		require.Len(t, outcome.Positions, 3)
		require.Empty(t, outcome.Diagnostics)
		require.Equal(t, 1_300+unit, sumDebts(outcome.Positions).Uint64(), "chunks=%d", chunks)

		outcome, err = OptimalAllocation(chunks, uint256.NewInt(300), uint256.NewInt(1_300),
			positions, curves, strategyCaps, Options{ConserveRemainder: true})
		require.NoError(t, err)
		require.Equal(t, uint64(1_300), sumDebts(outcome.Positions).Uint64(), "chunks=%d", chunks)

		for i, p := range outcome.Positions {
			require.False(t, p.Debt.Gt(&strategyCaps[i].MaxDebt))
		}
	}
}

func TestOptimalAllocation_SingleChunkRemainder(t *testing.T) {
	curves := []types.CurveParams{curve(80_000), curve(80_000)}
	strategyCaps := []types.StrategyCaps{caps(100, 1_000_000), caps(100, 1_000_000)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	// With one chunk the whole diff is booked on strategy 0 before the chunk itself is placed.
	outcome, err := OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(300), positions, curves, strategyCaps, Options{})
	require.NoError(t, err)
	require.Equal(t, uint64(400), sumDebts(outcome.Positions).Uint64())

	outcome, err = OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(300), positions, curves, strategyCaps,
		Options{ConserveRemainder: true})
	require.NoError(t, err)
	require.Equal(t, uint64(300), sumDebts(outcome.Positions).Uint64())
}

func TestOptimalAllocation_RemainderGoesToFirstStrategy(t *testing.T) {
	// Strategy A is paused at a zero stored rate, so it never wins a chunk.
	paused := curve(80_000)
	paused.InterestPaused = true
	paused.RatePerSecond = u(0)

	curves := []types.CurveParams{paused, curve(80_000)}
	strategyCaps := []types.StrategyCaps{caps(100, 1_000_000), caps(100, 1_000_000)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	tests := []struct {
		name  string
		opts  Options
		debtA uint64
		debtB uint64
	}{
		// diff 10 over 3 chunks: unit 3, remainder 10 - 3*2 = 4.
		{name: "default", opts: Options{}, debtA: 104, debtB: 109},
		// leftover 10 - 3*3 = 1.
		{name: "conserve", opts: Options{ConserveRemainder: true}, debtA: 101, debtB: 109},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := OptimalAllocation(3, uint256.NewInt(200), uint256.NewInt(210), positions, curves, strategyCaps, tt.opts)
			require.NoError(t, err)

			debts := map[common.Address]uint64{}
			for _, p := range outcome.Positions {
				debts[p.Strategy] = p.Debt.Uint64()
			}
			require.Equal(t, tt.debtA, debts[strategyA])
			require.Equal(t, tt.debtB, debts[strategyB])
		})
	}
}

func TestOptimalAllocation_TieKeepsEarliest(t *testing.T) {
	curves := []types.CurveParams{curve(80_000), curve(80_000)}
	strategyCaps := []types.StrategyCaps{caps(100, 1_000_000), caps(100, 1_000_000)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	// Identical curves and equal candidate deltas only happen without the extra remainder unit.
	outcome, err := OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(250), positions, curves, strategyCaps,
		Options{ConserveRemainder: true})
	require.NoError(t, err)
	require.Equal(t, strategyB, outcome.Positions[0].Strategy)
	require.Equal(t, uint64(100), outcome.Positions[0].Debt.Uint64())
	require.Equal(t, strategyA, outcome.Positions[1].Strategy)
	require.Equal(t, uint64(150), outcome.Positions[1].Debt.Uint64())

	// By default A already carries the remainder, so B's smaller delta wins the chunk.
	outcome, err = OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(250), positions, curves, strategyCaps, Options{})
	require.NoError(t, err)
	require.Equal(t, strategyB, outcome.Positions[0].Strategy)
	require.Equal(t, uint64(150), outcome.Positions[0].Debt.Uint64())
	require.Equal(t, strategyA, outcome.Positions[1].Strategy)
	require.Equal(t, uint64(150), outcome.Positions[1].Debt.Uint64())
}

func TestOptimalAllocation_WithdrawalsFirst(t *testing.T) {
	// C is paused at zero, starts below its current debt and never receives capital.
	paused := curve(80_000)
	paused.InterestPaused = true
	paused.RatePerSecond = u(0)

	curves := []types.CurveParams{curve(90_000), curve(80_000), paused}
	strategyCaps := []types.StrategyCaps{caps(100, 1_000_000), caps(100, 1_000_000), caps(100, 100)}
	positions := []types.Position{
		{Strategy: strategyA, Debt: u(100)},
		{Strategy: strategyB, Debt: u(100)},
		{Strategy: strategyC, Debt: u(50)},
	}

	outcome, err := OptimalAllocation(2, uint256.NewInt(250), uint256.NewInt(350), positions, curves, strategyCaps, Options{})
	require.NoError(t, err)
	require.Len(t, outcome.Positions, 3)

	require.Equal(t, strategyC, outcome.Positions[0].Strategy)
	require.True(t, outcome.Positions[0].Debt.Lt(&strategyCaps[2].CurrentDebt))
	require.Equal(t, strategyB, outcome.Positions[1].Strategy)
	require.Equal(t, strategyA, outcome.Positions[2].Strategy)
	for _, p := range outcome.Positions[1:] {
		require.False(t, p.Debt.Lt(uint256.NewInt(100)))
	}
}

func TestOptimalAllocation_InfeasiblePolicies(t *testing.T) {
	curves := []types.CurveParams{curve(80_000), curve(80_000)}
	// No headroom anywhere.
	strategyCaps := []types.StrategyCaps{caps(100, 100), caps(100, 100)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	t.Run("fallback", func(t *testing.T) {
		outcome, err := OptimalAllocation(2, uint256.NewInt(200), uint256.NewInt(220), positions, curves, strategyCaps,
			Options{InfeasiblePolicy: PolicyFallback})
		require.NoError(t, err)
		require.Len(t, outcome.Diagnostics, 2)
		require.Equal(t, types.DiagnosticNoFeasibleStrategy, outcome.Diagnostics[0].Kind)
		require.Equal(t, uint64(1), outcome.Diagnostics[1].ChunkIndex)

		// Deposit group reversed: B first, then A with both chunks and the remainder of 10.
		require.Equal(t, strategyA, outcome.Positions[1].Strategy)
		require.Equal(t, uint64(130), outcome.Positions[1].Debt.Uint64())
		require.True(t, outcome.Positions[1].Debt.Gt(&strategyCaps[0].MaxDebt))
	})

	t.Run("skip", func(t *testing.T) {
		outcome, err := OptimalAllocation(2, uint256.NewInt(200), uint256.NewInt(220), positions, curves, strategyCaps,
			Options{InfeasiblePolicy: PolicySkip})
		require.NoError(t, err)
		require.Len(t, outcome.Diagnostics, 2)
		require.Equal(t, "skipped", outcome.Diagnostics[0].Action)
		// Both chunks are dropped. The final-chunk remainder is still booked on strategy 0.
		require.Equal(t, uint64(210), sumDebts(outcome.Positions).Uint64())

		outcome, err = OptimalAllocation(2, uint256.NewInt(200), uint256.NewInt(220), positions, curves, strategyCaps,
			Options{InfeasiblePolicy: PolicySkip, ConserveRemainder: true})
		require.NoError(t, err)
		for i := range outcome.Positions {
			require.Equal(t, uint64(100), outcome.Positions[i].Debt.Uint64())
		}
	})

	t.Run("fail", func(t *testing.T) {
		_, err := OptimalAllocation(2, uint256.NewInt(200), uint256.NewInt(220), positions, curves, strategyCaps,
			Options{InfeasiblePolicy: PolicyFail})
		require.ErrorIs(t, err, ErrNoFeasibleStrategy)
	})
}

func TestOptimalAllocation_RemainderOverCapacity(t *testing.T) {
	curves := []types.CurveParams{curve(80_000), curve(80_000)}
	// A has room for 50 more, B has plenty.
	strategyCaps := []types.StrategyCaps{caps(100, 150), caps(100, 1_000_000)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}, {Strategy: strategyB, Debt: u(100)}}

	_, err := OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(300), positions, curves, strategyCaps,
		Options{InfeasiblePolicy: PolicyFail})
	require.ErrorIs(t, err, ErrRemainderOverCapacity)

	// Other policies book the remainder and still place the chunk on B.
	outcome, err := OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(300), positions, curves, strategyCaps,
		Options{InfeasiblePolicy: PolicySkip})
	require.NoError(t, err)
	require.Empty(t, outcome.Diagnostics)
	require.Equal(t, strategyB, outcome.Positions[0].Strategy)
	require.Equal(t, uint64(200), outcome.Positions[0].Debt.Uint64())
	require.Equal(t, uint64(200), outcome.Positions[1].Debt.Uint64())

	outcome, err = OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(300), positions, curves, strategyCaps,
		Options{InfeasiblePolicy: PolicyFail, ConserveRemainder: true})
	require.NoError(t, err)
	require.Equal(t, uint64(300), sumDebts(outcome.Positions).Uint64())
}

func TestOptimalAllocation_InvalidInput(t *testing.T) {
	curves := []types.CurveParams{curve(80_000)}
	strategyCaps := []types.StrategyCaps{caps(100, 1_000)}
	positions := []types.Position{{Strategy: strategyA, Debt: u(100)}}

	_, err := OptimalAllocation(1, uint256.NewInt(100), uint256.NewInt(200), positions, curves, nil, Options{})
	require.ErrorIs(t, err, ErrLengthMismatch)

	_, err = OptimalAllocation(0, uint256.NewInt(100), uint256.NewInt(200), positions, curves, strategyCaps, Options{})
	require.ErrorIs(t, err, ErrZeroChunkCount)

	_, err = OptimalAllocation(1, uint256.NewInt(200), uint256.NewInt(100), positions, curves, strategyCaps, Options{})
	require.ErrorIs(t, err, ErrAvailableBelowInitial)

	_, err = OptimalAllocation(1, uint256.NewInt(100), uint256.NewInt(200), nil, nil, nil, Options{})
	require.ErrorIs(t, err, ErrNoStrategies)
}

func TestParseInfeasiblePolicy(t *testing.T) {
	p, err := ParseInfeasiblePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyFallback, p)

	p, err = ParseInfeasiblePolicy("skip")
	require.NoError(t, err)
	require.Equal(t, PolicySkip, p)

	_, err = ParseInfeasiblePolicy("drop")
	require.Error(t, err)
}
