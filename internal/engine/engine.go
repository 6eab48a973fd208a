package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/elys-network/allocator/internal/aggregator"
	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/metrics"
	"github.com/elys-network/allocator/internal/optimizer"
	"github.com/elys-network/allocator/internal/planner"
	"github.com/elys-network/allocator/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNilSnapshot = errors.New("snapshot cannot be nil")
	ErrNilMetrics  = errors.New("metrics cannot be nil")
)

// RunStore persists finished runs. A nil store disables persistence.
type RunStore interface {
	SaveRunRecord(ctx context.Context, snapshot *types.Snapshot, result *types.Result) error
}

// Engine runs one allocation per call: optimizer, decision gate, then action planning.
type Engine struct {
	logger  zerolog.Logger
	opts    optimizer.Options
	metrics *metrics.Metrics
	store   RunStore

	now   func() time.Time
	newID func() string
}

// Config holds the dependencies for creating a new Engine instance
type Config struct {
	Options optimizer.Options
	Metrics *metrics.Metrics
	Store   RunStore
}

// NewEngine creates an Engine with dependency injection
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", ErrNilMetrics)
	}
	if _, err := optimizer.ParseInfeasiblePolicy(string(cfg.Options.InfeasiblePolicy)); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	e := &Engine{
		logger:  logger.GetForComponent("allocation_engine"),
		opts:    cfg.Options,
		metrics: cfg.Metrics,
		store:   cfg.Store,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}

	e.logger.Info().
		Str("infeasiblePolicy", string(e.opts.InfeasiblePolicy)).
		Bool("conserveRemainder", e.opts.ConserveRemainder).
		Bool("persistence", e.store != nil).
		Msg("Allocation engine created")

	return e, nil
}

// Run computes the reallocation for one snapshot. Any core error aborts the run; nothing is
// returned alongside it. A failure to persist the record is logged and does not fail the run.
func (e *Engine) Run(ctx context.Context, snapshot *types.Snapshot) (*types.Result, error) {
	if snapshot == nil {
		return nil, ErrNilSnapshot
	}

	start := e.now()
	runID := e.newID()
	runLogger := e.logger.With().Str("run_id", runID).Logger()

	runLogger.Info().
		Uint64("chunkCount", snapshot.ChunkCount).
		Int("strategies", len(snapshot.InitialPositions)).
		Str("totalInitialAmount", snapshot.TotalInitialAmount.Dec()).
		Str("totalAvailableAmount", snapshot.TotalAvailableAmount.Dec()).
		Msg("--- Starting allocation run ---")

	result, err := e.compute(snapshot)
	elapsed := e.now().Sub(start)
	if err != nil {
		e.metrics.ObserveRun(metrics.OutcomeFailed, len(snapshot.InitialPositions), elapsed)
		runLogger.Error().Err(err).Dur("elapsed", elapsed).Msg("Allocation run failed")
		return nil, err
	}
	result.RunID = runID
	result.Timestamp = start.UTC()

	outcome := metrics.OutcomeRejected
	if result.Accepted {
		outcome = metrics.OutcomeAccepted
		apr, _ := new(big.Float).SetInt(result.NewApr.ToBig()).Float64()
		e.metrics.LastAcceptedApr.Set(apr)
	}
	e.metrics.ObserveRun(outcome, len(snapshot.InitialPositions), elapsed)
	for _, d := range result.Diagnostics {
		e.metrics.InfeasibleChunks.WithLabelValues(string(d.Kind), d.Action).Inc()
	}
	if over := overCapacity(snapshot, result.Plan); len(over) > 0 {
		runLogger.Warn().
			Strs("strategies", over).
			Str("infeasiblePolicy", string(e.opts.InfeasiblePolicy)).
			Msg("Accepted plan puts strategies above their max debt")
	}

	runLogger.Info().
		Str("currentApr", result.CurrentApr.Dec()).
		Str("newApr", result.NewApr.Dec()).
		Bool("accepted", result.Accepted).
		Int("subActions", len(result.Actions.SubActions)).
		Int("diagnostics", len(result.Diagnostics)).
		Dur("elapsed", elapsed).
		Msg("--- Allocation run completed ---")

	if e.store != nil {
		if err := e.store.SaveRunRecord(ctx, snapshot, result); err != nil {
			runLogger.Error().Err(err).Msg("Failed to persist run record")
		}
	}

	return result, nil
}

func (e *Engine) compute(snapshot *types.Snapshot) (*types.Result, error) {
	outcome, err := optimizer.OptimalAllocation(
		snapshot.ChunkCount,
		&snapshot.TotalInitialAmount,
		&snapshot.TotalAvailableAmount,
		snapshot.InitialPositions,
		snapshot.CurveParams,
		snapshot.StrategyCaps,
		e.opts,
	)
	if err != nil {
		return nil, fmt.Errorf("optimal allocation: %w", err)
	}

	decision, err := aggregator.Decide(snapshot.InitialPositions, snapshot.CurveParams, snapshot.StrategyCaps, outcome.Positions)
	if err != nil {
		return nil, fmt.Errorf("apr aggregation: %w", err)
	}

	result := &types.Result{
		CurrentApr:  decision.CurrentApr,
		NewApr:      decision.NewApr,
		Accepted:    decision.Accepted,
		Plan:        []types.Position{},
		Diagnostics: outcome.Diagnostics,
	}
	if !decision.Accepted {
		result.Actions = types.ActionPlan{GoalDescription: "Keep current allocation", SubActions: []types.SubAction{}}
		return result, nil
	}

	result.Plan = decision.Plan
	result.Actions, err = planner.GenerateActionPlan(decision.Plan, snapshot.InitialPositions, snapshot.StrategyCaps)
	if err != nil {
		return nil, fmt.Errorf("action planning: %w", err)
	}
	return result, nil
}

// overCapacity lists the strategies whose target debt in plan is above their max debt.
func overCapacity(snapshot *types.Snapshot, plan []types.Position) []string {
	var over []string
	for _, target := range plan {
		for i := range snapshot.InitialPositions {
			if snapshot.InitialPositions[i].Strategy != target.Strategy {
				continue
			}
			if target.Debt.Gt(&snapshot.StrategyCaps[i].MaxDebt) {
				over = append(over, target.Strategy.Hex())
			}
			break
		}
	}
	return over
}
