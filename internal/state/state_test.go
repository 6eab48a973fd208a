package state

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/elys-network/allocator/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func sampleRun() (*types.Snapshot, *types.Result) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	b := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	huge := *new(uint256.Int).Lsh(uint256.NewInt(1), 200)

	snapshot := &types.Snapshot{
		ChunkCount:           4,
		TotalInitialAmount:   *uint256.NewInt(200),
		TotalAvailableAmount: *uint256.NewInt(300),
		InitialPositions: []types.Position{
			{Strategy: a, Debt: *uint256.NewInt(100)},
			{Strategy: b, Debt: *uint256.NewInt(100)},
		},
		StrategyCaps: []types.StrategyCaps{
			{CurrentDebt: *uint256.NewInt(100), MaxDebt: huge},
			{CurrentDebt: *uint256.NewInt(100), MaxDebt: huge},
		},
		CurveParams: []types.CurveParams{{RatePrecision: huge}, {InterestPaused: true}},
	}
	result := &types.Result{
		RunID:      "9f0c7a52-6d0e-4c55-9d59-2a3c2a8e1f10",
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Plan:       []types.Position{{Strategy: b, Debt: *uint256.NewInt(200)}, {Strategy: a, Debt: *uint256.NewInt(100)}},
		CurrentApr: *uint256.NewInt(94_670_856_000),
		NewApr:     huge,
		Accepted:   true,
		Diagnostics: []types.Diagnostic{
			{Kind: types.DiagnosticZeroApr, ChunkIndex: 2, Action: "fallback"},
		},
	}
	return snapshot, result
}

func TestNewRunRecord(t *testing.T) {
	snapshot, result := sampleRun()
	record := NewRunRecord(snapshot, result)

	require.Equal(t, result.RunID, record.RunID)
	require.Equal(t, uint64(4), record.ChunkCount)
	require.Equal(t, []string{
		snapshot.InitialPositions[0].Strategy.Hex(),
		snapshot.InitialPositions[1].Strategy.Hex(),
	}, record.Strategies)
	require.True(t, record.Accepted)
	require.Equal(t, result.NewApr, record.NewApr)
}

func TestRunRowDecode(t *testing.T) {
	snapshot, result := sampleRun()
	record := NewRunRecord(snapshot, result)

	snapshotJSON, err := json.Marshal(&record.Snapshot)
	require.NoError(t, err)
	resultJSON, err := json.Marshal(&record.Result)
	require.NoError(t, err)

	row := runRow{
		record: types.RunRecord{
			RunNumber:  7,
			RunID:      record.RunID,
			Timestamp:  record.Timestamp,
			Strategies: record.Strategies,
			Accepted:   record.Accepted,
		},
		chunkCount:   "4",
		currentApr:   record.CurrentApr.Dec(),
		newApr:       record.NewApr.Dec(),
		snapshotJSON: snapshotJSON,
		resultJSON:   resultJSON,
	}

	decoded, err := row.decode()
	require.NoError(t, err)
	require.Equal(t, int64(7), decoded.RunNumber)
	require.Equal(t, record.ChunkCount, decoded.ChunkCount)
	require.Equal(t, record.CurrentApr, decoded.CurrentApr)
	require.Equal(t, record.NewApr, decoded.NewApr)
	require.Equal(t, record.Snapshot, decoded.Snapshot)
	require.Equal(t, record.Result.Plan, decoded.Result.Plan)
	require.Equal(t, record.Result.Diagnostics, decoded.Result.Diagnostics)

	row.newApr = "-1"
	_, err = row.decode()
	require.Error(t, err)
}

func TestQueriesRequireDB(t *testing.T) {
	DB = nil
	ctx := context.Background()
	snapshot, result := sampleRun()

	_, err := SaveRunRecord(ctx, snapshot, result)
	require.ErrorIs(t, err, ErrDBNotInitialized)
	require.ErrorIs(t, Store{}.SaveRunRecord(ctx, snapshot, result), ErrDBNotInitialized)

	_, err = LoadRecentRuns(ctx, 10)
	require.ErrorIs(t, err, ErrDBNotInitialized)

	_, err = LoadRun(ctx, result.RunID)
	require.ErrorIs(t, err, ErrDBNotInitialized)

	_, err = GetRunSummary(ctx)
	require.ErrorIs(t, err, ErrDBNotInitialized)

	_, err = GetCurrentRunNumber(ctx)
	require.ErrorIs(t, err, ErrDBNotInitialized)

	require.ErrorIs(t, EnsureSchema(), ErrDBNotInitialized)
	require.ErrorIs(t, DropSchema(), ErrDBNotInitialized)
	require.Error(t, TestDBConnection())
}

func TestDBConfigDSN(t *testing.T) {
	cfg := DBConfig{Host: "localhost", Port: 5432, User: "allocator", Password: "secret", DBName: "allocator", SSLMode: "disable"}
	require.Equal(t, "host=localhost port=5432 user=allocator password=secret dbname=allocator sslmode=disable", cfg.DSN())
}
