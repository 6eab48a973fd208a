package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/elys-network/allocator/internal/codec"
	"github.com/elys-network/allocator/internal/config"
	"github.com/elys-network/allocator/internal/engine"
	"github.com/elys-network/allocator/internal/metrics"
	"github.com/elys-network/allocator/internal/state"
	"github.com/elys-network/allocator/internal/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type ioFlags struct {
	input  string
	output string
	hex    bool
}

func (f *ioFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "input file, - for stdin")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "output file, - for stdout")
	cmd.Flags().BoolVar(&f.hex, "hex", false, "read binary input and write binary output as 0x-prefixed hex")
}

func (f *ioFlags) read(cmd *cobra.Command, binary bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if f.input == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(f.input)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if binary && f.hex {
		decoded, err := hexutil.Decode(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid hex input: %w", err)
		}
		return decoded, nil
	}
	return data, nil
}

func (f *ioFlags) write(cmd *cobra.Command, data []byte, binary bool) error {
	if binary && f.hex {
		data = []byte(hexutil.Encode(data) + "\n")
	}
	if f.output == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(f.output, data, 0o644)
}

func newComputeCmd() *cobra.Command {
	var (
		flags  ioFlags
		format string
		store  bool
	)

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Read a snapshot, compute the reallocation and write the ABI-encoded journal",
		Long: `Reads one snapshot (ABI-encoded by default, or a YAML fixture with --format yaml),
runs the allocator and writes the journal (uint256[] plan, uint256 newApr, uint256 currentApr,
bool accepted). Logs go to stderr. Any error exits non-zero without output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.read(cmd, format == "abi")
			if err != nil {
				return err
			}

			snapshot, err := decodeSnapshot(data, format)
			if err != nil {
				return err
			}

			var runStore engine.RunStore
			if store {
				if !config.PersistenceEnabled() {
					return fmt.Errorf("--store requires DB_HOST to be set")
				}
				if err := openDatabase(); err != nil {
					return err
				}
				defer state.CloseDB()
				runStore = state.Store{}
			}

			opts, err := config.AllocatorOptions()
			if err != nil {
				return err
			}
			eng, err := engine.NewEngine(engine.Config{Options: opts, Metrics: metrics.Default(), Store: runStore})
			if err != nil {
				return err
			}

			result, err := eng.Run(cmd.Context(), snapshot)
			if err != nil {
				return err
			}

			journal, err := codec.EncodeJournal(result)
			if err != nil {
				return err
			}
			return flags.write(cmd, journal, true)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "abi", "input format: abi or yaml")
	cmd.Flags().BoolVar(&store, "store", false, "persist the run record to PostgreSQL")
	return cmd
}

func decodeSnapshot(data []byte, format string) (*types.Snapshot, error) {
	switch format {
	case "abi":
		return codec.DecodeInput(data)
	case "yaml":
		return codec.ParseSnapshotYAML(data)
	default:
		return nil, fmt.Errorf("unknown input format %q (want abi or yaml)", format)
	}
}

func newEncodeCmd() *cobra.Command {
	var flags ioFlags

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Convert a YAML snapshot fixture into the ABI-encoded input",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.read(cmd, false)
			if err != nil {
				return err
			}
			snapshot, err := codec.ParseSnapshotYAML(data)
			if err != nil {
				return err
			}
			input, err := codec.EncodeInput(snapshot)
			if err != nil {
				return err
			}
			log.Info().Int("strategies", len(snapshot.InitialPositions)).Int("bytes", len(input)).Msg("Snapshot encoded")
			return flags.write(cmd, input, true)
		},
	}

	flags.register(cmd)
	return cmd
}

func newInspectCmd() *cobra.Command {
	var flags ioFlags

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Decode an ABI-encoded journal and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := flags.read(cmd, true)
			if err != nil {
				return err
			}
			journal, err := codec.DecodeJournal(data)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(journal, "", "  ")
			if err != nil {
				return err
			}
			return flags.write(cmd, append(out, '\n'), false)
		},
	}

	flags.register(cmd)
	return cmd
}
