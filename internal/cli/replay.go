package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/builders"
	"github.com/roach88/dataflow/internal/engine"
	"github.com/roach88/dataflow/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Flow     string
	Instance string // optional - every instance of the flow when empty
}

// ReplayInstanceResult holds the replay result for a single instance.
type ReplayInstanceResult struct {
	Instance      string           `json:"instance"`
	Replayed      int              `json:"replayed"`
	Skipped       int              `json:"skipped"`
	StoredHash    string           `json:"stored_hash"`
	FinalHash     string           `json:"final_hash"`
	Deterministic bool             `json:"deterministic"`
	Mismatches    []ReplayMismatch `json:"mismatches,omitempty"`
}

// ReplayMismatch is one run whose replayed state diverged.
type ReplayMismatch struct {
	RunID    string `json:"run_id"`
	Seq      int64  `json:"seq"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Flow             string                 `json:"flow"`
	Instances        []ReplayInstanceResult `json:"instances"`
	Total            int                    `json:"total"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <flows-dir>",
		Short: "Replay run history and verify determinism",
		Long: `Re-execute the recorded runs of flow instances and verify determinism.

Every successful run is replayed in seq order against an empty instance
using the current flow definition. After each run the data set hash must
match the recorded one, and the final hash must match the stored instance.
Failed runs are skipped because they never changed stored data.

Exit codes:
  0 - All instances replayed deterministically
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, invalid flows, etc.)

Examples:
  dataflow replay ./flows --db ./dataflow.db --flow order-intake
  dataflow replay ./flows --db ./dataflow.db --flow order-intake --instance o-1
  dataflow replay ./flows --db ./dataflow.db --flow order-intake --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Flow, "flow", "", "flow name (required)")
	_ = cmd.MarkFlagRequired("flow")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "replay a single instance only")

	return cmd
}

func runReplay(opts *ReplayOptions, flowsDir string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(cmd, opts.RootOptions)

	flow, err := loadNamedFlow(flowsDir, opts.Flow)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	factory, err := builders.NewFactory(flow)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build factory", err)
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := replayTargets(ctx, st, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list instances", err)
	}

	result := ReplayResult{
		Flow:             flow.Name,
		Instances:        make([]ReplayInstanceResult, 0, len(ids)),
		Total:            len(ids),
		AllDeterministic: true,
	}

	logger := newLogger(formatter.GetErrWriter(), opts.Verbose)
	for _, id := range ids {
		formatter.VerboseLog("Replaying instance: %s", id)
		rr, err := engine.Replay(ctx, st, flow, factory, id, engine.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay instance %s", id), err)
		}

		res := ReplayInstanceResult{
			Instance:      rr.InstanceID,
			Replayed:      rr.Replayed,
			Skipped:       rr.Skipped,
			StoredHash:    rr.StoredHash,
			FinalHash:     rr.FinalHash,
			Deterministic: rr.Match(),
		}
		for _, m := range rr.Mismatches {
			res.Mismatches = append(res.Mismatches, ReplayMismatch{
				RunID:    m.RunID,
				Seq:      m.Seq,
				Expected: m.Expected,
				Actual:   m.Actual,
				Error:    m.Err,
			})
		}
		result.Instances = append(result.Instances, res)
		if !res.Deterministic {
			result.AllDeterministic = false
		}
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayTargets returns the instance ids to replay.
func replayTargets(ctx context.Context, st *store.Store, opts *ReplayOptions) ([]string, error) {
	if opts.Instance != "" {
		return []string{opts.Instance}, nil
	}
	instances, err := st.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, inst := range instances {
		if inst.FlowName == opts.Flow {
			ids = append(ids, inst.ID)
		}
	}
	return ids, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	if result.AllDeterministic {
		return formatter.Report(result, nil)
	}
	failure := &CLIError{Code: "E_DETERMINISM", Message: "determinism verification failed"}
	if err := formatter.Report(result, failure); err != nil {
		return err
	}
	return NewExitError(ExitFailure, failure.Message)
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.Total == 0 {
		fmt.Fprintf(w, "No instances of flow %s found in database.\n", result.Flow)
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d instance(s) of %s\n", result.Total, result.Flow)
	fmt.Fprintln(w)

	for _, inst := range result.Instances {
		status := "✓"
		if !inst.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Instance: %s\n", status, inst.Instance)
		fmt.Fprintf(w, "  Runs: %d replayed, %d skipped\n", inst.Replayed, inst.Skipped)
		if verbose {
			fmt.Fprintf(w, "  Stored hash: %s\n", inst.StoredHash)
			fmt.Fprintf(w, "  Final hash:  %s\n", inst.FinalHash)
		}

		for _, m := range inst.Mismatches {
			if m.Error != "" {
				fmt.Fprintf(w, "  seq %d (%s) failed on replay: %s\n", m.Seq, m.RunID, m.Error)
				continue
			}
			fmt.Fprintf(w, "  seq %d (%s) expected %s, got %s\n", m.Seq, m.RunID, m.Expected, m.Actual)
		}
		if !inst.Deterministic && len(inst.Mismatches) == 0 {
			fmt.Fprintln(w, "  Warning: final state differs from stored instance!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All instances verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
