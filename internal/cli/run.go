package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/builders"
	"github.com/roach88/dataflow/internal/engine"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	Flow      string
	Instance  string
	Delta     string // inline JSON object
	DeltaFile string // path to a JSON object, "-" for stdin

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunOutput is the result of one successful invocation.
type RunOutput struct {
	RunID       string         `json:"run_id"`
	Instance    string         `json:"instance"`
	Generations int            `json:"generations"`
	Builders    []string       `json:"builders"`
	Responses   map[string]any `json:"responses"`
	DataSet     map[string]any `json:"dataset"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <flows-dir>",
		Short: "Apply a delta to a flow instance",
		Long: `Apply one delta to a stored flow instance and persist the result.

The flow is compiled from the CUE files in <flows-dir>. The instance is
loaded from the SQLite database (created empty if it does not exist),
the delta is merged in, and every builder whose inputs changed fires in
generations until the target is produced or nothing new appears.

A failing builder aborts the run. The failure is recorded in the run
history and the stored data is left untouched.

Exit codes:
  0 - Run succeeded
  1 - A builder failed
  2 - Command error (invalid flows, bad delta, database error, etc.)

Examples:
  dataflow run ./flows --db ./dataflow.db --flow order-intake --instance o-1 --delta '{"order": {"sku": "A-1", "qty": 2}}'
  dataflow run ./flows --db ./dataflow.db --flow order-intake --instance o-1 --delta-file delta.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Flow, "flow", "", "flow name (required)")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "instance id (required)")
	cmd.Flags().StringVar(&opts.Delta, "delta", "", "delta as a JSON object")
	cmd.Flags().StringVar(&opts.DeltaFile, "delta-file", "", "read the delta from a JSON file (- for stdin)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("flow")
	_ = cmd.MarkFlagRequired("instance")
	cmd.MarkFlagsMutuallyExclusive("delta", "delta-file")
	cmd.MarkFlagsOneRequired("delta", "delta-file")

	return cmd
}

func runInvoke(opts *RunOptions, flowsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)
	logger := newLogger(formatter.GetErrWriter(), opts.Verbose)

	delta, err := readDelta(opts, cmd.InOrStdin())
	if err != nil {
		_ = formatter.Error(string(engine.ErrCodeInvalidInput), err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid delta", err)
	}

	flow, err := loadNamedFlow(flowsDir, opts.Flow)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	logger.Debug("flow compiled", "flow", flow.Name, "levels", len(flow.Graph.Levels))

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	factory, err := builders.NewFactory(flow)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build factory", err)
	}
	logger.Debug("builders registered", "names", factory.Names())

	runnerOpts := []engine.RunnerOption{engine.WithRunnerLogger(logger)}
	if opts.RunIDs != nil {
		runnerOpts = append(runnerOpts, engine.WithRunnerRunIDGenerator(opts.RunIDs))
	}
	if opts.Verbose {
		runnerOpts = append(runnerOpts, engine.WithRunnerListener(engine.LoggingListener{Logger: logger}))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runner, err := engine.NewRunner(ctx, st, flow, factory, runnerOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create runner", err)
	}

	resp, err := runner.Invoke(ctx, opts.Instance, delta)
	if err != nil {
		return outputRunError(formatter, err)
	}

	stored, err := st.LoadInstance(ctx, opts.Instance)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to reload instance", err)
	}

	out := RunOutput{
		RunID:       resp.RunID,
		Instance:    opts.Instance,
		Generations: resp.Generations,
		Builders:    resp.Builders(),
		Responses:   make(map[string]any, len(resp.Responses)),
		DataSet:     dataSetMap(stored.DataSet),
	}
	for name, data := range resp.Responses {
		out.Responses[name] = ir.ToAny(data.Value)
	}

	if formatter.JSON() {
		return formatter.Success(out)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ run %s on %s (%d generation(s))\n", out.RunID, out.Instance, out.Generations)
	if len(out.Builders) == 0 {
		fmt.Fprintln(w, "  no builders fired")
	}
	for _, name := range out.Builders {
		fmt.Fprintf(w, "  %s -> %s\n", name, resp.Responses[name].Key)
	}
	return nil
}

// readDelta parses the delta from --delta or --delta-file.
func readDelta(opts *RunOptions, stdin io.Reader) (ir.Delta, error) {
	raw := []byte(opts.Delta)
	if opts.DeltaFile != "" {
		var err error
		if opts.DeltaFile == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(opts.DeltaFile)
		}
		if err != nil {
			return nil, fmt.Errorf("read delta: %w", err)
		}
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, fmt.Errorf("delta is empty")
	}
	return ir.ParseDelta(raw)
}

// loadNamedFlow compiles flowsDir fail-fast and returns the named flow.
func loadNamedFlow(flowsDir, name string) (*ir.FlowDefinition, error) {
	result, errs := LoadFlows(flowsDir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return result.Flow(name)
}

// outputLoadError reports a flow loading failure (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to load flows", err)
}

// outputRunError reports a failed invocation. Errors that did not come
// from the executor are command errors.
func outputRunError(formatter *OutputFormatter, err error) error {
	ee, ok := engine.AsExecutionError(err)
	if !ok {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run failed", err)
	}
	return formatter.ExecutionFailure(ee)
}

// newLogger builds the slog logger used by commands that drive the engine.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
