package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Instance string
	Failing  bool // list instances whose last run failed
	Events   bool // include per-builder events
}

// RunSummary is one recorded run.
type RunSummary struct {
	ID           string         `json:"id"`
	Seq          int64          `json:"seq"`
	Status       string         `json:"status"`
	Generations  int            `json:"generations"`
	DeltaKeys    []string       `json:"delta_keys"`
	Builders     []string       `json:"builders"`
	Hash         string         `json:"hash,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	ErrorBuilder string         `json:"error_builder,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Payload      map[string]any `json:"error_payload,omitempty"`
	Events       []EventSummary `json:"events,omitempty"`
}

// EventSummary is one builder lifecycle event of a run.
type EventSummary struct {
	Generation int    `json:"generation"`
	Builder    string `json:"builder"`
	Type       string `json:"type"`
	DataKey    string `json:"data_key,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HistoryResult is the run history of one instance.
type HistoryResult struct {
	Instance    string       `json:"instance"`
	Runs        []RunSummary `json:"runs"`
	OKCount     int          `json:"ok"`
	FailedCount int          `json:"failed"`
	LastStatus  string       `json:"last_status,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the run history of an instance",
		Long: `Show every recorded run of a flow instance in seq order.

Each run lists its delta keys, the builders that fired and, for failed
runs, the error code and payload. With --failing the instances whose most
recent run failed are listed instead.

Examples:
  dataflow history --db ./dataflow.db --instance o-1
  dataflow history --db ./dataflow.db --instance o-1 --events
  dataflow history --db ./dataflow.db --failing`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "instance id")
	cmd.Flags().BoolVar(&opts.Failing, "failing", false, "list instances whose last run failed")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "include builder events")
	cmd.MarkFlagsMutuallyExclusive("instance", "failing")
	cmd.MarkFlagsOneRequired("instance", "failing")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(cmd, opts.RootOptions)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Failing {
		return listFailing(ctx, st, formatter)
	}

	h, err := st.History(ctx, opts.Instance)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	result := HistoryResult{
		Instance:    h.InstanceID,
		Runs:        make([]RunSummary, 0, len(h.Runs)),
		OKCount:     h.OKCount,
		FailedCount: h.FailedCount,
		LastStatus:  string(h.LastStatus),
	}
	for _, run := range h.Runs {
		summary, err := summarizeRun(ctx, st, run, opts.Events)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
		result.Runs = append(result.Runs, summary)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputHistoryText(formatter, result)
}

func summarizeRun(ctx context.Context, st *store.Store, run store.Run, withEvents bool) (RunSummary, error) {
	s := RunSummary{
		ID:           run.ID,
		Seq:          run.Seq,
		Status:       string(run.Status),
		Generations:  run.Generations,
		DeltaKeys:    run.Delta.Keys(),
		Builders:     slices.Sorted(maps.Keys(run.Responses)),
		Hash:         run.DataSetHash,
		ErrorCode:    run.ErrorCode,
		ErrorKind:    run.ErrorKind,
		ErrorBuilder: run.ErrorBuilder,
		ErrorMessage: run.ErrorMessage,
		Payload:      run.ErrorPayload,
	}
	if !withEvents {
		return s, nil
	}

	events, err := st.ReadEvents(ctx, run.ID)
	if err != nil {
		return s, err
	}
	for _, ev := range events {
		s.Events = append(s.Events, EventSummary{
			Generation: ev.Generation,
			Builder:    ev.Builder,
			Type:       string(ev.Type),
			DataKey:    ev.DataKey,
			Error:      ev.Message,
		})
	}
	return s, nil
}

func outputHistoryText(formatter *OutputFormatter, result HistoryResult) error {
	w := formatter.Writer
	if len(result.Runs) == 0 {
		fmt.Fprintf(w, "No runs recorded for instance %s.\n", result.Instance)
		return nil
	}

	fmt.Fprintf(w, "Instance %s: %d run(s), %d ok, %d failed\n\n",
		result.Instance, len(result.Runs), result.OKCount, result.FailedCount)

	for _, run := range result.Runs {
		status := "✓"
		if run.Status != string(store.RunOK) {
			status = "✗"
		}
		fmt.Fprintf(w, "%s seq=%d run=%s delta=%v\n", status, run.Seq, run.ID, run.DeltaKeys)
		if run.Status == string(store.RunOK) {
			fmt.Fprintf(w, "  fired: %v (%d generation(s))\n", run.Builders, run.Generations)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", run.ErrorCode, run.ErrorMessage)
			if run.ErrorBuilder != "" {
				fmt.Fprintf(w, "  builder: %s (%s)\n", run.ErrorBuilder, run.ErrorKind)
			}
			for _, k := range sortedPayloadKeys(run.Payload) {
				fmt.Fprintf(w, "  %s: %v\n", k, run.Payload[k])
			}
		}
		for _, ev := range run.Events {
			switch {
			case ev.Error != "":
				fmt.Fprintf(w, "    gen %d %s %s: %s\n", ev.Generation, ev.Builder, ev.Type, ev.Error)
			case ev.DataKey != "":
				fmt.Fprintf(w, "    gen %d %s %s -> %s\n", ev.Generation, ev.Builder, ev.Type, ev.DataKey)
			default:
				fmt.Fprintf(w, "    gen %d %s %s\n", ev.Generation, ev.Builder, ev.Type)
			}
		}
	}
	return nil
}

func listFailing(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	ids, err := st.FindFailingInstances(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find failing instances", err)
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"failing": ids})
	}

	w := formatter.Writer
	if len(ids) == 0 {
		fmt.Fprintln(w, "No failing instances.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}
