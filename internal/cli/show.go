package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	Instance string // optional - list all instances when empty
}

// InstanceSummary is one row of the instance listing.
type InstanceSummary struct {
	ID   string   `json:"id"`
	Flow string   `json:"flow"`
	Seq  int64    `json:"seq"`
	Keys []string `json:"keys"`
}

// InstanceDetail is the full stored state of one instance.
type InstanceDetail struct {
	ID      string         `json:"id"`
	Flow    string         `json:"flow"`
	Seq     int64          `json:"seq"`
	Hash    string         `json:"hash"`
	DataSet map[string]any `json:"dataset"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored flow instances",
		Long: `Show the stored data of flow instances.

Without --instance every stored instance is listed. With --instance the
full data set of that instance is printed along with its content hash.

Examples:
  dataflow show --db ./dataflow.db
  dataflow show --db ./dataflow.db --instance o-1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "show a single instance")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(cmd, opts.RootOptions)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Instance == "" {
		return listInstances(ctx, st, formatter)
	}

	inst, err := st.LoadInstance(ctx, opts.Instance)
	if errors.Is(err, store.ErrInstanceNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("instance %q not found", opts.Instance), nil)
		return WrapExitError(ExitCommandError, "instance not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load instance", err)
	}

	detail := InstanceDetail{
		ID:      inst.ID,
		Flow:    inst.FlowName,
		Seq:     inst.Seq,
		Hash:    inst.DataSetHash,
		DataSet: dataSetMap(inst.DataSet),
	}
	if formatter.JSON() {
		return formatter.Success(detail)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Instance: %s\n", detail.ID)
	fmt.Fprintf(w, "Flow:     %s\n", detail.Flow)
	fmt.Fprintf(w, "Seq:      %d\n", detail.Seq)
	fmt.Fprintf(w, "Hash:     %s\n", detail.Hash)
	fmt.Fprintln(w)
	for _, key := range inst.DataSet.Keys() {
		d, _ := inst.DataSet.Get(key)
		raw, err := ir.MarshalCanonical(d.Value)
		if err != nil {
			return fmt.Errorf("render %q: %w", key, err)
		}
		fmt.Fprintf(w, "  %s = %s\n", key, raw)
	}
	return nil
}

func listInstances(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	instances, err := st.ListInstances(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list instances", err)
	}

	rows := make([]InstanceSummary, 0, len(instances))
	for _, inst := range instances {
		rows = append(rows, InstanceSummary{
			ID:   inst.ID,
			Flow: inst.FlowName,
			Seq:  inst.Seq,
			Keys: inst.DataSet.Keys(),
		})
	}

	if formatter.JSON() {
		return formatter.Success(rows)
	}

	w := formatter.Writer
	if len(rows) == 0 {
		fmt.Fprintln(w, "No instances found in database.")
		return nil
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s  flow=%s seq=%d keys=%v\n", r.ID, r.Flow, r.Seq, r.Keys)
	}
	return nil
}

// openExistingStore opens a database that must already exist; read-only
// commands never create one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// dataSetMap converts a DataSet into plain Go values for output.
func dataSetMap(ds *ir.DataSet) map[string]any {
	if plain, ok := ir.ToAny(ds.Object()).(map[string]any); ok {
		return plain
	}
	return map[string]any{}
}

func sortedPayloadKeys(payload map[string]any) []string {
	return slices.Sorted(maps.Keys(payload))
}
