package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/dataflow/internal/builders"
	"github.com/roach88/dataflow/internal/compiler"
	"github.com/roach88/dataflow/internal/engine"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/store"
	"github.com/roach88/dataflow/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against the real executor with deterministic run ids.
type Harness struct {
	store  *store.Store
	runner *engine.Runner
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic run ids and the store's logical clock ensure
// reproducible traces.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load and compile the flow from scenario.FlowDir
// 3. Apply each step's delta through an engine.Runner
// 4. Read the recorded runs and events back as the trace
// 5. Evaluate assertions against trace and final DataSet
//
// An error is returned only when the scenario cannot be executed at all;
// mismatches are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	flow, err := loadFlow(scenario.FlowDir, scenario.Flow)
	if err != nil {
		return nil, err
	}

	factory, err := builders.NewFactory(flow)
	if err != nil {
		return nil, fmt.Errorf("failed to build factory: %w", err)
	}

	logger := testutil.QuietLogger()
	runner, err := engine.NewRunner(ctx, st, flow, factory,
		engine.WithRunnerRunIDGenerator(testutil.NewSequentialRunIDs(scenario.RunPrefix)),
		engine.WithRunnerLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{store: st, runner: runner, logger: logger}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	if err := h.collectTrace(ctx, scenario.Instance, result); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// loadFlow compiles dir and picks the named flow.
func loadFlow(dir, name string) (*ir.FlowDefinition, error) {
	flows, errs := compiler.LoadFlows(dir)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load flows from %s: %w", dir, errors.Join(errs...))
	}
	for _, f := range flows {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("flow %q not found in %s", name, dir)
}

// executeSteps applies every step and checks its expect clause.
func (h *Harness) executeSteps(ctx context.Context, scenario *Scenario, result *Result) error {
	for i, step := range scenario.Steps {
		delta, err := convertDelta(step.Delta)
		if err != nil {
			return fmt.Errorf("step %d: failed to convert delta: %w", i, err)
		}

		resp, runErr := h.runner.Invoke(ctx, scenario.Instance, delta)

		sr := StepResult{Builders: []string{}}
		var ee *engine.ExecutionError
		switch {
		case runErr == nil:
			sr.RunID = resp.RunID
			sr.Builders = resp.Builders()
			sr.Generations = resp.Generations
		case errors.As(runErr, &ee):
			sr.RunID = ee.RunID
			sr.ErrorCode = string(ee.Code)
			sr.ErrorKind = string(ee.Kind)
			if ee.Response != nil {
				sr.Builders = ee.Response.Builders()
				sr.Generations = ee.Response.Generations
			}
		default:
			// Not an executor outcome: the store or runner itself broke.
			return fmt.Errorf("step %d: %w", i, runErr)
		}
		result.Steps = append(result.Steps, sr)

		for _, msg := range checkExpect(step.Expect, sr, ee) {
			result.AddError(fmt.Sprintf("step %d: %s", i, msg))
		}

		h.logger.Info("step completed",
			"step", i,
			"run_id", sr.RunID,
			"builders", len(sr.Builders),
			"error_code", sr.ErrorCode,
		)
	}
	return nil
}

// checkExpect compares one step's outcome with its expect clause.
func checkExpect(expect *ExpectClause, sr StepResult, ee *engine.ExecutionError) []string {
	var errs []string

	var wantErr *ExpectError
	if expect != nil {
		wantErr = expect.Error
	}

	switch {
	case wantErr == nil && ee != nil:
		errs = append(errs, fmt.Sprintf("expected success, got %s", ee.Error()))
	case wantErr != nil && ee == nil:
		errs = append(errs, fmt.Sprintf("expected error %s, run succeeded", wantErr.Code))
	case wantErr != nil:
		if wantErr.Code != "" && wantErr.Code != string(ee.Code) {
			errs = append(errs, fmt.Sprintf("error code: expected %s, got %s", wantErr.Code, ee.Code))
		}
		if wantErr.Kind != "" && wantErr.Kind != string(ee.Kind) {
			errs = append(errs, fmt.Sprintf("error kind: expected %s, got %s", wantErr.Kind, ee.Kind))
		}
		if wantErr.Builder != "" && wantErr.Builder != ee.Builder {
			errs = append(errs, fmt.Sprintf("error builder: expected %s, got %s", wantErr.Builder, ee.Builder))
		}
		for key, want := range wantErr.Payload {
			got, ok := ee.Payload[key]
			if !ok {
				errs = append(errs, fmt.Sprintf("error payload: missing %q", key))
				continue
			}
			if !plainEqual(want, got) {
				errs = append(errs, fmt.Sprintf("error payload %q: expected %v, got %v", key, want, got))
			}
		}
	}

	if expect == nil {
		return errs
	}
	if expect.Builders != nil {
		want := slices.Sorted(slices.Values(expect.Builders))
		if !slices.Equal(want, sr.Builders) {
			errs = append(errs, fmt.Sprintf("builders: expected %v, got %v", want, sr.Builders))
		}
	}
	if expect.Generations != 0 && expect.Generations != sr.Generations {
		errs = append(errs, fmt.Sprintf("generations: expected %d, got %d", expect.Generations, sr.Generations))
	}
	return errs
}

// collectTrace reads the instance's runs and events back from the store,
// along with its final DataSet.
func (h *Harness) collectTrace(ctx context.Context, instanceID string, result *Result) error {
	runs, err := h.store.ReadRuns(ctx, instanceID)
	if err != nil {
		return err
	}

	for _, run := range runs {
		result.Trace = append(result.Trace, TraceEvent{
			Type:      TraceRun,
			Seq:       run.Seq,
			RunID:     run.ID,
			Status:    string(run.Status),
			ErrorCode: run.ErrorCode,
		})

		events, err := h.store.ReadEvents(ctx, run.ID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			result.Trace = append(result.Trace, TraceEvent{
				Type:       string(ev.Type),
				Seq:        run.Seq,
				RunID:      run.ID,
				Generation: ev.Generation,
				Builder:    ev.Builder,
				DataKey:    ev.DataKey,
				Message:    ev.Message,
			})
		}
	}

	inst, err := h.store.LoadInstance(ctx, instanceID)
	if errors.Is(err, store.ErrInstanceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if plain, ok := ir.ToAny(inst.DataSet.Object()).(map[string]any); ok {
		result.DataSet = plain
	}
	return nil
}

// convertDelta converts a YAML-parsed delta map to an ir.Delta.
func convertDelta(raw map[string]any) (ir.Delta, error) {
	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("delta must be a mapping, got %T", v)
	}
	delta := ir.DeltaFromObject(obj)
	if err := delta.Validate(); err != nil {
		return nil, err
	}
	return delta, nil
}
