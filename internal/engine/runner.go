package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/store"
)

// Runner invokes one flow against instances persisted in a store.
//
// Each Invoke loads the instance (or starts an empty one), runs a fresh
// Executor over it and commits the outcome:
//   - success: run record, builder events and the new DataSet, atomically
//   - failure: run record and builder events only; the stored DataSet is untouched
//
// Thread-safety model:
//   - Invoke(): safe from any goroutine; invocations are serialized so two
//     deltas for the same instance can never race on its DataSet
//
// INVARIANTS:
//   - Run seq numbers come from one logical Clock, resumed from store.MaxSeq
//   - An instance is only ever invoked with the flow it was created with
type Runner struct {
	mu        sync.Mutex
	store     *store.Store
	flow      *ir.FlowDefinition
	factory   BuilderFactory
	clock     *Clock
	runIDs    RunIDGenerator
	listeners []ExecutionListener
	logger    *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerListener adds a listener to every run, after the Runner's own
// event recorder.
func WithRunnerListener(l ExecutionListener) RunnerOption {
	return func(r *Runner) {
		r.listeners = append(r.listeners, l)
	}
}

// WithRunnerLogger sets the logger handed to each Executor.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithRunnerRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunnerRunIDGenerator(gen RunIDGenerator) RunnerOption {
	return func(r *Runner) {
		r.runIDs = gen
	}
}

// NewRunner creates a Runner for flow. The logical clock resumes from the
// highest seq already recorded in s.
func NewRunner(ctx context.Context, s *store.Store, flow *ir.FlowDefinition, factory BuilderFactory, opts ...RunnerOption) (*Runner, error) {
	if flow == nil || flow.Graph == nil {
		return nil, fmt.Errorf("new runner: flow definition with a graph is required")
	}

	maxSeq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("new runner: %w", err)
	}

	r := &Runner{
		store:   s,
		flow:    flow,
		factory: factory,
		clock:   NewClockAt(maxSeq),
		runIDs:  UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Flow returns the flow this runner invokes.
func (r *Runner) Flow() *ir.FlowDefinition {
	return r.flow
}

// Invoke applies delta to the stored instance instanceID.
//
// Returns the ExecutionResponse on success. On a builder failure the
// *ExecutionError is returned after the failed run has been recorded;
// invalid input is returned without recording anything.
func (r *Runner) Invoke(ctx context.Context, instanceID string, delta ir.Delta) (*ir.ExecutionResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, err := r.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	original := inst.DataSet

	recorder := NewEventRecorder()
	opts := []ExecutorOption{
		WithLogger(r.logger),
		WithRunIDGenerator(r.runIDs),
		WithListener(recorder),
	}
	for _, l := range r.listeners {
		opts = append(opts, WithListener(l))
	}
	exec := NewExecutor(r.factory, opts...)

	resp, runErr := exec.Run(ctx, inst, delta)
	if runErr != nil {
		return nil, r.recordFailure(ctx, inst, original, delta, runErr, recorder.Events())
	}

	run := store.Run{
		ID:          resp.RunID,
		InstanceID:  inst.ID,
		Seq:         r.clock.Next(),
		Delta:       delta,
		Status:      store.RunOK,
		Generations: resp.Generations,
		Responses:   resp.Responses,
	}
	rec := store.Instance{ID: inst.ID, FlowName: r.flow.Name, DataSet: inst.DataSet}
	if err := r.store.CommitRun(ctx, rec, run, recorder.Events()); err != nil {
		return nil, fmt.Errorf("invoke %q: %w", instanceID, err)
	}

	r.logger.Info("run committed",
		"run_id", run.ID,
		"instance", inst.ID,
		"seq", run.Seq,
		"builders", len(resp.Responses),
		"generations", resp.Generations,
	)
	return resp, nil
}

// loadInstance returns the stored instance, or a new empty one.
func (r *Runner) loadInstance(ctx context.Context, instanceID string) (*ir.FlowInstance, error) {
	if instanceID == "" {
		return nil, newInvalidInputError(fmt.Errorf("instance id is required"))
	}

	rec, err := r.store.LoadInstance(ctx, instanceID)
	if errors.Is(err, store.ErrInstanceNotFound) {
		r.logger.Debug("starting new instance", "instance", instanceID, "flow", r.flow.Name)
		return ir.NewFlowInstance(instanceID, r.flow), nil
	}
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", instanceID, err)
	}
	if rec.FlowName != r.flow.Name {
		return nil, newInvalidInputError(fmt.Errorf("instance %q belongs to flow %q, not %q", instanceID, rec.FlowName, r.flow.Name))
	}
	return &ir.FlowInstance{ID: rec.ID, Flow: r.flow, DataSet: rec.DataSet}, nil
}

// recordFailure stores a failed run and returns the error to surface.
func (r *Runner) recordFailure(ctx context.Context, inst *ir.FlowInstance, original *ir.DataSet, delta ir.Delta, runErr error, events []ir.BuilderEvent) error {
	ee, ok := AsExecutionError(runErr)
	if !ok || ee.Code == ErrCodeInvalidInput {
		return runErr
	}

	run := store.Run{
		ID:           ee.RunID,
		InstanceID:   inst.ID,
		Seq:          r.clock.Next(),
		Delta:        delta,
		Status:       store.RunFailed,
		ErrorCode:    string(ee.Code),
		ErrorKind:    string(ee.Kind),
		ErrorBuilder: ee.Builder,
		ErrorMessage: ee.Message,
		ErrorPayload: ee.Payload,
	}
	if ee.Response != nil {
		run.Generations = ee.Response.Generations
		run.Responses = ee.Response.Responses
	}

	rec := store.Instance{ID: inst.ID, FlowName: r.flow.Name, DataSet: original}
	if err := r.store.CommitRun(ctx, rec, run, events); err != nil {
		r.logger.Error("failed to record failed run",
			"run_id", run.ID,
			"instance", inst.ID,
			"error", err,
		)
		return errors.Join(runErr, fmt.Errorf("record failed run: %w", err))
	}

	r.logger.Info("failed run recorded",
		"run_id", run.ID,
		"instance", inst.ID,
		"seq", run.Seq,
		"builder", ee.Builder,
		"code", ee.Code,
	)
	return runErr
}
