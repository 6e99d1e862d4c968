package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/dataflow/internal/ir"
)

// Executor runs flow instances against deltas.
//
// Thread-safety model:
//   - Run(): safe to call concurrently for different FlowInstances, including
//     instances sharing one FlowDefinition. All run state is per call.
//   - RegisterListener(): must not race with Run; register during setup.
//
// INVARIANTS:
//   - The ExecutionGraph and FlowDefinition are never mutated
//   - A builder fires at most once per Run
//   - instance.DataSet is replaced only when Run returns nil error
type Executor struct {
	factory   BuilderFactory
	listeners []ExecutionListener
	runIDs    RunIDGenerator
	logger    *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithListener registers a listener. Listeners are notified in the order
// they were registered.
func WithListener(l ExecutionListener) ExecutorOption {
	return func(e *Executor) {
		e.listeners = append(e.listeners, l)
	}
}

// WithLogger sets the logger used for run progress and swallowed listener failures.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(gen RunIDGenerator) ExecutorOption {
	return func(e *Executor) {
		e.runIDs = gen
	}
}

// NewExecutor creates an Executor resolving builders through factory.
func NewExecutor(factory BuilderFactory, opts ...ExecutorOption) *Executor {
	e := &Executor{
		factory: factory,
		runIDs:  UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterListener adds a listener after construction.
func (e *Executor) RegisterListener(l ExecutionListener) {
	e.listeners = append(e.listeners, l)
}

// runState is everything that changes during one Run.
// It replaces any notion of "processed" on the shared graph metadata.
type runState struct {
	runID      string
	instance   *ir.FlowInstance
	flow       *ir.FlowDefinition
	delta      ir.Delta
	working    *ir.DataSet
	fired      map[string]bool // builder names that already fired in this run
	active     map[string]bool // trigger keys for the current generation
	generated  map[string]bool // non-transient keys produced this generation
	generation int
	response   *ir.ExecutionResponse
}

// Run advances instance by delta and returns the outputs produced.
//
// Builders fire when triggered (a consumed key is in the active set) and
// ready (all consumed keys present), at most once each. Generations repeat
// until the flow target is produced or a generation produces no new
// non-transient key. On success the instance's DataSet is replaced with the
// working set minus transient keys.
//
// A failing builder aborts the whole run with an *ExecutionError; nothing
// produced during the run survives and instance.DataSet is left untouched.
func (e *Executor) Run(ctx context.Context, instance *ir.FlowInstance, delta ir.Delta) (*ir.ExecutionResponse, error) {
	if err := instance.Validate(); err != nil {
		return nil, newInvalidInputError(err)
	}
	if err := delta.Validate(); err != nil {
		return nil, newInvalidInputError(err)
	}

	rs := &runState{
		runID:     e.runIDs.Generate(),
		instance:  instance,
		flow:      instance.Flow,
		delta:     delta,
		working:   instance.DataSet.Copy(),
		fired:     make(map[string]bool),
		active:    make(map[string]bool),
		generated: make(map[string]bool),
	}
	rs.response = ir.NewExecutionResponse(rs.runID)

	rs.working.MergeDelta(delta)
	for _, key := range delta.Keys() {
		rs.active[key] = true
	}

	e.logger.Debug("run starting",
		"run_id", rs.runID,
		"flow", rs.flow.Name,
		"instance", instance.ID,
		"delta_keys", len(rs.active),
	)

	for {
		rs.generation++
		if err := e.sweep(ctx, rs); err != nil {
			return nil, err
		}

		if rs.generated[rs.flow.Target] {
			e.logger.Info("target produced, run finished",
				"run_id", rs.runID,
				"target", rs.flow.Target,
				"generation", rs.generation,
			)
			break
		}
		if len(rs.generated) == 0 {
			e.logger.Info("no new data generated, run finished",
				"run_id", rs.runID,
				"generation", rs.generation,
			)
			break
		}

		rs.active = rs.generated
		rs.generated = make(map[string]bool)
	}

	instance.DataSet = rs.working.CopyWithout(rs.flow.Transients)
	rs.response.Generations = rs.generation
	return rs.response, nil
}

// sweep performs one generation: every level in order, every builder in
// declaration order.
func (e *Executor) sweep(ctx context.Context, rs *runState) error {
	for _, level := range rs.flow.Graph.Levels {
		for _, meta := range level {
			if rs.fired[meta.Name] {
				continue
			}
			// Untriggered: none of its inputs changed.
			if !meta.ConsumesAny(rs.active) {
				continue
			}

			builder, err := e.factory.Create(meta.Name)
			if err == nil && builder == nil {
				err = fmt.Errorf("factory returned nil builder")
			}
			if err != nil {
				e.logger.Error("builder resolution failed",
					"run_id", rs.runID,
					"builder", meta.Name,
					"error", err,
				)
				return newNotFoundError(rs.runID, meta.Name, err, rs.snapshot())
			}

			// The graph meta decides triggering; readiness follows the
			// inputs the resolved builder itself declares. Levels are
			// topologically sorted: if this builder is not ready, the rest of
			// the level is assumed not ready either.
			consumes := builder.Meta().Consumes
			if !rs.working.ContainsAll(consumes) {
				e.logger.Debug("builder not ready, skipping rest of level",
					"run_id", rs.runID,
					"builder", meta.Name,
					"missing", rs.working.Missing(consumes),
				)
				break
			}

			if err := e.execute(ctx, rs, meta, builder); err != nil {
				return err
			}
		}
	}
	return nil
}

// execute invokes one builder and folds its output into the run.
func (e *Executor) execute(ctx context.Context, rs *runState, meta ir.DataBuilderMeta, builder Builder) error {
	e.notifyBefore(ctx, rs.event(meta))

	bctx := NewBuilderContext(ctx, rs.runID, meta, rs.working)
	result, err := invoke(builder, bctx)
	if err != nil {
		e.logger.Error("error running builder",
			"run_id", rs.runID,
			"builder", meta.Name,
			"generation", rs.generation,
			"error", err,
		)
		// Built before listeners run so nothing they do reaches the payload.
		failure := newBuilderFailure(rs.runID, meta.Name, err, rs.snapshot())
		e.notifyException(ctx, rs.event(meta), err)
		return failure
	}

	if result != nil {
		rs.working.Merge(*result)
		rs.response.Responses[meta.Name] = *result
		rs.active[result.Key] = true
		if !rs.flow.IsTransient(result.Key) {
			rs.generated[result.Key] = true
		}
	}
	rs.fired[meta.Name] = true

	e.logger.Debug("ran builder",
		"run_id", rs.runID,
		"builder", meta.Name,
		"generation", rs.generation,
		"produced", result != nil,
	)

	e.notifyAfter(ctx, rs.event(meta), result)
	return nil
}

// invoke calls Process, converting panics and invalid output into errors.
func invoke(builder Builder, bctx *BuilderContext) (result *ir.Data, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("builder panicked: %v", r)
		}
	}()

	result, err = builder.Process(bctx)
	if err != nil {
		return nil, err
	}
	if result != nil {
		if verr := result.Validate(); verr != nil {
			return nil, fmt.Errorf("invalid builder output: %w", verr)
		}
	}
	return result, nil
}

// event builds the listener view of the current builder.
func (rs *runState) event(meta ir.DataBuilderMeta) ExecutionEvent {
	return ExecutionEvent{
		RunID:      rs.runID,
		Generation: rs.generation,
		Instance:   rs.instance,
		Builder:    meta,
		Delta:      rs.delta,
		Responses:  maps.Clone(rs.response.Responses),
	}
}

// snapshot copies the response accumulated so far.
func (rs *runState) snapshot() *ir.ExecutionResponse {
	return &ir.ExecutionResponse{
		RunID:       rs.runID,
		Generations: rs.generation,
		Responses:   maps.Clone(rs.response.Responses),
	}
}

func (e *Executor) notifyBefore(ctx context.Context, ev ExecutionEvent) {
	for _, l := range e.listeners {
		e.safeNotify("before_execute", ev, func() error { return l.BeforeExecute(ctx, ev) })
	}
}

func (e *Executor) notifyAfter(ctx context.Context, ev ExecutionEvent, result *ir.Data) {
	for _, l := range e.listeners {
		e.safeNotify("after_execute", ev, func() error { return l.AfterExecute(ctx, ev, result) })
	}
}

func (e *Executor) notifyException(ctx context.Context, ev ExecutionEvent, cause error) {
	for _, l := range e.listeners {
		e.safeNotify("after_exception", ev, func() error { return l.AfterException(ctx, ev, cause) })
	}
}

// safeNotify runs one listener hook; errors and panics are logged and swallowed.
func (e *Executor) safeNotify(hook string, ev ExecutionEvent, call func() error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("execution listener panicked",
				"hook", hook,
				"run_id", ev.RunID,
				"builder", ev.Builder.Name,
				"panic", r,
			)
		}
	}()

	if err := call(); err != nil {
		e.logger.Error("execution listener failed",
			"hook", hook,
			"run_id", ev.RunID,
			"builder", ev.Builder.Name,
			"error", err,
		)
	}
}
