package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/dataflow/internal/ir"
)

// ExecutionEvent describes the builder a listener is being notified about.
type ExecutionEvent struct {
	RunID      string
	Generation int
	Instance   *ir.FlowInstance
	Builder    ir.DataBuilderMeta
	Delta      ir.Delta

	// Responses is a snapshot of the outputs produced so far in this run.
	Responses map[string]ir.Data
}

// ExecutionListener observes builder execution.
//
// Listeners are side-effect only. A returned error or a panic is logged at
// the call site and swallowed: observers can never change the outcome of the
// run they observe. Listeners are invoked in registration order.
type ExecutionListener interface {
	BeforeExecute(ctx context.Context, ev ExecutionEvent) error
	AfterExecute(ctx context.Context, ev ExecutionEvent, result *ir.Data) error
	AfterException(ctx context.Context, ev ExecutionEvent, err error) error
}

// ListenerFuncs adapts optional functions to ExecutionListener.
// Nil fields are no-ops.
type ListenerFuncs struct {
	Before    func(ctx context.Context, ev ExecutionEvent) error
	After     func(ctx context.Context, ev ExecutionEvent, result *ir.Data) error
	Exception func(ctx context.Context, ev ExecutionEvent, err error) error
}

// BeforeExecute implements ExecutionListener.
func (l ListenerFuncs) BeforeExecute(ctx context.Context, ev ExecutionEvent) error {
	if l.Before == nil {
		return nil
	}
	return l.Before(ctx, ev)
}

// AfterExecute implements ExecutionListener.
func (l ListenerFuncs) AfterExecute(ctx context.Context, ev ExecutionEvent, result *ir.Data) error {
	if l.After == nil {
		return nil
	}
	return l.After(ctx, ev, result)
}

// AfterException implements ExecutionListener.
func (l ListenerFuncs) AfterException(ctx context.Context, ev ExecutionEvent, err error) error {
	if l.Exception == nil {
		return nil
	}
	return l.Exception(ctx, ev, err)
}

// LoggingListener logs every notification at debug level (errors at warn).
type LoggingListener struct {
	Logger *slog.Logger
}

func (l LoggingListener) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// BeforeExecute implements ExecutionListener.
func (l LoggingListener) BeforeExecute(ctx context.Context, ev ExecutionEvent) error {
	l.logger().DebugContext(ctx, "builder starting",
		"run_id", ev.RunID,
		"generation", ev.Generation,
		"builder", ev.Builder.Name,
	)
	return nil
}

// AfterExecute implements ExecutionListener.
func (l LoggingListener) AfterExecute(ctx context.Context, ev ExecutionEvent, result *ir.Data) error {
	key := ""
	if result != nil {
		key = result.Key
	}
	l.logger().DebugContext(ctx, "builder finished",
		"run_id", ev.RunID,
		"generation", ev.Generation,
		"builder", ev.Builder.Name,
		"produced", key,
	)
	return nil
}

// AfterException implements ExecutionListener.
func (l LoggingListener) AfterException(ctx context.Context, ev ExecutionEvent, err error) error {
	l.logger().WarnContext(ctx, "builder failed",
		"run_id", ev.RunID,
		"generation", ev.Generation,
		"builder", ev.Builder.Name,
		"error", err,
	)
	return nil
}

// EventRecorder buffers every notification as an ir.BuilderEvent, for run
// history and golden traces.
//
// Thread-safety: EventRecorder is safe for concurrent use.
type EventRecorder struct {
	mu     sync.Mutex
	events []ir.BuilderEvent
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) record(ev ir.BuilderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// BeforeExecute implements ExecutionListener.
func (r *EventRecorder) BeforeExecute(_ context.Context, ev ExecutionEvent) error {
	r.record(ir.BuilderEvent{
		RunID:      ev.RunID,
		Generation: ev.Generation,
		Builder:    ev.Builder.Name,
		Type:       ir.EventBefore,
	})
	return nil
}

// AfterExecute implements ExecutionListener.
func (r *EventRecorder) AfterExecute(_ context.Context, ev ExecutionEvent, result *ir.Data) error {
	out := ir.BuilderEvent{
		RunID:      ev.RunID,
		Generation: ev.Generation,
		Builder:    ev.Builder.Name,
		Type:       ir.EventAfter,
	}
	if result != nil {
		out.DataKey = result.Key
	}
	r.record(out)
	return nil
}

// AfterException implements ExecutionListener.
func (r *EventRecorder) AfterException(_ context.Context, ev ExecutionEvent, err error) error {
	r.record(ir.BuilderEvent{
		RunID:      ev.RunID,
		Generation: ev.Generation,
		Builder:    ev.Builder.Name,
		Type:       ir.EventException,
		Message:    err.Error(),
	})
	return nil
}

// Events returns a copy of the recorded events, in order.
func (r *EventRecorder) Events() []ir.BuilderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.BuilderEvent, len(r.events))
	copy(out, r.events)
	return out
}

// EventsFor returns the recorded events of one run.
func (r *EventRecorder) EventsFor(runID string) []ir.BuilderEvent {
	var out []ir.BuilderEvent
	for _, ev := range r.Events() {
		if ev.RunID == runID {
			out = append(out, ev)
		}
	}
	return out
}

// Reset discards all recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
