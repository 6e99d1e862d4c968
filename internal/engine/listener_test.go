package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

func TestEventRecorder_RecordsRunsSeparately(t *testing.T) {
	rec := NewEventRecorder()
	exec := newTestExecutor(chainBuilders(), WithListener(rec), WithRunIDGenerator(NewFixedGenerator("run-1", "run-2")))
	flow := chainFlow()

	_, err := exec.Run(context.Background(), ir.NewFlowInstance("i-1", flow), deltaOf("A", "v"))
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), ir.NewFlowInstance("i-2", flow), deltaOf("A", "w"))
	require.NoError(t, err)

	assert.Len(t, rec.Events(), 8)

	first := rec.EventsFor("run-1")
	assert.Equal(t, []ir.BuilderEvent{
		{RunID: "run-1", Generation: 1, Builder: "B1", Type: ir.EventBefore},
		{RunID: "run-1", Generation: 1, Builder: "B1", Type: ir.EventAfter, DataKey: "X"},
		{RunID: "run-1", Generation: 1, Builder: "B2", Type: ir.EventBefore},
		{RunID: "run-1", Generation: 1, Builder: "B2", Type: ir.EventAfter, DataKey: "Y"},
	}, first)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestEventRecorder_NilOutputHasNoKey(t *testing.T) {
	rec := NewEventRecorder()
	ev := ExecutionEvent{RunID: "r", Generation: 1, Builder: meta("B1", "X", "A")}

	require.NoError(t, rec.AfterExecute(context.Background(), ev, nil))
	require.NoError(t, rec.AfterException(context.Background(), ev, errors.New("bad")))

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Empty(t, events[0].DataKey)
	assert.Equal(t, "bad", events[1].Message)
}

func TestLoggingListener_WritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	exec := newTestExecutor(chainBuilders(), WithListener(LoggingListener{Logger: logger}))
	_, err := exec.Run(context.Background(), ir.NewFlowInstance("i-1", chainFlow()), deltaOf("A", "v"))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "builder starting")
	assert.Contains(t, out, "builder=B2")
	assert.Contains(t, out, "produced=Y")
}

func TestListenerFuncs_NilHooksAreNoOps(t *testing.T) {
	var l ListenerFuncs
	ctx := context.Background()

	assert.NoError(t, l.BeforeExecute(ctx, ExecutionEvent{}))
	assert.NoError(t, l.AfterExecute(ctx, ExecutionEvent{}, nil))
	assert.NoError(t, l.AfterException(ctx, ExecutionEvent{}, errors.New("x")))
}
