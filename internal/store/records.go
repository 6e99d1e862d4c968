package store

import "github.com/roach88/dataflow/internal/ir"

// RunStatus is the outcome of a recorded run.
type RunStatus string

const (
	RunOK     RunStatus = "ok"
	RunFailed RunStatus = "failed"
)

// Instance is the stored state of one FlowInstance.
type Instance struct {
	ID          string
	FlowName    string
	DataSet     *ir.DataSet
	DataSetHash string // computed on write when empty
	Seq         int64  // seq of the last successful run (0 if none)
}

// Run is the record of one executor invocation.
//
// For failed runs the Error* fields describe the ExecutionError, Responses
// holds what completed before the failure, and DataSetHash is empty.
type Run struct {
	ID          string
	InstanceID  string
	Seq         int64
	Delta       ir.Delta
	DeltaHash   string // computed on write when empty
	Status      RunStatus
	Generations int
	Responses   map[string]ir.Data

	ErrorCode    string
	ErrorKind    string
	ErrorBuilder string
	ErrorMessage string
	ErrorPayload map[string]any

	// DataSetHash is the hash of the instance DataSet after this run.
	DataSetHash string
}
