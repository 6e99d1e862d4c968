package harness

// Trace event types. Builder events reuse ir.BuilderEventType values.
const (
	TraceRun = "run"
)

// TraceEvent is one entry of a scenario trace: either a run record or
// one builder notification inside that run.
type TraceEvent struct {
	Type       string `json:"type"` // "run", "before", "after" or "exception"
	Seq        int64  `json:"seq"`  // run seq from the store's logical clock
	RunID      string `json:"run_id"`
	Status     string `json:"status,omitempty"`     // run events only
	ErrorCode  string `json:"error_code,omitempty"` // failed run events only
	Generation int    `json:"generation,omitempty"`
	Builder    string `json:"builder,omitempty"`
	DataKey    string `json:"data_key,omitempty"`
	Message    string `json:"message,omitempty"`
}

// StepResult is the observed outcome of one step.
type StepResult struct {
	RunID       string   `json:"run_id,omitempty"`
	Builders    []string `json:"builders"`
	Generations int      `json:"generations"`
	ErrorCode   string   `json:"error_code,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Steps holds one entry per scenario step.
	Steps []StepResult `json:"steps"`

	// Trace contains every recorded run and its builder events, in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// DataSet is the instance's final stored DataSet as plain values.
	DataSet map[string]any `json:"dataset"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Steps:   []StepResult{},
		Trace:   []TraceEvent{},
		Errors:  []string{},
		DataSet: make(map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
