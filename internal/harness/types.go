package harness

import "github.com/roach88/offcache/internal/remote"

// TraceEvent records one step and what it returned.
type TraceEvent struct {
	Seq        int64  `json:"seq"`
	Op         string `json:"op"`
	Collection string `json:"collection,omitempty"`
	ID         string `json:"id,omitempty"`

	// Error is the error code of a failed step.
	Error string `json:"error,omitempty"`

	// IDs are the ids a find or pending returned, or the collections a
	// sync_all passed over.
	IDs []string `json:"ids,omitempty"`

	// Pass, Commit, and Cancel describe a sync pass.
	Pass   string   `json:"pass,omitempty"`
	Commit []string `json:"commit,omitempty"`
	Cancel []string `json:"cancel,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, plus one per pass of a sync_all.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// RemoteCalls are the pushes the remote received, in order.
	RemoteCalls []remote.Call `json:"remote_calls"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Errors:      []string{},
		RemoteCalls: []remote.Call{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
