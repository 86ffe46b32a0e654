package harness

import (
	"github.com/roach88/beatspine/internal/assemble"
	"github.com/roach88/beatspine/internal/compiler"
	"github.com/roach88/beatspine/internal/reconcile"
	"github.com/roach88/beatspine/internal/testutil"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every run expectation and assertion held.
	Pass bool

	// Errors contains one message per failed expectation or assertion.
	Errors []string

	Config *compiler.Config

	// Build is nil when assembly failed; BuildError then holds the cause
	// and no runs are executed.
	Build      *assemble.Result
	BuildError error

	Runs []RunResult

	// Host is the host the runs were executed against.
	Host *testutil.FakeHost

	// TimelineStart is the start frame of timelines created on Host.
	TimelineStart int64
}

// RunResult is the outcome of one reconciliation run.
type RunResult struct {
	Report *reconcile.Report
	Err    error
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
