package reconcile

import (
	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
)

// Outcome summarizes how a reconciliation ended.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomePartial  Outcome = "partial"
	OutcomeUpToDate Outcome = "up_to_date"
	OutcomeDryRun   Outcome = "dry_run"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeAborted  Outcome = "aborted"
	OutcomeFailed   Outcome = "failed"
)

// ItemIssue is a per-item operation that failed or was skipped.
type ItemIssue struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Op     string `json:"op"`
	Reason string `json:"reason"`

	// Item is set when a clip was left on the timeline without its tag.
	Item *host.Item `json:"item,omitempty"`
}

// MarkerStats counts beat-marker operations.
type MarkerStats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Report describes one reconciliation run.
type Report struct {
	Outcome      Outcome `json:"outcome"`
	Project      string  `json:"project"`
	Timeline     string  `json:"timeline"`
	SessionToken string  `json:"sessionToken"`

	ProjectCreated   bool `json:"projectCreated"`
	ProjectRecreated bool `json:"projectRecreated"`
	TimelineCreated  bool `json:"timelineCreated"`
	FullCreate       bool `json:"fullCreate"`

	Changes   ChangeSet      `json:"changes"`
	Conflicts ConflictReport `json:"conflicts"`

	// ForceRequired is set on a dry run that would be blocked by conflicts.
	ForceRequired bool `json:"forceRequired,omitempty"`

	// Lock is the lock record found on the timeline, if any.
	Lock *LockRecord `json:"lock,omitempty"`

	Added           []string      `json:"added"`
	Removed         []string      `json:"removed"`
	Updated         []string      `json:"updated"`
	Skipped         []ItemIssue   `json:"skipped"`
	Failed          []ItemIssue   `json:"failed"`
	Markers         MarkerStats   `json:"markers"`
	SettingsWritten []string      `json:"settingsWritten"`
	State           *ir.SyncState `json:"state,omitempty"`
}

// clean reports whether every planned operation succeeded.
func (r *Report) clean() bool {
	return len(r.Failed) == 0 && len(r.Skipped) == 0 && r.Markers.Failed == 0
}
