package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/beatspine/internal/placement"
	"github.com/roach88/beatspine/internal/reconcile"
)

var (
	colorAccent  = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6C7A89")
)

var styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Label:   lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	Success: lipgloss.NewStyle().Foreground(colorAccent),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Foreground(colorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorWarning).
		Padding(0, 1),
}

const (
	markOK   = "\u2713"
	markFail = "\u2717"
	markWarn = "!"
)

func field(b *strings.Builder, label string, value any) {
	fmt.Fprintf(b, "%s %v\n", styles.Label.Render(label+":"), value)
}

// PlacementRow is one placed photo in a plan.
type PlacementRow struct {
	Item    string `json:"item"`
	Beat    int    `json:"beat"` // 1-based
	Pinned  bool   `json:"pinned"`
	Cluster int    `json:"cluster"`
}

// PlanResult describes an assembled project and, when a host was given,
// the changes a sync would make.
type PlanResult struct {
	Project    string                   `json:"project"`
	Timeline   string                   `json:"timeline"`
	Beats      int                      `json:"beats"`
	Effective  int                      `json:"effectiveBeats"`
	Photos     int                      `json:"photos"`
	Excluded   int                      `json:"excluded"`
	Clusters   int                      `json:"clusters"`
	Digest     string                   `json:"digest"`
	Placements []PlacementRow           `json:"placements"`
	Rejections []placement.PinRejection `json:"rejections,omitempty"`
	Unmatched  []string                 `json:"unmatchedPins,omitempty"`
	Sync       *reconcile.Report        `json:"sync,omitempty"`
}

func (r *PlanResult) renderText() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Plan for "+r.Project) + "\n")
	field(&b, "Timeline", r.Timeline)
	field(&b, "Beats", fmt.Sprintf("%d (%d usable)", r.Beats, r.Effective))
	field(&b, "Photos", fmt.Sprintf("%d in %d clusters, %d outside the date window", r.Photos, r.Clusters, r.Excluded))
	field(&b, "Digest", styles.Muted.Render(r.Digest))

	if len(r.Placements) > 0 {
		b.WriteString("\n")
		for _, p := range r.Placements {
			pin := ""
			if p.Pinned {
				pin = styles.Warning.Render(" (pinned)")
			}
			fmt.Fprintf(&b, "  %4d  %s%s\n", p.Beat, filepath.Base(p.Item), pin)
		}
	}
	for _, rej := range r.Rejections {
		fmt.Fprintf(&b, "%s %s\n", styles.Warning.Render(markWarn), rej.String())
	}
	for _, id := range r.Unmatched {
		fmt.Fprintf(&b, "%s pin %s matches no photo\n", styles.Warning.Render(markWarn), id)
	}
	if r.Sync != nil {
		b.WriteString("\n")
		b.WriteString(renderReport(r.Sync))
	}
	return strings.TrimRight(b.String(), "\n")
}

// SyncResult wraps a reconciliation report for output.
type SyncResult struct {
	*reconcile.Report
}

func (r SyncResult) renderText() string {
	return strings.TrimRight(renderReport(r.Report), "\n")
}

func outcomeStyle(o reconcile.Outcome) lipgloss.Style {
	switch o {
	case reconcile.OutcomeApplied, reconcile.OutcomeUpToDate, reconcile.OutcomeDryRun:
		return styles.Success
	case reconcile.OutcomePartial, reconcile.OutcomeAborted:
		return styles.Warning
	default:
		return styles.Error
	}
}

func renderReport(rep *reconcile.Report) string {
	var b strings.Builder
	b.WriteString(styles.Title.Render(fmt.Sprintf("Sync %s / %s", rep.Project, rep.Timeline)) + "\n")
	field(&b, "Outcome", outcomeStyle(rep.Outcome).Render(string(rep.Outcome)))
	switch {
	case rep.ProjectRecreated:
		field(&b, "Project", "recreated")
	case rep.ProjectCreated:
		field(&b, "Project", "created")
	}
	if rep.TimelineCreated {
		field(&b, "Timeline", "created")
	}

	c := rep.Changes
	if rep.Outcome == reconcile.OutcomeDryRun {
		field(&b, "Planned", fmt.Sprintf("%d to add, %d to remove, %d to move, %d marker changes, %d settings",
			len(c.Additions), len(c.Removals), len(c.Updates), c.Markers.Len(), len(c.Settings)))
		if rep.ForceRequired {
			b.WriteString(styles.Warning.Render("conflicts found: sync needs --force or confirmation") + "\n")
		}
	} else if len(rep.Added)+len(rep.Removed)+len(rep.Updated)+len(rep.Failed)+len(rep.Skipped) > 0 ||
		rep.Markers != (reconcile.MarkerStats{}) {
		field(&b, "Items", fmt.Sprintf("%d added, %d removed, %d moved, %d skipped, %d failed",
			len(rep.Added), len(rep.Removed), len(rep.Updated), len(rep.Skipped), len(rep.Failed)))
		field(&b, "Markers", fmt.Sprintf("%d added, %d removed, %d updated, %d failed",
			rep.Markers.Added, rep.Markers.Removed, rep.Markers.Updated, rep.Markers.Failed))
	}
	if len(rep.SettingsWritten) > 0 {
		field(&b, "Settings", strings.Join(rep.SettingsWritten, ", "))
	}

	for _, is := range rep.Skipped {
		fmt.Fprintf(&b, "%s skipped %s %s: %s\n", styles.Warning.Render(markWarn), is.Op, is.Name, is.Reason)
	}
	for _, is := range rep.Failed {
		fmt.Fprintf(&b, "%s failed %s %s: %s\n", styles.Error.Render(markFail), is.Op, is.Name, is.Reason)
	}
	if !rep.Conflicts.Empty() {
		b.WriteString(styles.Box.Render(renderConflicts(rep.Conflicts)) + "\n")
	}
	if rep.Lock != nil {
		field(&b, "Locked by", fmt.Sprintf("%s since %s", rep.Lock.Token, rep.Lock.AcquiredAt.Format("2006-01-02 15:04:05")))
	}
	return b.String()
}

func renderConflicts(c reconcile.ConflictReport) string {
	var b strings.Builder
	b.WriteString(styles.Warning.Render(fmt.Sprintf("%d conflicts on the timeline", c.Len())))
	for _, it := range c.Items {
		fmt.Fprintf(&b, "\n  unmanaged item %q on %s %d at frame %d", it.Name, it.Track.Kind, it.Track.Index, it.Frame)
	}
	for _, m := range c.Markers {
		fmt.Fprintf(&b, "\n  manual marker %q at frame %d", m.Name, m.Frame)
	}
	return b.String()
}

// StatusResult describes the persisted state of a project's timeline.
type StatusResult struct {
	Project         string                `json:"project"`
	Timeline        string                `json:"timeline"`
	ProjectExists   bool                  `json:"projectExists"`
	TimelineExists  bool                  `json:"timelineExists"`
	Synced          bool                  `json:"synced"`
	UpToDate        bool                  `json:"upToDate"`
	TargetDigest    string                `json:"targetDigest,omitempty"`
	PersistedDigest string                `json:"persistedDigest,omitempty"`
	ManagedItems    int                   `json:"managedItems"`
	StateModified   bool                  `json:"stateModified,omitempty"`
	Lock            *reconcile.LockRecord `json:"lock,omitempty"`
}

func (r *StatusResult) renderText() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render(fmt.Sprintf("Status %s / %s", r.Project, r.Timeline)) + "\n")
	switch {
	case !r.ProjectExists:
		b.WriteString(styles.Warning.Render("project not found on host") + "\n")
	case !r.TimelineExists:
		b.WriteString(styles.Warning.Render("timeline not found on host") + "\n")
	case r.StateModified:
		b.WriteString(styles.Warning.Render("sync state was edited outside beatspine, run sync") + "\n")
	case !r.Synced:
		b.WriteString(styles.Warning.Render("timeline was never synced") + "\n")
	default:
		field(&b, "Managed items", r.ManagedItems)
		if r.UpToDate {
			fmt.Fprintf(&b, "%s %s\n", styles.Success.Render(markOK), "up to date")
		} else {
			fmt.Fprintf(&b, "%s %s\n", styles.Warning.Render(markWarn), "out of date, run sync")
		}
	}
	if r.Lock != nil {
		field(&b, "Locked by", fmt.Sprintf("%s since %s", r.Lock.Token, r.Lock.AcquiredAt.Format("2006-01-02 15:04:05")))
	}
	return strings.TrimRight(b.String(), "\n")
}
