package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/reconcile"
	"github.com/roach88/beatspine/internal/store"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Config  string
	HostDB  string
	Output  string // target project file
	Timeout time.Duration

	Dialer  host.Dialer
	Builder *Builder
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Assemble the project and show where every photo lands",
		Long: `Assemble the project without touching any host: generate the beat
grid, cluster and place the photos, and list the result.

With --host-db the planned changes against that host are shown as well,
exactly as "sync --dry-run" would report them. With --output the
assembled target project is written as canonical JSON.

Examples:
  beatspine plan
  beatspine plan --config trip.cue --host-db ./host.db
  beatspine plan -o target.json --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", DefaultConfigPath, "project configuration (CUE)")
	cmd.Flags().StringVar(&opts.HostDB, "host-db", "", "timeline host database to diff against")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the target project to this file")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", host.DefaultTimeout, "bound on every host call (negative disables)")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	log := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := cmdContext(cmd)

	builder := opts.Builder
	if builder == nil {
		builder = &Builder{}
	}
	builder.Logger = log
	build, err := builder.Run(ctx, opts.Config)
	if err != nil {
		return fail(formatter, "build failed", err)
	}

	if opts.Output != "" {
		if err := writeTarget(build.Result.Project, opts.Output); err != nil {
			return fail(formatter, "writing output file", err)
		}
		formatter.VerboseLog("Wrote target project to %s", opts.Output)
	}

	result := planResult(build)

	dialer := opts.Dialer
	if dialer == nil && opts.HostDB != "" {
		dialer = store.Dialer(opts.HostDB)
	}
	if dialer != nil {
		rep, err := reconcile.Reconcile(ctx, build.Result.Project, build.Config.Timeline, dialer, reconcile.Options{
			DryRun:  true,
			Timeout: opts.Timeout,
			Logger:  log,
		})
		if err != nil {
			return fail(formatter, "planning sync failed", err)
		}
		result.Sync = rep
	}

	return formatter.Success(result)
}

func planResult(b *Build) *PlanResult {
	res := b.Result
	out := &PlanResult{
		Project:    res.Project.Name,
		Timeline:   b.Config.Timeline,
		Beats:      res.Grid.Len(),
		Effective:  res.Grid.EffectiveCount(),
		Photos:     len(res.Project.Placements),
		Excluded:   res.Excluded,
		Clusters:   len(res.Clusters),
		Digest:     res.Project.Digest,
		Placements: make([]PlacementRow, 0, len(res.Project.Placements)),
		Rejections: res.Rejections,
		Unmatched:  res.UnmatchedPins,
	}
	for _, p := range res.Project.Placements {
		out.Placements = append(out.Placements, PlacementRow{
			Item:    p.ItemID,
			Beat:    p.Slot + 1,
			Pinned:  p.Pinned,
			Cluster: p.ClusterID,
		})
	}
	return out
}

// writeTarget writes the project as canonical JSON.
func writeTarget(p *ir.TargetProject, path string) error {
	data, err := ir.MarshalCanonical(targetValue(p))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// targetValue is the canonical form of a target project. Timestamps are
// not part of it; placements are listed by item and beat.
func targetValue(p *ir.TargetProject) ir.Object {
	elems := make(ir.List, len(p.Elements))
	for i, e := range p.Elements {
		elems[i] = ir.Object{
			"uid":            ir.Str(e.UID),
			"name":           ir.Str(e.Name),
			"mediaPath":      ir.Str(e.MediaPath),
			"kind":           ir.Str(string(e.Kind)),
			"slot":           ir.Int(int64(e.Slot)),
			"startFrame":     ir.Int(e.StartFrame),
			"durationFrames": ir.Int(e.DurationFrames),
		}
	}
	markers := make(ir.List, len(p.Markers))
	for i, m := range p.Markers {
		markers[i] = ir.Object{
			"beat":  ir.Int(int64(m.Beat)),
			"frame": ir.Int(m.Frame),
			"label": ir.Str(m.Label),
			"note":  ir.Str(m.Note),
		}
	}
	placements := make(ir.List, len(p.Placements))
	for i, pl := range p.Placements {
		placements[i] = ir.Object{
			"item":   ir.Str(pl.ItemID),
			"beat":   ir.Int(int64(pl.Slot + 1)),
			"pinned": ir.Bool(pl.Pinned),
		}
	}
	return ir.Object{
		"name":            ir.Str(p.Name),
		"frameRate":       ir.Int(int64(p.FrameRate)),
		"durationFrames":  ir.Int(p.DurationFrames),
		"audioDurationMs": ir.Int(p.AudioDurationMs),
		"placeholderMode": ir.Str(string(p.PlaceholderMode)),
		"digest":          ir.Str(p.Digest),
		"elements":        elems,
		"markers":         markers,
		"placements":      placements,
	}
}
