package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/reconcile"
	"github.com/roach88/beatspine/internal/store"
)

// DefaultConfigPath is the configuration read when --config is not given.
const DefaultConfigPath = "beatspine.cue"

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Config   string
	HostDB   string
	Force    bool
	DryRun   bool
	Recreate bool
	Yes      bool
	NoPrompt bool
	Timeout  time.Duration

	// Dialer overrides the SQLite host opened from HostDB (for testing).
	Dialer host.Dialer

	// Builder overrides the load pipeline (for testing).
	Builder *Builder
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the host timeline in line with the project",
		Long: `Assemble the project and apply the minimal set of changes to the host
timeline: add missing photos, remove dropped ones, move drifted ones and
refresh the beat markers. Items and markers added by hand are conflicts;
sync asks before touching a timeline that has them.

Exit codes:
  0 - Applied, already up to date, or dry run
  1 - Partial, blocked, aborted or locked by another session
  2 - Command error (bad config, host unavailable, etc.)

Examples:
  beatspine sync --host-db ./host.db
  beatspine sync --config trip.cue --host-db ./host.db --dry-run
  beatspine sync --host-db ./host.db --force`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", DefaultConfigPath, "project configuration (CUE)")
	cmd.Flags().StringVar(&opts.HostDB, "host-db", "", "path to the timeline host database (required)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "apply despite conflicts and override a live session lock")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report planned changes without touching the host")
	cmd.Flags().BoolVar(&opts.Recreate, "recreate", false, "delete and recreate the project")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "proceed over conflicts without asking")
	cmd.Flags().BoolVar(&opts.NoPrompt, "no-prompt", false, "never ask; conflicts block the sync")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", host.DefaultTimeout, "bound on every host call (negative disables)")
	_ = cmd.MarkFlagRequired("host-db")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	log := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := opts.Builder
	if builder == nil {
		builder = &Builder{RequireFiles: true}
	}
	builder.Logger = log
	build, err := builder.Run(ctx, opts.Config)
	if err != nil {
		return fail(formatter, "build failed", err)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = store.Dialer(opts.HostDB)
	}
	formatter.VerboseLog("Syncing %s into %s", build.Config.Name, opts.HostDB)

	rep, err := reconcile.Reconcile(ctx, build.Result.Project, build.Config.Timeline, dialer, reconcile.Options{
		Force:     opts.Force,
		DryRun:    opts.DryRun,
		Recreate:  opts.Recreate,
		Confirmer: confirmerFor(opts, cmd.InOrStdin(), cmd.ErrOrStderr()),
		Timeout:   opts.Timeout,
		Logger:    log,
	})
	if err != nil {
		return fail(formatter, "sync failed", err)
	}
	return reportOutcome(formatter, rep)
}

// reportOutcome writes rep and maps its outcome to an exit code.
func reportOutcome(f *OutputFormatter, rep *reconcile.Report) error {
	var msg string
	switch rep.Outcome {
	case reconcile.OutcomePartial:
		msg = fmt.Sprintf("sync incomplete: %d failed, %d skipped, %d marker failures",
			len(rep.Failed), len(rep.Skipped), rep.Markers.Failed)
	case reconcile.OutcomeBlocked:
		msg = fmt.Sprintf("sync blocked by %d conflicts: rerun with --force or --yes", rep.Conflicts.Len())
	case reconcile.OutcomeAborted:
		msg = "sync aborted"
	default:
		return f.Success(SyncResult{rep})
	}
	if err := f.Partial(string(rep.Outcome), msg, SyncResult{rep}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

// cmdContext returns the command's context, or Background when it was
// executed without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
