package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/reconcile"
	"github.com/roach88/beatspine/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Config  string
	HostDB  string
	Timeout time.Duration

	Dialer  host.Dialer
	Builder *Builder
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the host timeline matches the project",
		Long: `Read the sync state persisted on the host timeline and compare its
fingerprint with a fresh assembly of the project. Nothing is changed.

Examples:
  beatspine status --host-db ./host.db
  beatspine status --config trip.cue --host-db ./host.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", DefaultConfigPath, "project configuration (CUE)")
	cmd.Flags().StringVar(&opts.HostDB, "host-db", "", "path to the timeline host database (required)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", host.DefaultTimeout, "bound on every host call (negative disables)")
	_ = cmd.MarkFlagRequired("host-db")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
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

	dialer := opts.Dialer
	if dialer == nil {
		dialer = store.Dialer(opts.HostDB)
	}
	h, err := dialer.Dial(ctx)
	if err != nil {
		return fail(formatter, "connecting to host", &reconcile.Error{
			Code:    reconcile.ErrCodeHostUnavailable,
			Op:      "connect",
			Message: "host cannot be reached",
			Err:     err,
		})
	}
	if c, ok := h.(io.Closer); ok {
		defer c.Close()
	}
	if opts.Timeout >= 0 {
		h = host.WithTimeout(h, opts.Timeout)
	}

	result := &StatusResult{
		Project:      build.Config.Name,
		Timeline:     build.Config.Timeline,
		TargetDigest: build.Result.Project.Digest,
	}
	if err := readStatus(ctx, h, result); err != nil {
		return fail(formatter, "reading host state", err)
	}
	return formatter.Success(result)
}

// readStatus fills the host-side fields of r. Missing projects and
// timelines are reported in r, not as errors.
func readStatus(ctx context.Context, h host.Host, r *StatusResult) error {
	p, err := h.FindProject(ctx, r.Project)
	if errors.Is(err, host.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	r.ProjectExists = true

	tl, err := h.FindTimeline(ctx, p, r.Timeline)
	if errors.Is(err, host.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	r.TimelineExists = true

	raw, err := h.Metadata(ctx, tl, reconcile.KeySyncState)
	if err != nil {
		return err
	}
	state, err := reconcile.DecodeSyncState(raw)
	if errors.Is(err, reconcile.ErrStateModified) {
		r.StateModified = true
	} else if err != nil {
		return err
	}
	if state != nil {
		r.Synced = true
		r.PersistedDigest = state.TargetDigest
		r.ManagedItems = len(state.ManagedUIDs)
		r.UpToDate = state.TargetDigest != "" && state.TargetDigest == r.TargetDigest
	}

	rawLock, err := h.Metadata(ctx, tl, reconcile.KeySyncLock)
	if err != nil {
		return err
	}
	if lock, ok := reconcile.DecodeLock(rawLock); ok {
		r.Lock = &lock
	}
	return nil
}
