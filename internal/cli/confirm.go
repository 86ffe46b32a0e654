package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"github.com/roach88/beatspine/internal/reconcile"
)

// promptConfirmer asks on the terminal whether to sync over conflicts.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

// Confirm implements reconcile.Confirmer. Interrupting the prompt counts
// as declining.
func (p *promptConfirmer) Confirm(ctx context.Context, conflicts reconcile.ConflictReport) (bool, error) {
	fmt.Fprintln(p.out, styles.Box.Render(renderConflicts(conflicts)))

	proceed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Sync anyway?").
			Description("Managed items will be changed; the entries above are left in place.").
			Affirmative("Sync").
			Negative("Abort").
			Value(&proceed),
	)).WithInput(p.in).WithOutput(p.out)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return proceed, nil
}

// confirmerFor picks the conflict gate for a sync: none when forced,
// automatic approval with --yes, otherwise a prompt.
func confirmerFor(opts *SyncOptions, in io.Reader, out io.Writer) reconcile.Confirmer {
	switch {
	case opts.Force:
		return nil
	case opts.Yes:
		return reconcile.ConfirmFunc(func(context.Context, reconcile.ConflictReport) (bool, error) {
			return true, nil
		})
	case opts.NoPrompt:
		return nil
	default:
		return &promptConfirmer{in: in, out: out}
	}
}
