package reconcile

import (
	"context"

	"github.com/roach88/beatspine/internal/host"
	"github.com/roach88/beatspine/internal/ir"
)

// Reconcile drives the host towards target in one session: connect,
// resolve, plan, then apply and persist unless the run is a dry run, is
// blocked by conflicts or finds nothing to do.
//
// The returned report is non-nil whenever a session was started, including
// on error, so callers can show how far it got.
func Reconcile(ctx context.Context, target *ir.TargetProject, timeline string, dialer host.Dialer, opts Options) (*Report, error) {
	s := NewSession(dialer, opts)
	rep, err := s.run(ctx, target, timeline)
	if cerr := s.Close(); cerr != nil {
		s.log.Debug("closing host failed", "error", cerr)
	}
	if err != nil {
		rep.Outcome = OutcomeFailed
	}
	return rep, err
}

func (s *Session) run(ctx context.Context, target *ir.TargetProject, timeline string) (*Report, error) {
	rep := s.report
	if err := s.Connect(ctx); err != nil {
		return rep, err
	}
	if err := s.ResolveProject(ctx, target.Name, s.opts.Recreate); err != nil {
		return rep, err
	}
	if err := s.ResolveTimeline(ctx, timeline); err != nil {
		return rep, err
	}
	if _, err := s.Plan(ctx, target); err != nil {
		return rep, err
	}

	if !s.conflicts.Empty() && !s.opts.Force {
		if s.opts.DryRun {
			rep.ForceRequired = true
			return s.ReportDryRun()
		}
		if s.opts.Confirmer == nil {
			s.log.Warn("conflicts found, not applying without force", "conflicts", s.conflicts.Len())
			rep.Outcome = OutcomeBlocked
			return rep, nil
		}
		ok, err := s.opts.Confirmer.Confirm(ctx, s.conflicts)
		if err != nil {
			return rep, err
		}
		if !ok {
			s.log.Info("operator declined to proceed")
			rep.Outcome = OutcomeAborted
			return rep, nil
		}
	}

	if s.opts.DryRun {
		return s.ReportDryRun()
	}
	if s.UpToDate() {
		s.log.Info("timeline is up to date")
		rep.State = s.snapshot.State
		rep.Outcome = OutcomeUpToDate
		return rep, nil
	}

	if err := s.Apply(ctx); err != nil {
		return rep, err
	}
	if err := s.Persist(ctx); err != nil {
		if s.locked {
			s.releaseLock(context.WithoutCancel(ctx))
		}
		return rep, err
	}
	rep.Outcome = OutcomeApplied
	if !rep.clean() {
		rep.Outcome = OutcomePartial
	}
	return rep, nil
}
