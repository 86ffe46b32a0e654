package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/beatspine/internal/assemble"
	"github.com/roach88/beatspine/internal/compiler"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/reconcile"
	"github.com/roach88/beatspine/internal/source"
)

// stageError tags a pipeline failure with a CLI error code.
type stageError struct {
	Code string
	Err  error
}

func (e *stageError) Error() string { return e.Err.Error() }
func (e *stageError) Unwrap() error { return e.Err }

// Builder runs the load pipeline shared by plan, sync and status:
// configuration, manifest, UIDs, soundtrack duration, then assembly.
type Builder struct {
	// Durations reads the soundtrack length when no duration is configured.
	Durations source.DurationSource

	// RequireFiles skips manifest entries whose photo is missing.
	RequireFiles bool

	Logger *slog.Logger
}

// Build is the output of a successful pipeline run.
type Build struct {
	Config *compiler.Config
	Items  []ir.Item
	Result *assemble.Result
	Audio  assemble.Audio
}

// Run loads the configuration at configPath and assembles the project.
func (b *Builder) Run(ctx context.Context, configPath string) (*Build, error) {
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	durations := b.Durations
	if durations == nil {
		durations = source.FileDurations
	}

	cfg, err := compiler.Load(configPath)
	if err != nil {
		return nil, &stageError{Code: ErrCodeConfig, Err: err}
	}
	log.Debug("loaded config", "name", cfg.Name, "tempo", cfg.Tempo, "manifest", cfg.Manifest)

	manifest, err := source.LoadManifest(cfg.Manifest)
	if err != nil {
		return nil, &stageError{Code: ErrCodeManifest, Err: err}
	}
	src := &source.ManifestSource{Manifest: manifest, RequireFiles: b.RequireFiles, Logger: log}
	items, err := src.Items(ctx)
	if err != nil {
		return nil, &stageError{Code: ErrCodeManifest, Err: err}
	}

	uids := &source.UIDResolver{Method: cfg.IDMethod, Logger: log}
	if err := uids.Resolve(ctx, items); err != nil {
		return nil, err
	}

	audio, err := resolveAudio(ctx, cfg, manifest, durations, log)
	if err != nil {
		return nil, &stageError{Code: ErrCodeAudio, Err: err}
	}

	opts := cfg.AssembleOptions(audio)
	opts.UID = uids.UID
	opts.Logger = log
	res, err := assemble.BuildProject(items, opts)
	if err != nil {
		return nil, err
	}
	for _, r := range res.Rejections {
		log.Warn("pin rejected", "item", r.ItemID, "beat", r.RequestedSlot, "reason", r.Reason)
	}

	return &Build{Config: cfg, Items: items, Result: res, Audio: audio}, nil
}

// resolveAudio picks the soundtrack from the config, falling back to the
// manifest, and reads its duration from the file when neither states one.
func resolveAudio(ctx context.Context, cfg *compiler.Config, m *source.Manifest, durations source.DurationSource, log *slog.Logger) (assemble.Audio, error) {
	audio := assemble.Audio{Path: cfg.AudioPath, Duration: cfg.AudioDuration}
	if audio.Path == "" && m.Audio != nil && m.Audio.Path != "" {
		audio.Path = m.Resolve(m.Audio.Path)
		if audio.Duration == 0 {
			audio.Duration = m.Audio.Duration
		}
	}
	if audio.Path == "" {
		return audio, errors.New("no soundtrack configured: set audio.path in the config or the manifest")
	}

	if audio.Duration == 0 {
		d, err := durations.Duration(ctx, audio.Path)
		if err != nil {
			return audio, err
		}
		audio.Duration = d
		log.Debug("read soundtrack duration", "path", audio.Path, "seconds", d)
	}

	uid, err := source.FileUID(audio.Path, cfg.IDMethod)
	if err != nil {
		log.Warn("falling back to path uid for soundtrack", "path", audio.Path, "error", err)
	} else {
		audio.UID = uid
	}
	return audio, nil
}

// classify maps a pipeline or reconciliation error to a response code and
// an exit code.
func classify(err error) (string, int) {
	var stage *stageError
	var cerr *compiler.CompileError
	var verr compiler.ValidationError
	var irErr *ir.Error
	var rerr *reconcile.Error

	switch {
	case errors.As(err, &cerr):
		return ErrCodeConfig, ExitCommandError
	case errors.As(err, &verr):
		return verr.Code, ExitCommandError
	case errors.As(err, &irErr):
		return string(irErr.Code), ExitFailure
	case errors.As(err, &rerr):
		if rerr.Code == reconcile.ErrCodeSessionLocked {
			return string(rerr.Code), ExitFailure
		}
		return string(rerr.Code), ExitCommandError
	case errors.Is(err, source.ErrNoItems):
		return ErrCodeManifest, ExitFailure
	case errors.As(err, &stage):
		return stage.Code, ExitCommandError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeGeneric, ExitCommandError
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

// fail writes err through the formatter and returns the matching ExitError.
func fail(f *OutputFormatter, message string, err error) error {
	code, exit := classify(err)
	var details any
	var irErr *ir.Error
	if errors.As(err, &irErr) && irErr.Code == ir.ErrCodeCapacityExceeded {
		details = map[string]int{"required": irErr.Required, "available": irErr.Available}
	}
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return outErr
	}
	return WrapExitError(exit, message, err)
}
