package cli

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/beatspine/internal/compiler"
	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/source"
)

// Problem is one reason a project does not validate.
type Problem struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool      `json:"valid"`
	Project    string    `json:"project,omitempty"`
	Photos     int       `json:"photos"`
	Soundtrack float64   `json:"soundtrackSeconds,omitempty"`
	Errors     []Problem `json:"errors,omitempty"`
}

func (r *ValidationResult) renderText() string {
	if r.Valid {
		return fmt.Sprintf("%s %s is valid: %d photos, %.1fs soundtrack",
			styles.Success.Render(markOK), r.Project, r.Photos, r.Soundtrack)
	}
	var b strings.Builder
	b.WriteString(styles.Error.Render(markFail+" Validation failed") + "\n\n")
	for _, p := range r.Errors {
		if p.Line > 0 {
			fmt.Fprintf(&b, "line %d\n", p.Line)
		}
		fmt.Fprintf(&b, "  %s: %s: %s\n", p.Code, p.Field, p.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string

	// Durations overrides the soundtrack duration reader (for testing).
	Durations source.DurationSource
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration, manifest and soundtrack",
		Long: `Check the project configuration against its schema, then check that
the manifest parses, names at least one usable photo, and that the
soundtrack duration is known. Reports every configuration problem at
once. Nothing is assembled.

Exit codes:
  0 - Valid
  1 - Validation failed
  2 - Command error (config file unreadable)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", DefaultConfigPath, "project configuration (CUE)")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
	log := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := cmdContext(cmd)

	data, err := os.ReadFile(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading config", err)
	}

	result := &ValidationResult{}
	cfg, err := compiler.Compile(data, opts.Config)
	if err != nil {
		result.Errors = append(result.Errors, compileProblem(err))
		return outputValidation(formatter, result)
	}
	result.Project = cfg.Name
	for _, v := range compiler.Validate(cfg) {
		result.Errors = append(result.Errors, Problem{Code: v.Code, Field: v.Field, Message: v.Message})
	}
	if len(result.Errors) > 0 {
		return outputValidation(formatter, result)
	}
	if err := cfg.ResolvePaths(opts.Config); err != nil {
		return fail(formatter, "resolving paths", err)
	}
	formatter.VerboseLog("Config %s is valid, checking manifest %s", opts.Config, cfg.Manifest)

	manifest, err := source.LoadManifest(cfg.Manifest)
	if err != nil {
		result.Errors = append(result.Errors, Problem{Code: ErrCodeManifest, Field: "manifest", Message: err.Error()})
		return outputValidation(formatter, result)
	}
	src := &source.ManifestSource{Manifest: manifest, RequireFiles: true, Logger: log}
	items, err := src.Items(ctx)
	if err != nil {
		result.Errors = append(result.Errors, Problem{Code: ErrCodeManifest, Field: "manifest", Message: err.Error()})
	}
	result.Photos = len(items)
	if err == nil {
		result.Errors = append(result.Errors, unmatchedPins(cfg, items)...)
	}

	durations := opts.Durations
	if durations == nil {
		durations = source.FileDurations
	}
	audio, err := resolveAudio(ctx, cfg, manifest, durations, log)
	if err != nil {
		result.Errors = append(result.Errors, Problem{Code: ErrCodeAudio, Field: "audio", Message: err.Error()})
	}
	result.Soundtrack = audio.Duration

	return outputValidation(formatter, result)
}

// unmatchedPins reports pin overrides whose path is not a loaded photo.
func unmatchedPins(cfg *compiler.Config, items []ir.Item) []Problem {
	ids := make(map[string]bool, len(items))
	for _, it := range items {
		ids[it.ID] = true
	}
	var out []Problem
	for _, path := range slices.Sorted(maps.Keys(cfg.Pins)) {
		if !ids[path] {
			out = append(out, Problem{
				Code:    compiler.ErrPinUnmatched,
				Field:   "pins",
				Message: fmt.Sprintf("%s is not a photo in the manifest", path),
			})
		}
	}
	return out
}

// compileProblem converts a compile failure, keeping its source line.
func compileProblem(err error) Problem {
	var cerr *compiler.CompileError
	if errors.As(err, &cerr) {
		p := Problem{Code: compiler.ErrSchema, Field: cerr.Field, Message: cerr.Message}
		if cerr.Pos.IsValid() {
			p.Line = cerr.Pos.Line()
		}
		return p
	}
	return Problem{Code: compiler.ErrSchema, Field: "config", Message: err.Error()}
}

// outputValidation writes the result; any problem fails with exit code 1.
func outputValidation(f *OutputFormatter, result *ValidationResult) error {
	if len(result.Errors) == 0 {
		result.Valid = true
		return f.Success(result)
	}
	msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))
	if f.Format == "json" {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(f.Writer, result.renderText())
	}
	return NewExitError(ExitFailure, msg)
}
