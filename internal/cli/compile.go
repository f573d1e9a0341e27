package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/cohortsql/internal/cohort"
	"github.com/roach88/cohortsql/internal/compiler"
	"github.com/roach88/cohortsql/internal/loader"
	"github.com/roach88/cohortsql/internal/render"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string // target SQL dialect
	Output  string // output file path
}

// CompiledUnit is the JSON form of one compiled unit.
type CompiledUnit struct {
	Name       string   `json:"name"`
	SQL        string   `json:"sql,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
	Error      string   `json:"error,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// CompilationResult holds the compiled units of one cohort definition.
type CompilationResult struct {
	Title   string         `json:"title,omitempty"`
	Dialect string         `json:"dialect"`
	Units   []CompiledUnit `json:"units"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <cohort-file>",
		Short: "Compile a cohort definition to SQL",
		Long: `Compile a cohort definition (JSON or CUE) to SQL.

The generic dialect keeps @parameter placeholders for the caller to bind.
Any other dialect binds the configured schemas and translates date
arithmetic and temp table names.

Examples:
  cohortsql compile cohort.json
  cohortsql compile cohort.cue --dialect postgresql -o cohort.sql
  cohortsql compile cohort.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", string(render.DialectGeneric), "SQL dialect (generic|sqlite|postgresql)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	dialect, err := render.ParseDialect(opts.Dialect)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --dialect", err)
	}

	expr, err := loadDefinition(formatter, path)
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig(formatter)
	if err != nil {
		return err
	}

	comp, err := compiler.New(cfg, compiler.WithLogger(opts.logger(formatter.GetErrWriter())))
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "creating compiler", err)
	}
	compiled, err := comp.Compile(ctx, expr)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "compiling", err)
	}

	result, err := buildCompilationResult(expr, compiled, dialect)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "rendering", err)
	}
	for _, u := range result.Units {
		formatter.VerboseLog("Compiled unit %s (%d parameter(s))", u.Name, len(u.Parameters))
	}

	if failed := failedUnits(result); len(failed) > 0 {
		return outputCompileErrors(formatter, failed)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(script(result)), 0644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// loadDefinition reads and parses a cohort definition, reporting failures
// through the formatter.
func loadDefinition(formatter *OutputFormatter, path string) (*cohort.CohortExpression, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		msg := fmt.Sprintf("cohort definition not found: %s", path)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return nil, NewExitError(ExitCommandError, msg)
	}

	expr, err := loader.New(afero.NewOsFs()).Load(path)
	if err != nil {
		code := errorCode(err)
		_ = formatter.Error(code, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "loading cohort definition", err)
	}
	formatter.VerboseLog("Loaded %s", path)
	return expr, nil
}

// buildCompilationResult converts compiled units, binding and translating
// them unless the dialect is generic.
func buildCompilationResult(expr *cohort.CohortExpression, compiled *compiler.Result, dialect render.Dialect) (*CompilationResult, error) {
	result := &CompilationResult{
		Title:   expr.Title,
		Dialect: string(dialect),
		Units:   make([]CompiledUnit, 0, len(compiled.Units)),
	}
	normalizer := render.NewNormalizer(dialect)

	for _, u := range compiled.Units {
		cu := CompiledUnit{Name: u.Name}
		if u.Err != nil {
			cu.Error = u.Err.Error()
			cu.Code = errorCode(u.Err)
			result.Units = append(result.Units, cu)
			continue
		}

		cu.SQL = u.SQL
		cu.Parameters = u.Parameters
		if dialect != render.DialectGeneric {
			sql, err := render.Render(u.SQL, u.Bindings)
			if err != nil {
				return nil, fmt.Errorf("unit %s: %w", u.Name, err)
			}
			cu.SQL = normalizer.Normalize(sql)
			cu.Parameters = nil
		}
		result.Units = append(result.Units, cu)
	}
	return result, nil
}

func failedUnits(result *CompilationResult) []CompiledUnit {
	var failed []CompiledUnit
	for _, u := range result.Units {
		if u.Error != "" {
			failed = append(failed, u)
		}
	}
	return failed
}

// script joins the units into one SQL script, each preceded by a comment
// naming it.
func script(result *CompilationResult) string {
	var b strings.Builder
	for _, u := range result.Units {
		fmt.Fprintf(&b, "-- unit: %s\n%s;\n\n", u.Name, strings.TrimRight(u.SQL, "\n"))
	}
	return b.String()
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "✓ Compiled %d unit(s)\n", len(result.Units))
		fmt.Fprintf(formatter.Writer, "Wrote %s SQL to %s\n", result.Dialect, outputFile)
		return nil
	}

	fmt.Fprint(formatter.Writer, script(result))
	return nil
}

// outputCompileErrors reports every failed unit.
func outputCompileErrors(formatter *OutputFormatter, failed []CompiledUnit) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(failed))
		for i, u := range failed {
			cliErrors[i] = CLIError{
				Code:    u.Code,
				Message: u.Error,
				Details: map[string]string{"unit": u.Name},
			}
		}
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: ErrCodeCompile, Message: fmt.Sprintf("%d unit(s) failed to compile", len(failed))},
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		// Compilation errors are command-level errors (exit code 2)
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(failed)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, u := range failed {
		fmt.Fprintf(formatter.Writer, "%s\n  %s: %s\n\n", u.Name, u.Code, u.Error)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(failed)))
}
