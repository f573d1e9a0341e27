package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/cohortsql/internal/check"
)

// CheckResult holds the findings of the check command.
type CheckResult struct {
	Valid    bool            `json:"valid"`
	Warnings []check.Warning `json:"warnings"`
}

var severityColors = map[check.Severity]*color.Color{
	check.SeverityCritical: color.New(color.FgRed, color.Bold),
	check.SeverityWarning:  color.New(color.FgYellow),
	check.SeverityInfo:     color.New(color.FgCyan),
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <cohort-file>",
		Short: "Check a cohort definition for likely mistakes",
		Long: `Run the advisory checks over a cohort definition without compiling it.

Findings are INFO, WARNING or CRITICAL. Only critical findings make the
command fail.

Exit codes:
  0 - No critical findings
  1 - One or more critical findings
  2 - Command error (file not found, parse error)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	expr, err := loadDefinition(formatter, path)
	if err != nil {
		return err
	}

	checkers := check.Default()
	for _, c := range checkers {
		formatter.VerboseLog("Running check: %s", c.Name())
	}
	warnings := check.Run(expr, checkers...)
	result := CheckResult{
		Valid:    !check.HasCritical(warnings),
		Warnings: warnings,
	}

	if formatter.Format == "json" {
		if err := formatter.encode(checkResponse(result)); err != nil {
			return err
		}
	} else {
		writeWarnings(formatter.Writer, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d critical finding(s)", countCritical(warnings)))
	}
	return nil
}

func checkResponse(result CheckResult) CLIResponse {
	if result.Valid {
		return CLIResponse{Status: "ok", Data: result}
	}
	return CLIResponse{
		Status: "error",
		Data:   result,
		Error: &CLIError{
			Code:    ErrCodeCritical,
			Message: fmt.Sprintf("%d critical finding(s)", countCritical(result.Warnings)),
		},
	}
}

// writeWarnings prints one line per finding with a colored severity tag.
func writeWarnings(w io.Writer, result CheckResult) {
	if len(result.Warnings) == 0 {
		fmt.Fprintln(w, "✓ No findings")
		return
	}
	for _, warning := range result.Warnings {
		tag := fmt.Sprintf("[%s]", warning.Severity)
		if c, ok := severityColors[warning.Severity]; ok {
			tag = c.Sprint(tag)
		}
		fmt.Fprintf(w, "%s %s: %s\n", tag, warning.Check, warning.Message)
	}
	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintf(w, "✓ %d finding(s), none critical\n", len(result.Warnings))
		return
	}
	fmt.Fprintf(w, "✗ %d finding(s), %d critical\n", len(result.Warnings), countCritical(result.Warnings))
}

func countCritical(warnings []check.Warning) int {
	n := 0
	for _, w := range warnings {
		if w.Severity == check.SeverityCritical {
			n++
		}
	}
	return n
}
