package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/ruleengine/loader"
	"github.com/liamcoop/ruleengine/rules"
)

// FileResult is the validation outcome of one rule file.
type FileResult struct {
	Path  string `json:"path"`
	Rules int    `json:"rules"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Files []FileResult `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-file>...",
		Short: "Parse and validate rule files without running them",
		Long: `Parse each rule file and run the same checks the server applies before
storing a rule: non-empty id and name, well-formed conditions and actions,
numeric operands for ordering comparisons and unique ids per file.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	result := ValidationResult{Valid: true, Files: make([]FileResult, 0, len(paths))}

	var lines []string
	for _, path := range paths {
		fr := FileResult{Path: path}
		loaded, err := loader.LoadFile(path)
		if err != nil {
			result.Valid = false
			fr.Error = err.Error()
			fr.Kind = string(rules.KindOf(err))
			lines = append(lines, fmt.Sprintf("✗ %s: %v", path, err))
		} else {
			fr.Rules = len(loaded)
			lines = append(lines, fmt.Sprintf("✓ %s: %d rule(s)", path, len(loaded)))
		}
		f.VerboseLog("Validated %s", path)
		result.Files = append(result.Files, fr)
	}

	if !result.Valid {
		if f.Format != "json" {
			fmt.Fprintln(f.Writer, strings.Join(lines, "\n"))
		}
		return f.Error(ExitFailure, ErrCodeInvalid, "validation failed", nil, result)
	}
	return f.Success(result, strings.Join(lines, "\n")+"\n✓ All rules valid")
}
