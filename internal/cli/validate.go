package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lunadb/internal/config"
	"github.com/roach88/lunadb/internal/harness"
)

// File kinds recognised by validate.
const (
	FileConfig   = "config"
	FileScenario = "scenario"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	File  string `json:"file"`
	Kind  string `json:"kind"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a configuration or scenario file",
		Long: `Validate a YAML configuration file against the configuration schema,
or a scenario file against the scenario format. Documents with a top-level
steps list are scenarios; anything else is checked as configuration.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

// fileKind reports whether data is a scenario or a configuration document.
func fileKind(data []byte) string {
	var top map[string]any
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&top); err != nil && !errors.Is(err, io.EOF) {
		return FileConfig
	}
	if _, ok := top["steps"]; ok {
		return FileScenario
	}
	return FileConfig
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if opts.Format == "json" {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "failed to read file", err)
	}

	result := ValidationResult{File: path, Kind: fileKind(data)}
	code := ErrCodeInvalidConfig
	switch result.Kind {
	case FileScenario:
		code = ErrCodeInvalidScenario
		_, err = harness.ParseScenario(data)
	default:
		_, err = config.Parse(data)
	}

	if err != nil {
		result.Error = err.Error()
		if opts.Format == "json" {
			if outErr := formatter.Error(code, fmt.Sprintf("invalid %s", result.Kind), result); outErr != nil {
				return outErr
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: invalid %s\n  %s\n", path, result.Kind, result.Error)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("invalid %s: %s", result.Kind, path))
	}

	result.Valid = true
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: valid %s\n", path, result.Kind)
	return nil
}
