package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suggestkit/suggestkit/pkg/suggest"
)

// validateCmd checks that a model file loads, verifies and compiles.
var validateCmd = &cobra.Command{
	Use:   "validate <model.yaml>",
	Short: "Validate a suggestion model file",
	Long: `Validate a suggestion model file.

The model is fully loaded and compiled, including every rule pattern and the
entity schema, exactly as an engine would at startup.

Examples:
  suggestctl validate model.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := suggest.NewEngineFromPath(args[0],
		suggest.WithMatchTimeout(cfg.Model.MatchTimeout),
	); err != nil {
		return fmt.Errorf("model %s is invalid: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "model %s is valid\n", args[0])
	return nil
}
