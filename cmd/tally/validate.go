package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/tally/pkg/registry"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <action> [args-json]",
	Short: "Check arguments against an action schema without running it",
	Long: `Validates a JSON object of arguments the way the assistant does before
running an action, and prints the normalised arguments (defaults applied,
enums canonicalised, dates resolved).

  tally validate create_task '{"title": "Call Ana", "dueDate": "tomorrow"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := map[string]any{}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &raw); err != nil {
				return fmt.Errorf("arguments must be a JSON object: %w", err)
			}
		}

		c, err := newContainer(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		normalized, err := c.Assistant().Registry().Validate(args[0], raw)
		if err != nil {
			return errors.New(registry.DescribeValidation(err))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(normalized)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
