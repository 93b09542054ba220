package main

import (
	"fmt"
	"os"

	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/spf13/cobra"
)

func newTemplateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print the batch CSV template",
		Long: `Prints the schema header and one example row of 1s.

Example:
  cytodx template -o ` + core.TemplateFilename,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), core.TemplateCSV())
				return nil
			}
			if err := os.WriteFile(output, []byte(core.TemplateCSV()), 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "wrote", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}
