package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a batch file without sending it",
		Long: `Parses a CSV or XLSX file and reports every row that would be rejected.
Nothing is sent to the diagnosis service. Exits non-zero when any row is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			svc := opts.service(core.PolicyPartial)
			defer svc.Close()

			report, err := svc.ValidateUpload(cmd.Context(), f, filepath.Base(args[0]))
			if err != nil {
				return err
			}

			if opts.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}
			return report.Err()
		},
	}
}

func printReport(w io.Writer, r *core.ValidationReport) {
	fmt.Fprintf(w, "%d valid, %d invalid\n", r.Valid, r.Invalid)
	for _, row := range r.Outcomes {
		for _, cell := range row.Errors {
			fmt.Fprintf(w, "  %s\n", cell)
		}
	}
}
