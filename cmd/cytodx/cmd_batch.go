package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/spf13/cobra"
)

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var partial bool

	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Diagnose every record in a CSV or XLSX file",
		Long: `Validates the file and sends all records in one batch request.

By default one bad cell rejects the whole file. With --partial the valid
rows are sent and the rejected ones are listed on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			policy := opts.cfg.ValidationPolicy()
			if partial {
				policy = core.PolicyPartial
			}
			svc := opts.service(policy)
			defer svc.Close()

			out, err := svc.SubmitBatch(cmd.Context(), cliSession, f, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			if out.Report != nil && out.Report.Invalid > 0 {
				printReport(cmd.ErrOrStderr(), out.Report)
			}
			if out.State.Phase != core.PhaseSucceeded {
				return out.State.Err
			}

			if opts.jsonOut {
				var buf bytes.Buffer
				if err := json.Indent(&buf, out.State.Result.Raw, "", "  "); err != nil {
					return err
				}
				buf.WriteByte('\n')
				_, err := buf.WriteTo(cmd.OutOrStdout())
				return err
			}
			printPatients(cmd.OutOrStdout(), out.Patients)
			return nil
		},
	}
	cmd.Flags().BoolVar(&partial, "partial", false, "send valid rows and report the rest")
	return cmd
}

func printPatients(w io.Writer, patients []core.PatientInterpretation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATIENT\tLINE\tDIAGNOSIS\tCONFIDENCE")
	for _, p := range patients {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", p.PatientID, p.Line, p.Diagnosis, p.Confidence)
	}
	tw.Flush()
}
