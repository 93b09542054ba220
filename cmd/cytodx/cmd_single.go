package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/cytodx/internal/core"
	"github.com/spf13/cobra"
)

func newSingleCmd(opts *rootOptions) *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "single",
		Short: "Diagnose one record",
		Long: `Sends one record to the diagnosis service. Unset features default to 1;
values must be between 1 and 10.

Example:
  cytodx single --set Clump_Thickness=5 --set Mitoses=2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, parseErr := parseSets(sets)
			form, formErr := core.FormFromValues(func(name string) (string, bool) {
				v, ok := values[name]
				return v, ok
			})

			svc := opts.service(core.PolicyRejectAll)
			defer svc.Close()

			out, err := svc.SubmitSingle(cmd.Context(), cliSession, form, errors.Join(parseErr, formErr))
			if err != nil {
				return err
			}
			if out.State.Phase != core.PhaseSucceeded {
				return out.State.Err
			}

			interp := svc.TakeResult(out.Token)
			if opts.jsonOut {
				return writeInterpretation(cmd.OutOrStdout(), interp)
			}
			printInterpretation(cmd.OutOrStdout(), interp)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "feature value as Name=value (repeatable)")
	return cmd
}

// parseSets splits Name=value pairs. Unknown names are form errors.
func parseSets(sets []string) (map[string]string, error) {
	values := make(map[string]string, len(sets))
	var errs []error
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok {
			errs = append(errs, &core.FormError{Field: name, Reason: "expected Name=value"})
			continue
		}
		if core.FeatureIndex(name) < 0 {
			errs = append(errs, &core.FormError{Field: name, Value: value, Reason: "unknown field"})
			continue
		}
		values[name] = value
	}
	return values, errors.Join(errs...)
}

func printInterpretation(w io.Writer, in core.Interpretation) {
	fmt.Fprintf(w, "Diagnosis:  %s\n", in.Diagnosis)
	fmt.Fprintf(w, "Confidence: %s\n", in.Confidence)
	fmt.Fprintln(w, "Recommendations:")
	for _, rec := range in.Recommendations {
		fmt.Fprintf(w, "  - %s\n", rec)
	}
}

func writeInterpretation(w io.Writer, in core.Interpretation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Diagnosis       string   `json:"diagnosis"`
		Malignant       bool     `json:"malignant"`
		Confidence      string   `json:"confidence"`
		Recommendations []string `json:"recommendations"`
	}{in.Diagnosis, in.Malignant, in.Confidence, in.Recommendations})
}
