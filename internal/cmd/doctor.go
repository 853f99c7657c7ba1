package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/doctor"
)

var (
	doctorJSON         bool
	doctorSkipUpstream bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and model connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "doctor")
		defer span.End()

		report := doctor.Run(ctx, doctor.Options{SkipUpstream: doctorSkipUpstream})
		out := cmd.OutOrStdout()
		if doctorJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			for _, c := range report.Checks {
				fmt.Fprintf(out, "  [%s] %-20s %s\n", c.Status, c.Name, c.Message)
				if c.Fix != "" && c.Status != doctor.StatusPass {
					fmt.Fprintf(out, "         fix: %s\n", c.Fix)
				}
			}
			fmt.Fprintf(out, "\n%d passed, %d warnings, %d failed\n", report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
		}
		if report.Status == doctor.StatusFail {
			return fmt.Errorf("doctor found %d failing check(s)", report.Summary.Fail)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorSkipUpstream, "skip-upstream", false, "Skip the model endpoint check")
	rootCmd.AddCommand(doctorCmd)
}
