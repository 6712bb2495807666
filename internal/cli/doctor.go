package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/cliconfig"
)

var doctorFix bool
var doctorOutput outputFlags

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config and setup diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := cliconfig.RunDoctorWithOptions(cliconfig.DoctorOptions{Fix: doctorFix})
		if err != nil {
			return err
		}

		failures := 0
		for _, check := range report.Checks {
			if check.Status == cliconfig.DoctorFail {
				failures++
			}
		}
		if done, err := doctorOutput.emit(cmd.OutOrStdout(), report.Checks); !done {
			for _, check := range report.Checks {
				symbol := "PASS"
				switch check.Status {
				case cliconfig.DoctorWarn:
					symbol = "WARN"
				case cliconfig.DoctorFail:
					symbol = "FAIL"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", symbol, check.Name, check.Message)
			}
		} else if err != nil {
			return err
		}

		if failures > 0 {
			return fmt.Errorf("doctor found %d failing check(s)", failures)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Apply safe fixes (create directories, merge env files)")
	doctorOutput.AddFlags(doctorCmd.Flags())
	rootCmd.AddCommand(doctorCmd)
}
