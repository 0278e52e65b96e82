package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/umbra-run/umbrad/internal/config"
	"github.com/umbra-run/umbrad/internal/display"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Refresh once, render the CSV report to stdout, and exit",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	path := requireConfigFlag()
	cfg, err := config.Load(path)
	if err != nil {
		exitError(err.Error())
	}

	log := display.NewStderr(display.ParseVerbosity(verboseCount, quietCount), false)
	s, err := buildScheduler(cfg, log)
	if err != nil {
		exitError(err.Error())
	}

	if err := s.RunOnce(context.Background(), true); err != nil {
		exitError(err.Error())
	}

	if err := s.WriteReportCSV(os.Stdout, cfg.SaveReport.MaxWidth); err != nil {
		exitError(err.Error())
	}
	return nil
}
