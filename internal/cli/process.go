package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/umbra-run/umbrad/internal/config"
	"github.com/umbra-run/umbrad/internal/display"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one discovery-and-process cycle, waiting for it to finish, then exit",
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
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
	if cfg.SaveReport.Path != "" {
		if err := s.SaveReport(); err != nil {
			log.Warnf("save_report: %v", err)
		}
	}
	return nil
}
