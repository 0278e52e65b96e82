package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/umbra-run/umbrad/internal/config"
	"github.com/umbra-run/umbrad/internal/display"
)

var daemonWait bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the coordinator loop continually (refresh, report, sleep) until a shutdown signal",
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonWait, "wait", false, "wait for all enqueued projects to finish each cycle before sleeping")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	path := requireConfigFlag()
	cfg, err := config.Load(path)
	if err != nil {
		exitError(err.Error())
	}

	log := display.NewStderr(display.ParseVerbosity(verboseCount, quietCount), false)
	log.Banner("UMBRAD", fmt.Sprintf("version %s", Version),
		fmt.Sprintf("runs root: %s", cfg.RunsRoot()),
		fmt.Sprintf("nthreads: %d  readonly: %v", cfg.NThreads, cfg.ReadOnly))

	s, err := buildScheduler(cfg, log)
	if err != nil {
		exitError(err.Error())
	}
	s.VerbosityHook = log.Adjust

	if err := config.Watch(path, func(next *config.Config) {
		log.Infof("config changed on disk; restart the daemon to apply (hot task/path reconfiguration is not supported)")
	}, func(err error) {
		log.Warnf("config watch: %v", err)
	}); err != nil {
		log.Warnf("watching %s for changes: %v", path, err)
	}

	return s.WatchAndProcess(context.Background(), cfg.Poll(), daemonWait)
}
