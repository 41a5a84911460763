// cmd/watch.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gpusim/gpusim/sim"
)

var (
	watchPath     string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live metrics of a running simulation",
	Long: `Polls the live metrics snapshot file and prints every fresh snapshot.
The watcher may attach before, during, or after a launch; it synchronizes
with the simulator only through the snapshot file. Exits after a terminal
snapshot or on interrupt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		poller := sim.NewPoller(watchPath, watchInterval)
		err := poller.Watch(ctx, printSnapshot)
		if errors.Is(err, context.Canceled) {
			// User quit.
			return nil
		}
		return err
	},
}

func printSnapshot(s sim.Snapshot) {
	active := 0
	for _, on := range s.SMActive {
		if on {
			active++
		}
	}
	fmt.Printf("[%06d] %-8s %s policy=%s blocks=%d/%d warps=%d threads=%d occ=%.2f (%s) SMs=%d/%d\n",
		s.Seq, s.Status, s.Kernel, s.Policy, s.BlocksDone, s.BlocksTotal,
		s.Warps, s.Threads, s.Occupancy, s.Limiter, active, len(s.SMActive))
}

func init() {
	watchCmd.Flags().StringVar(&watchPath, "path", sim.DefaultMetricsPath, "Snapshot path to poll")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", sim.DefaultPollInterval, "Poll cadence")

	rootCmd.AddCommand(watchCmd)
}
