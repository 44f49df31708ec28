package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

const serverShutdownTimeout = 10 * time.Second

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatch sweep and exit",
	Long: "Runs a single sweep of due schedules, due posts, and unhandled replies.\n" +
		"Intended to be invoked by an external scheduler (e.g. cron, every minute).",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		ctx := context.Background()
		now := time.Now()
		eng.dispatcher.Sweep(ctx, now)
		eng.dispatcher.PublishSweep(ctx, now)
		eng.dispatcher.ReplySweep(ctx, now)
		return nil
	},
}
