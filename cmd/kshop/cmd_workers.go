package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/internal/server"
	"github.com/shashiranjanraj/kashvi-shop/pkg/queue"
)

var queueWorkersFlag int

// kshop queue:work is only useful with the redis driver, where jobs
// dispatched by `serve` land in a shared list.
var queueWorkCmd = &cobra.Command{
	Use:   "queue:work",
	Short: "Process queued jobs (low-stock alerts)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		b, err := server.Boot(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		workers := queueWorkersFlag
		if workers < 1 {
			workers = config.QueueWorkers()
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Queue worker started (%d workers, %s driver). Press Ctrl+C to stop.\n", workers, config.QueueDriver())
		queue.StartWorkers(ctx, workers).Wait()
		fmt.Fprintln(cmd.OutOrStdout(), "Queue worker stopped.")
		return nil
	},
}

// kshop queue:retry <id>
var queueRetryCmd = &cobra.Command{
	Use:   "queue:retry <failed-job-id>",
	Short: "Push a stored failed job back onto the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}

		b, err := server.Boot(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		if err := queue.Retry(cmd.Context(), uint(id)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Failed job %d re-queued\n", id)
		return nil
	},
}

func init() {
	queueWorkCmd.Flags().IntVarP(&queueWorkersFlag, "workers", "w", 0, "Number of concurrent workers (default QUEUE_WORKERS)")
}
