package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/taskhub-dev/taskhub/internal/server"
)

var consumeCmd = &cobra.Command{
	Use:   "consume [topic]",
	Short: "Consume task events",
	Long: `Read task-created events from the queue and log them until interrupted.
The topic defaults to queue.topic from the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := ""
		if len(args) == 1 {
			topic = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.RunConsumer(ctx, topic)
	},
}
