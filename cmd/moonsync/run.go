package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/varoOP/moonsync/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling scheduler",
	Long: `Run starts the continuous polling loop:
1. Selects the best credential per corporation (director preferred)
2. Polls structures, extractions, and mining observers from the API
3. Records state changes in the local history database
4. Rolls arrived extractions into completed records with a belt decay estimate
5. Sends Discord notifications for state transitions

The loop runs until interrupted (SIGINT/SIGTERM).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := application.Run(ctx); err != nil {
			return fmt.Errorf("run failed: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
