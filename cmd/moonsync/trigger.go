package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/varoOP/moonsync/internal/app"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <corporation-id>",
	Short: "Run one poll cycle for a single corporation",
	Long: `Trigger runs a single poll cycle for the given corporation id using
its best available credential, then exits. The regular refresh cursor is not
advanced, so the scheduled poll still happens on time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		corporationID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid corporation id %q: %w", args[0], err)
		}

		application, err := app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer application.Close()

		if err := application.TriggerCorporation(cmd.Context(), corporationID); err != nil {
			return fmt.Errorf("trigger failed: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
