package cmd

import (
	"github.com/spf13/cobra"

	"igtracker/internal/utils"
	"igtracker/pkg/scheduler"
	"igtracker/pkg/tracker"
)

// pollCmd runs a single check cycle over every tracked profile and exits.
// Useful from cron as an alternative to the built-in scheduler.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Check all tracked profiles once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		dbLock, err := utils.NewDBLock(dbPath)
		if err != nil {
			return err
		}
		if err := dbLock.Lock(); err != nil {
			return err
		}
		defer dbLock.Unlock()

		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := tracker.NewService(db, newScraper())
		scheduler.New(svc).CheckAll(cmd.Context())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
