package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"igtracker/pkg/tracker"
)

// changesCmd prints recorded change events for one profile.
var changesCmd = &cobra.Command{
	Use:   "changes <handle>",
	Short: "Show recorded follower/following changes for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")

		svc := tracker.NewService(db, newScraper())
		events, err := svc.ListChanges(cmd.Context(), args[0], kind, limit, 0)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No changes recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "DATE\tTIME\tEVENT\tHANDLE\tNAME\t")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", e.Day, e.HourMinute, e.EventType, e.RelatedHandle, e.DisplayName)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().String("kind", "", "Filter by relationship kind: follower, following or mutual")
	changesCmd.Flags().Int("limit", 50, "Maximum number of events to print")
}
