package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"igtracker/pkg/tracker"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats <handle>",
	Short: "Print per-day change statistics for a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		days, _ := cmd.Flags().GetInt("days")
		svc := tracker.NewService(db, newScraper())
		stats, err := svc.GetStats(cmd.Context(), args[0], days)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d followers, %d following\n\n", stats.Handle, stats.FollowersCount, stats.FollowingCount)
		if len(stats.Days) == 0 {
			fmt.Println("No changes recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "DAY\t+FOLLOWERS\t-FOLLOWERS\t+FOLLOWING\t-FOLLOWING\tTOTAL FOLLOWERS\t")
		for _, d := range stats.Days {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t\n",
				d.Day, d.FollowersAdded, d.FollowersRemoved, d.FollowingAdded, d.FollowingRemoved, d.CumulativeFollowers)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Int("days", 30, "Number of days of history to show")
}
