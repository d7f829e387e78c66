package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"igtracker/pkg/tracker"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Manage the set of tracked profiles",
}

var trackAddCmd = &cobra.Command{
	Use:   "add <handle>",
	Short: "Start tracking a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := tracker.NewService(db, newScraper())
		p, err := svc.AddProfile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Now tracking %s (%d followers, %d following)\n", p.Handle, p.FollowersCount, p.FollowingCount)
		return nil
	},
}

var trackRmCmd = &cobra.Command{
	Use:   "rm <handle>",
	Short: "Stop tracking a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		purge, _ := cmd.Flags().GetBool("purge")
		svc := tracker.NewService(db, newScraper())
		if err := svc.DeleteProfile(cmd.Context(), args[0], purge); err != nil {
			return err
		}
		if purge {
			fmt.Printf("Deleted %s and all recorded history\n", args[0])
		} else {
			fmt.Printf("Stopped tracking %s (history kept, re-add to resume)\n", args[0])
		}
		return nil
	},
}

var trackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		includeInactive, _ := cmd.Flags().GetBool("all")
		svc := tracker.NewService(db, newScraper())
		profiles, err := svc.ListProfiles(cmd.Context(), includeInactive)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("No tracked profiles. Add one with: igtracker track add <handle>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "HANDLE\tFOLLOWERS\tFOLLOWING\tPOSTS\tLAST CHECKED\tSTATUS\t")
		for _, p := range profiles {
			status := "ok"
			if !p.IsActive {
				status = "inactive"
			} else if p.LastError != "" {
				status = p.LastError
			}
			checked := "never"
			if !p.LastChecked.IsZero() {
				checked = p.LastChecked.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t\n", p.Handle, p.FollowersCount, p.FollowingCount, p.PostsCount, checked, status)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(trackCmd)
	trackCmd.AddCommand(trackAddCmd)
	trackCmd.AddCommand(trackRmCmd)
	trackCmd.AddCommand(trackListCmd)
	trackRmCmd.Flags().Bool("purge", false, "Also delete recorded relationships and change events")
	trackListCmd.Flags().Bool("all", false, "Include inactive profiles")
}
