package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"igtracker/internal/server"
	"igtracker/internal/utils"
	"igtracker/pkg/scheduler"
	"igtracker/pkg/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the background check scheduler",
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

		ctx := context.Background()
		sched := scheduler.New(svc)
		noPoll, _ := cmd.Flags().GetBool("no-poll")
		if !noPoll {
			if err := sched.Start(ctx, scheduler.LoadInterval(ctx, db)); err != nil {
				return err
			}
			defer sched.Stop()
		}

		listenAddr, _ := cmd.Flags().GetString("listen")
		srv := server.New(svc, sched,
			viper.GetString("server.username"),
			viper.GetString("server.password"))
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Bool("no-poll", false, "Serve the API without running scheduled checks")
}
