package commands

import (
	"log/slog"
	"strconv"

	"boxdbot-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(unfollowCmd)
}

var followCmd = &cobra.Command{
	Use:   "follow <guild> <uid> <lb_id>",
	Short: "Maps a guild member to a letterboxd identity and runs its initial sync.",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup, err := openService(false)
		if err != nil {
			serviceutil.Fatal("open service", err)
		}
		defer cleanup()

		uid, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			serviceutil.Fatal("parse uid", err)
		}

		report, err := svc.Follow(cmd.Context(), args[0], uid, args[2])
		if err != nil {
			serviceutil.Fatal("follow", err)
		}
		printReport(report)
	},
}

var unfollowCmd = &cobra.Command{
	Use:   "unfollow <guild> <lb_id>",
	Short: "Removes an identity from the guild along with every rating it contributed.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup, err := openService(false)
		if err != nil {
			serviceutil.Fatal("open service", err)
		}
		defer cleanup()

		err = svc.Unfollow(cmd.Context(), args[0], args[1])
		if err != nil {
			serviceutil.Fatal("unfollow", err)
		}
		slog.Info("unfollowed", "guild", args[0], "lb_id", args[1])
	},
}
