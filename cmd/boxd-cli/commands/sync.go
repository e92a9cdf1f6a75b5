package commands

import (
	"log/slog"
	"strconv"
	"time"

	"boxdbot-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

var syncForce *bool

func init() {
	syncForce = syncCmd.Flags().Bool("force", false, "Ignore sync cooldowns.")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync <guild> [uid]",
	Short: "Runs a full guild sync, or a single member's sync when a uid is given.",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup, err := openService(*syncForce)
		if err != nil {
			serviceutil.Fatal("open service", err)
		}
		defer cleanup()

		guild := args[0]
		t1 := time.Now()

		var report any
		if len(args) == 2 {
			uid, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				serviceutil.Fatal("parse uid", err)
			}
			report, err = svc.SyncMember(cmd.Context(), guild, uid)
			if err != nil {
				serviceutil.Fatal("sync member", err)
			}
		} else {
			report, err = svc.SyncGuild(cmd.Context(), guild)
			if err != nil {
				serviceutil.Fatal("sync guild", err)
			}
		}

		slog.Info("sync finished", "seconds", time.Since(t1).Seconds())
		printReport(report)
	},
}
