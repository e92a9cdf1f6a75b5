package commands

import (
	"os"

	"boxdbot-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(followingCmd)
}

var followingCmd = &cobra.Command{
	Use:   "following <guild>",
	Short: "Prints the guild's member-to-identity mappings.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup, err := openService(false)
		if err != nil {
			serviceutil.Fatal("open service", err)
		}
		defer cleanup()

		members, err := svc.Following(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("list members", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Uid", "Identity"})
		for _, m := range members {
			t.AppendRow(table.Row{m.Uid, m.LbId})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
