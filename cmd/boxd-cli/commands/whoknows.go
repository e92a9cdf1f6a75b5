package commands

import (
	"fmt"
	"os"
	"strings"

	"boxdbot-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(whoKnowsCmd)
}

var whoKnowsCmd = &cobra.Command{
	Use:   "who-knows <guild> <query...>",
	Short: "Finds the film best matching the query and prints who has seen it.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup, err := openService(false)
		if err != nil {
			serviceutil.Fatal("open service", err)
		}
		defer cleanup()

		query := strings.Join(args[1:], " ")
		result, err := svc.WhoKnows(cmd.Context(), args[0], query)
		if err != nil {
			serviceutil.Fatal("who knows", err)
		}

		name := result.Film.Name
		if name == "" {
			name = result.Film.FilmId
		}
		fmt.Printf("%s (avg %.2f over %d ratings)\n",
			name, result.Film.GuildAvg, result.Film.RatingCount)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Identity", "Rating"})
		for _, e := range result.Entries {
			rating := "watched"
			if e.Rated {
				rating = fmt.Sprintf("%.1f", e.Rating/2)
			}
			t.AppendRow(table.Row{e.LbId, rating})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
