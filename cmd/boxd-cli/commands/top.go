package commands

import (
	"fmt"
	"os"

	"boxdbot-backend/lib/serviceutil"
	"boxdbot-backend/services/boxd/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	topMinRatings *int64
	topLimit      *int64
	topBottom     *bool
)

func init() {
	topMinRatings = topCmd.Flags().Int64("min-ratings", 2, "Exclude films with fewer scored entries than this.")
	topLimit = topCmd.Flags().Int64("limit", 25, "Maximum number of films to print.")
	topBottom = topCmd.Flags().Bool("bottom", false, "Rank lowest averages first instead.")
	rootCmd.AddCommand(topCmd)
}

var topCmd = &cobra.Command{
	Use:   "top <guild>",
	Short: "Prints the guild's films ranked by average rating.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup, err := openService(false)
		if err != nil {
			serviceutil.Fatal("open service", err)
		}
		defer cleanup()

		var films []db.Film
		if *topBottom {
			films, err = svc.BottomFilms(cmd.Context(), args[0], *topMinRatings, *topLimit)
		} else {
			films, err = svc.TopFilms(cmd.Context(), args[0], *topMinRatings, *topLimit)
		}
		if err != nil {
			serviceutil.Fatal("rank films", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Film", "Average", "Ratings", "Watched"})
		for _, f := range films {
			name := f.Name
			if name == "" {
				name = f.FilmId
			}
			t.AppendRow(table.Row{
				name,
				fmt.Sprintf("%.2f", f.GuildAvg),
				f.RatingCount,
				f.WatchCount,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
