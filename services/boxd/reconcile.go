package boxd

import (
	"context"
	"fmt"
	"log/slog"

	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/services/boxd/db"
)

// reconcileIdentity bulk-upserts one identity's extracted records, keyed by
// (identity, film). Re-running it with the same source data leaves the
// rating set unchanged: a prior value for the pair is overwritten, never
// duplicated. Individual record failures are counted, the rest of the batch
// still commits. Returns the distinct film ids touched so aggregates can be
// recomputed downstream.
func (s Service) reconcileIdentity(ctx context.Context, guild, identity string, records []letterboxd.Rating) ([]string, int, error) {
	if len(records) == 0 {
		return nil, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, len(records), fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	failures := 0
	touched := map[string]bool{}
	named := map[string]bool{}

	for _, rec := range records {
		err := txqry.UpsertRating(ctx, db.UpsertRatingParams{
			Guild:  guild,
			LbId:   identity,
			FilmId: rec.FilmId,
			Rating: rec.Value,
		})
		if err != nil {
			slog.WarnContext(ctx, "upsert rating",
				"lb_id", identity,
				"film_id", rec.FilmId,
				"err", err,
			)
			failures++
			continue
		}
		touched[rec.FilmId] = true

		if rec.Name != "" && !named[rec.FilmId] {
			named[rec.FilmId] = true
			err := txqry.SetFilmName(ctx, db.SetFilmNameParams{
				Guild:  guild,
				FilmId: rec.FilmId,
				Name:   rec.Name,
			})
			if err != nil {
				slog.WarnContext(ctx, "set film name",
					"film_id", rec.FilmId,
					"err", err,
				)
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, len(records), fmt.Errorf("commit reconcile tx: %w", err)
	}

	out := make([]string, 0, len(touched))
	for id := range touched {
		out = append(out, id)
	}
	return out, failures, nil
}
