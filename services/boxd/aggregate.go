package boxd

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/services/boxd/db"

	"go.opentelemetry.io/otel/attribute"
)

// RecomputeFilms rebuilds the aggregate row for each given film from the
// guild's current rating rows. The previous aggregate is never read, only
// overwritten, so repeated partial syncs cannot accumulate drift. A film
// whose last rating is gone loses its aggregate row entirely. Returns how
// many films were recomputed.
func (s Service) RecomputeFilms(ctx context.Context, guild string, filmIds []string) (int, error) {
	ctx, span := tracer.Start(ctx, "RecomputeFilms")
	defer span.End()
	span.SetAttributes(
		attribute.String("guild", guild),
		attribute.Int("films", len(filmIds)),
	)

	recomputed := 0
	var errlist []error
	for _, filmId := range filmIds {
		err := s.recomputeFilm(ctx, guild, filmId)
		if err != nil {
			slog.WarnContext(ctx, "recompute film", "film_id", filmId, "err", err)
			errlist = append(errlist, err)
			continue
		}
		recomputed++
	}
	return recomputed, errors.Join(errlist...)
}

// RecomputeAllFilms rebuilds every aggregate in the guild.
func (s Service) RecomputeAllFilms(ctx context.Context, guild string) (int, error) {
	filmIds, err := s.qry.GetDistinctFilmIds(ctx, guild)
	if err != nil {
		return 0, err
	}
	return s.RecomputeFilms(ctx, guild, filmIds)
}

func (s Service) recomputeFilm(ctx context.Context, guild, filmId string) error {
	rows, err := s.qry.GetRatingsByFilm(ctx, db.GetRatingsByFilmParams{
		Guild:  guild,
		FilmId: filmId,
	})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		err := s.qry.DeleteFilm(ctx, db.DeleteFilmParams{Guild: guild, FilmId: filmId})
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		return nil
	}

	avg, rated, watched := computeAggregate(rows)
	return s.qry.UpsertFilmAggregate(ctx, db.UpsertFilmAggregateParams{
		Guild:       guild,
		FilmId:      filmId,
		GuildAvg:    avg,
		RatingCount: rated,
		WatchCount:  watched,
	})
}

// computeAggregate partitions rating rows into rated and watched-unrated
// and averages the rated values. The average is 0 when nothing is rated.
func computeAggregate(rows []db.Rating) (avg float64, rated int64, watched int64) {
	var total float64
	for _, r := range rows {
		watched++
		if r.Rating == letterboxd.Unrated {
			continue
		}
		total += r.Rating
		rated++
	}
	if rated > 0 {
		avg = total / float64(rated)
	}
	return avg, rated, watched
}
