package boxd

import (
	"database/sql"
	"testing"

	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/services/boxd/db"

	"github.com/stretchr/testify/require"
)

func TestComputeAggregate(t *testing.T) {
	avg, rated, watched := computeAggregate([]db.Rating{
		{Rating: 8},
		{Rating: 10},
		{Rating: letterboxd.Unrated},
	})
	require.Equal(t, float64(9), avg)
	require.Equal(t, int64(2), rated)
	require.Equal(t, int64(3), watched)

	avg, rated, watched = computeAggregate([]db.Rating{
		{Rating: letterboxd.Unrated},
	})
	require.Equal(t, float64(0), avg)
	require.Equal(t, int64(0), rated)
	require.Equal(t, int64(1), watched)

	avg, rated, watched = computeAggregate(nil)
	require.Equal(t, float64(0), avg)
	require.Equal(t, int64(0), rated)
	require.Equal(t, int64(0), watched)
}

func TestRecomputeIgnoresPreviousAggregate(t *testing.T) {
	_, svc := newTestService(t, Options{})
	ctx := testContext(t)

	for _, r := range []db.UpsertRatingParams{
		{Guild: "g1", LbId: "alice", FilmId: "the-thing", Rating: 8},
		{Guild: "g1", LbId: "bob", FilmId: "the-thing", Rating: 10},
		{Guild: "g1", LbId: "carol", FilmId: "the-thing", Rating: letterboxd.Unrated},
	} {
		require.NoError(t, svc.qry.UpsertRating(ctx, r))
	}

	// plant a stale aggregate row, the recompute must not read it
	err := svc.qry.UpsertFilmAggregate(ctx, db.UpsertFilmAggregateParams{
		Guild:       "g1",
		FilmId:      "the-thing",
		GuildAvg:    99,
		RatingCount: 42,
		WatchCount:  42,
	})
	require.NoError(t, err)

	recomputed, err := svc.RecomputeFilms(ctx, "g1", []string{"the-thing"})
	require.NoError(t, err)
	require.Equal(t, 1, recomputed)

	film, err := svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "the-thing"})
	require.NoError(t, err)
	require.Equal(t, float64(9), film.GuildAvg)
	require.Equal(t, int64(2), film.RatingCount)
	require.Equal(t, int64(3), film.WatchCount)
}

func TestRecomputeDeterministic(t *testing.T) {
	_, svc := newTestService(t, Options{})
	ctx := testContext(t)

	for _, r := range []db.UpsertRatingParams{
		{Guild: "g1", LbId: "alice", FilmId: "stalker", Rating: 10},
		{Guild: "g1", LbId: "bob", FilmId: "stalker", Rating: 7},
	} {
		require.NoError(t, svc.qry.UpsertRating(ctx, r))
	}

	_, err := svc.RecomputeFilms(ctx, "g1", []string{"stalker"})
	require.NoError(t, err)
	first, err := svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "stalker"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.RecomputeFilms(ctx, "g1", []string{"stalker"})
		require.NoError(t, err)
	}
	again, err := svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "stalker"})
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestRecomputeDropsOrphanFilm(t *testing.T) {
	_, svc := newTestService(t, Options{})
	ctx := testContext(t)

	err := svc.qry.UpsertRating(ctx, db.UpsertRatingParams{
		Guild: "g1", LbId: "alice", FilmId: "gummo", Rating: 6,
	})
	require.NoError(t, err)
	_, err = svc.RecomputeFilms(ctx, "g1", []string{"gummo"})
	require.NoError(t, err)

	err = svc.qry.DeleteRatingsByIdentity(ctx, db.DeleteRatingsByIdentityParams{
		Guild: "g1", LbId: "alice",
	})
	require.NoError(t, err)

	recomputed, err := svc.RecomputeFilms(ctx, "g1", []string{"gummo"})
	require.NoError(t, err)
	require.Equal(t, 1, recomputed)

	_, err = svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g1", FilmId: "gummo"})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecomputeAllFilms(t *testing.T) {
	_, svc := newTestService(t, Options{})
	ctx := testContext(t)

	for _, r := range []db.UpsertRatingParams{
		{Guild: "g1", LbId: "alice", FilmId: "stalker", Rating: 10},
		{Guild: "g1", LbId: "alice", FilmId: "gummo", Rating: 6},
		{Guild: "g2", LbId: "bob", FilmId: "stalker", Rating: 2},
	} {
		require.NoError(t, svc.qry.UpsertRating(ctx, r))
	}

	recomputed, err := svc.RecomputeAllFilms(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, 2, recomputed)

	// the other guild's rows stay untouched
	_, err = svc.qry.GetFilm(ctx, db.GetFilmParams{Guild: "g2", FilmId: "stalker"})
	require.ErrorIs(t, err, sql.ErrNoRows)
}
