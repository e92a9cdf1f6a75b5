package boxd

import (
	"context"
	"errors"
	"strings"

	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/services/boxd/db"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrNoFilmMatch = errors.New("no film matched the query")

// Films with a lower similarity than this are never considered a match.
const whoKnowsThreshold = 0.7

// WhoKnowsEntry is one identity's relationship to a film. Rated is false
// when the identity logged the film without scoring it.
type WhoKnowsEntry struct {
	LbId   string  `json:"lb_id"`
	Rated  bool    `json:"rated"`
	Rating float64 `json:"rating,omitempty"`
}

type WhoKnowsResult struct {
	Film    db.Film         `json:"film"`
	Entries []WhoKnowsEntry `json:"entries"`
}

// WhoKnows fuzzy-matches the query against the guild's film names and
// returns who has seen the best match and how they rated it. Matching runs
// over display names when present and falls back to the film id with its
// dashes spaced out, so films that never got a name resolved are still
// findable.
func (s Service) WhoKnows(ctx context.Context, guild, query string) (WhoKnowsResult, error) {
	ctx, span := tracer.Start(ctx, "WhoKnows")
	defer span.End()
	span.SetAttributes(
		attribute.String("guild", guild),
		attribute.String("query", query),
	)

	films, err := s.qry.GetFilmsByGuild(ctx, guild)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return WhoKnowsResult{}, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	best := -1
	bestScore := whoKnowsThreshold
	for i, f := range films {
		score := matchr.JaroWinkler(query, filmSearchKey(f), false)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return WhoKnowsResult{}, ErrNoFilmMatch
	}
	match := films[best]
	span.SetAttributes(attribute.String("film_id", match.FilmId))

	ratings, err := s.qry.GetRatingsByFilm(ctx, db.GetRatingsByFilmParams{
		Guild:  guild,
		FilmId: match.FilmId,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return WhoKnowsResult{}, err
	}

	result := WhoKnowsResult{Film: match}
	for _, r := range ratings {
		entry := WhoKnowsEntry{LbId: r.LbId}
		if r.Rating != letterboxd.Unrated {
			entry.Rated = true
			entry.Rating = r.Rating
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

func filmSearchKey(f db.Film) string {
	if f.Name != "" {
		return strings.ToLower(f.Name)
	}
	return strings.ReplaceAll(f.FilmId, "-", " ")
}

const defaultRankingLimit = 200

// TopFilms ranks the guild's films by average rating, highest first. Films
// with fewer than minRatings scored entries are excluded so a single
// enthusiastic watcher cannot dominate the board.
func (s Service) TopFilms(ctx context.Context, guild string, minRatings, limit int64) ([]db.Film, error) {
	minRatings, limit, err := rankingParams(minRatings, limit)
	if err != nil {
		return nil, err
	}
	return s.qry.GetTopFilms(ctx, db.RankedFilmsParams{
		Guild:      guild,
		MinRatings: minRatings,
		Limit:      limit,
	})
}

// BottomFilms ranks the guild's films by average rating, lowest first.
func (s Service) BottomFilms(ctx context.Context, guild string, minRatings, limit int64) ([]db.Film, error) {
	minRatings, limit, err := rankingParams(minRatings, limit)
	if err != nil {
		return nil, err
	}
	return s.qry.GetBottomFilms(ctx, db.RankedFilmsParams{
		Guild:      guild,
		MinRatings: minRatings,
		Limit:      limit,
	})
}

func rankingParams(minRatings, limit int64) (int64, int64, error) {
	if minRatings < 1 {
		return 0, 0, errors.New("min ratings must be at least 1")
	}
	if limit <= 0 {
		limit = defaultRankingLimit
	}
	return minRatings, limit, nil
}

// SetFilmName overrides a film's display name without touching its
// aggregates.
func (s Service) SetFilmName(ctx context.Context, guild, filmId, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("film name must not be empty")
	}
	return s.qry.SetFilmName(ctx, db.SetFilmNameParams{
		Guild:  guild,
		FilmId: filmId,
		Name:   name,
	})
}
