// Package boxd tracks a community's film-rating profiles: it scrapes each
// followed identity's rated-films listing, reconciles the results into a
// per-guild store and keeps per-film aggregate statistics up to date.
package boxd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/services/boxd/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/boxd")

type Options struct {
	// one full guild sync per window, defaults to 4 days
	FullSyncCooldown time.Duration
	// one member sync per window, defaults to 1 hour
	MemberSyncCooldown time.Duration
	// per-identity rating normalization passed through to extraction
	Multipliers map[string]float64
}

type Service struct {
	db      *sql.DB
	qry     *db.Queries
	scraper *letterboxd.Client
	opts    Options
}

func NewService(database *sql.DB, scraper *letterboxd.Client, opts Options) Service {
	if opts.FullSyncCooldown == 0 {
		opts.FullSyncCooldown = time.Hour * 96
	}
	if opts.MemberSyncCooldown == 0 {
		opts.MemberSyncCooldown = time.Hour
	}
	return Service{
		db:      database,
		qry:     db.New(database),
		scraper: scraper,
		opts:    opts,
	}
}

// CooldownError reports that a sync was requested before its rate-limit
// window elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e CooldownError) Error() string {
	return fmt.Sprintf("sync on cooldown for another %s", e.Remaining.Round(time.Second))
}

// Follow maps a guild member to a letterboxd identity and runs an initial
// sync for it, exempt from the member cooldown. Re-following replaces the
// member's previous mapping; the old identity's ratings stay until an
// explicit Unfollow.
func (s Service) Follow(ctx context.Context, guild string, uid int64, lbId string) (RunReport, error) {
	ctx, span := tracer.Start(ctx, "Follow")
	defer span.End()
	span.SetAttributes(
		attribute.String("guild", guild),
		attribute.String("lb_id", lbId),
	)

	err := s.qry.CreateGuild(ctx, guild)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunReport{}, err
	}
	err = s.qry.UpsertMember(ctx, db.UpsertMemberParams{
		Guild: guild,
		Uid:   uid,
		LbId:  lbId,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunReport{}, err
	}

	return s.syncMember(ctx, guild, db.Member{Guild: guild, Uid: uid, LbId: lbId}, true)
}

// Unfollow removes an identity from the guild: the member mapping, the
// cached identity and every rating row it contributed. Aggregates for the
// films it had touched are recomputed, films left with no watchers are
// dropped.
func (s Service) Unfollow(ctx context.Context, guild string, lbId string) error {
	ctx, span := tracer.Start(ctx, "Unfollow")
	defer span.End()
	span.SetAttributes(
		attribute.String("guild", guild),
		attribute.String("lb_id", lbId),
	)

	ratings, err := s.qry.GetRatingsByIdentity(ctx, db.GetRatingsByIdentityParams{
		Guild: guild,
		LbId:  lbId,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	touched := make([]string, len(ratings))
	for i, r := range ratings {
		touched[i] = r.FilmId
	}

	err = s.qry.DeleteRatingsByIdentity(ctx, db.DeleteRatingsByIdentityParams{
		Guild: guild,
		LbId:  lbId,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = s.qry.DeleteIdentity(ctx, db.DeleteIdentityParams{Guild: guild, LbId: lbId})
	if err != nil {
		slog.WarnContext(ctx, "delete identity", "guild", guild, "lb_id", lbId, "err", err)
	}
	err = s.qry.DeleteMembersByIdentity(ctx, db.DeleteMembersByIdentityParams{
		Guild: guild,
		LbId:  lbId,
	})
	if err != nil {
		slog.WarnContext(ctx, "delete member mapping", "guild", guild, "lb_id", lbId, "err", err)
	}

	_, err = s.RecomputeFilms(ctx, guild, touched)
	return err
}

// Following lists the guild's member-to-identity mappings.
func (s Service) Following(ctx context.Context, guild string) ([]db.Member, error) {
	return s.qry.GetMembersByGuild(ctx, guild)
}
