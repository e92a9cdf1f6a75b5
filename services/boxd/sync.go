package boxd

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/services/boxd/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RunReport summarizes one sync run. A run always completes with a report,
// per-identity and per-page failures are isolated and counted rather than
// propagated.
type RunReport struct {
	Guild           string    `json:"guild"`
	Members         int       `json:"members"`
	Synced          int       `json:"synced"`
	Unavailable     []string  `json:"unavailable,omitempty"`
	ResolveFailures int       `json:"resolve_failures"`
	PagesFetched    int       `json:"pages_fetched"`
	PageFailures    int       `json:"page_failures"`
	RecordFailures  int       `json:"record_failures"`
	FilmsRecomputed int       `json:"films_recomputed"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// SyncGuild re-ingests every followed identity in the guild and then
// recomputes aggregates for every film touched. One identity failing never
// aborts the run. Gated by the full-sync cooldown.
func (s Service) SyncGuild(ctx context.Context, guild string) (RunReport, error) {
	ctx, span := tracer.Start(ctx, "SyncGuild")
	defer span.End()
	span.SetAttributes(attribute.String("guild", guild))

	report := RunReport{Guild: guild, StartedAt: time.Now()}

	err := s.qry.CreateGuild(ctx, guild)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	if s.opts.FullSyncCooldown > 0 {
		g, err := s.qry.GetGuild(ctx, guild)
		if err != nil && err != sql.ErrNoRows {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return report, err
		}
		elapsed := time.Since(time.Unix(g.LastFullSync, 0))
		if g.LastFullSync > 0 && elapsed < s.opts.FullSyncCooldown {
			return report, CooldownError{Remaining: s.opts.FullSyncCooldown - elapsed}
		}
	}

	members, err := s.qry.GetMembersByGuild(ctx, guild)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	report.Members = len(members)

	// the same handle may be followed by several members but is only
	// scraped and rate-recorded once
	var identities []string
	seen := map[string]bool{}
	for _, m := range members {
		if seen[m.LbId] {
			continue
		}
		seen[m.LbId] = true
		identities = append(identities, m.LbId)
	}

	counts := s.scraper.PageCounts(ctx, identities)
	for _, c := range counts {
		if c.Err != nil {
			continue
		}
		err := s.qry.UpsertIdentity(ctx, db.UpsertIdentityParams{
			Guild:    guild,
			LbId:     c.Identity,
			NumPages: int64(c.Pages),
		})
		if err != nil {
			slog.WarnContext(ctx, "cache page count", "lb_id", c.Identity, "err", err)
		}
	}

	touched := map[string]bool{}
	lock := sync.Mutex{}
	wg := sync.WaitGroup{}

	for _, c := range counts {
		// a failed probe is transient, the identity is neither synced nor
		// marked unavailable
		if c.Err != nil {
			slog.WarnContext(ctx, "resolve page count", "lb_id", c.Identity, "err", c.Err)
			lock.Lock()
			report.ResolveFailures++
			lock.Unlock()
			continue
		}
		if c.Pages == letterboxd.PageCountUnavailable {
			slog.WarnContext(ctx, "profile unavailable", "lb_id", c.Identity)
			lock.Lock()
			report.Unavailable = append(report.Unavailable, c.Identity)
			lock.Unlock()
			continue
		}

		wg.Add(1)
		go func(identity string, pages int) {
			defer wg.Done()

			res := s.syncIdentity(ctx, guild, identity, pages)

			lock.Lock()
			defer lock.Unlock()
			report.Synced++
			report.PagesFetched += res.pagesFetched
			report.PageFailures += res.pageFailures
			report.RecordFailures += res.recordFailures
			for _, id := range res.touched {
				touched[id] = true
			}
		}(c.Identity, c.Pages)
	}
	wg.Wait()

	// aggregates are recomputed only after every identity's
	// reconciliation has settled
	var touchedIds []string
	for id := range touched {
		touchedIds = append(touchedIds, id)
	}
	recomputed, err := s.RecomputeFilms(ctx, guild, touchedIds)
	report.FilmsRecomputed = recomputed
	if err != nil {
		slog.WarnContext(ctx, "recompute aggregates", "guild", guild, "err", err)
	}

	now := time.Now()
	err = s.qry.SetGuildLastFullSync(ctx, db.SetGuildLastFullSyncParams{
		Guild:        guild,
		LastFullSync: now.Unix(),
	})
	if err != nil {
		slog.WarnContext(ctx, "record full sync time", "guild", guild, "err", err)
	}
	err = s.qry.SetGuildWatermark(ctx, db.SetGuildWatermarkParams{
		Guild:     guild,
		Watermark: report.StartedAt.Unix(),
	})
	if err != nil {
		slog.WarnContext(ctx, "record watermark", "guild", guild, "err", err)
	}

	report.FinishedAt = now
	return report, nil
}

// SyncMember re-ingests a single member's identity. The page count is
// resolved freshly rather than from the cache so ratings added since the
// last run are picked up. Gated by the member cooldown.
func (s Service) SyncMember(ctx context.Context, guild string, uid int64) (RunReport, error) {
	ctx, span := tracer.Start(ctx, "SyncMember")
	defer span.End()
	span.SetAttributes(
		attribute.String("guild", guild),
		attribute.Int64("uid", uid),
	)

	member, err := s.qry.GetMember(ctx, db.GetMemberParams{Guild: guild, Uid: uid})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RunReport{Guild: guild}, err
	}
	return s.syncMember(ctx, guild, member, false)
}

func (s Service) syncMember(ctx context.Context, guild string, member db.Member, force bool) (RunReport, error) {
	report := RunReport{Guild: guild, Members: 1, StartedAt: time.Now()}

	if !force && s.opts.MemberSyncCooldown > 0 {
		lastSync, err := s.qry.GetMemberLastSync(ctx, db.MemberSyncParams{
			Guild: guild,
			Uid:   member.Uid,
		})
		if err != nil {
			return report, err
		}
		elapsed := time.Since(time.Unix(lastSync, 0))
		if lastSync > 0 && elapsed < s.opts.MemberSyncCooldown {
			return report, CooldownError{Remaining: s.opts.MemberSyncCooldown - elapsed}
		}
	}

	pages, err := s.scraper.PageCount(ctx, member.LbId)
	if err != nil {
		return report, err
	}
	upsertErr := s.qry.UpsertIdentity(ctx, db.UpsertIdentityParams{
		Guild:    guild,
		LbId:     member.LbId,
		NumPages: int64(pages),
	})
	if upsertErr != nil {
		slog.WarnContext(ctx, "cache page count", "lb_id", member.LbId, "err", upsertErr)
	}
	if pages == letterboxd.PageCountUnavailable {
		slog.WarnContext(ctx, "profile unavailable", "lb_id", member.LbId)
		report.Unavailable = append(report.Unavailable, member.LbId)
		report.FinishedAt = time.Now()
		return report, nil
	}

	res := s.syncIdentity(ctx, guild, member.LbId, pages)
	report.Synced = 1
	report.PagesFetched = res.pagesFetched
	report.PageFailures = res.pageFailures
	report.RecordFailures = res.recordFailures

	recomputed, err := s.RecomputeFilms(ctx, guild, res.touched)
	report.FilmsRecomputed = recomputed
	if err != nil {
		slog.WarnContext(ctx, "recompute aggregates", "guild", guild, "err", err)
	}

	err = s.qry.SetMemberLastSync(ctx, db.SetMemberLastSyncParams{
		Guild:    guild,
		Uid:      member.Uid,
		LastSync: time.Now().Unix(),
	})
	if err != nil {
		slog.WarnContext(ctx, "record member sync time", "uid", member.Uid, "err", err)
	}

	report.FinishedAt = time.Now()
	return report, nil
}

type identityResult struct {
	touched        []string
	pagesFetched   int
	pageFailures   int
	recordFailures int
}

// syncIdentity runs fetch -> extract -> reconcile for one identity. Failed
// pages only cost their own entries, the rest of the listing still commits.
func (s Service) syncIdentity(ctx context.Context, guild, identity string, pageCount int) identityResult {
	pages, failed := s.scraper.FetchPages(ctx, identity, pageCount)
	for _, f := range failed {
		slog.WarnContext(ctx, "fetch listing page",
			"lb_id", f.Identity,
			"page", f.Number,
			"err", f.Err,
		)
	}

	var records []letterboxd.Rating
	for _, page := range pages {
		extracted, err := letterboxd.ExtractRatings(page, letterboxd.ExtractOptions{
			IncludeUnrated: true,
			Multipliers:    s.opts.Multipliers,
		})
		if err != nil {
			slog.WarnContext(ctx, "extract listing page",
				"lb_id", page.Identity,
				"page", page.Number,
				"err", err,
			)
			continue
		}
		records = append(records, extracted...)
	}

	touched, recordFailures, err := s.reconcileIdentity(ctx, guild, identity, records)
	if err != nil {
		slog.WarnContext(ctx, "reconcile identity", "lb_id", identity, "err", err)
	}

	return identityResult{
		touched:        touched,
		pagesFetched:   len(pages),
		pageFailures:   len(failed),
		recordFailures: recordFailures,
	}
}
