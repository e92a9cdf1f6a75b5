package boxd

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RunSyncDaemon attempts a full sync of every known guild on a fixed
// interval until the context dies. The cooldown gate decides which guilds
// actually run, so the interval can be much shorter than the cooldown
// without causing redundant scraping.
func (s Service) RunSyncDaemon(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.syncAllGuilds(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s Service) syncAllGuilds(ctx context.Context) {
	guilds, err := s.qry.GetGuilds(ctx)
	if err != nil {
		slog.WarnContext(ctx, "list guilds", "err", err)
		return
	}

	for _, guild := range guilds {
		report, err := s.SyncGuild(ctx, guild)
		var cooldown CooldownError
		if errors.As(err, &cooldown) {
			continue
		}
		if err != nil {
			slog.WarnContext(ctx, "daemon full sync", "guild", guild, "err", err)
			continue
		}
		slog.InfoContext(ctx, "daemon full sync",
			"guild", guild,
			"members", report.Members,
			"synced", report.Synced,
			"films_recomputed", report.FilmsRecomputed,
		)
	}
}
