package main

import (
	"flag"
	"os"
	"time"

	"boxdbot-backend/internal/server"
	"boxdbot-backend/lib/configutil"
	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/lib/serviceutil"
	"boxdbot-backend/lib/sqliteutil"
	"boxdbot-backend/lib/telemetry"
	"boxdbot-backend/services/boxd"
	"boxdbot-backend/services/boxd/db"
)

type ScraperConfig struct {
	BaseUrl           string  `json:"base_url"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type SyncConfig struct {
	FullSyncCooldownSeconds   int64              `json:"full_sync_cooldown_seconds"`
	MemberSyncCooldownSeconds int64              `json:"member_sync_cooldown_seconds"`
	DaemonIntervalSeconds     int64              `json:"daemon_interval_seconds"`
	Multipliers               map[string]float64 `json:"multipliers"`
}

type Config struct {
	Port     int           `json:"port"`
	Database string        `json:"database"`
	Scraper  ScraperConfig `json:"scraper"`
	Sync     SyncConfig    `json:"sync"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(*verbose)

	tel, err := telemetry.SetupFromEnv(ctx, "boxd-server")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("setup telemetry", err)
	}
	if err == nil {
		defer tel.Shutdown(ctx)
		if *verbose {
			telemetry.InstrumentPerfStats(ctx)
		}
	}

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Database == "" {
		cfg.Database = "boxd.db"
	}

	database, err := sqliteutil.OpenDB(db.Schema, cfg.Database)
	if err != nil {
		serviceutil.Fatal("open database", err)
	}
	defer database.Close()

	scraper := letterboxd.NewClient(letterboxd.ClientOptions{
		BaseUrl:           cfg.Scraper.BaseUrl,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
	})
	svc := boxd.NewService(database, scraper, boxd.Options{
		FullSyncCooldown:   time.Duration(cfg.Sync.FullSyncCooldownSeconds) * time.Second,
		MemberSyncCooldown: time.Duration(cfg.Sync.MemberSyncCooldownSeconds) * time.Second,
		Multipliers:        cfg.Sync.Multipliers,
	})

	go svc.RunSyncDaemon(ctx, time.Duration(cfg.Sync.DaemonIntervalSeconds)*time.Second)
	go serviceutil.StartHttpServer(cfg.Port, server.New(svc))
	<-ctx.Done()
}
