package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"boxdbot-backend/lib/configutil"
	"boxdbot-backend/lib/scrapers/letterboxd"
	"boxdbot-backend/lib/sqliteutil"
	"boxdbot-backend/services/boxd"
	"boxdbot-backend/services/boxd/db"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "boxd-cli",
	Short: "boxd-cli runs sync jobs and inspects the film-rating store out of band.",
}

var dbPath *string

func init() {
	dbPath = rootCmd.PersistentFlags().String("db", "boxd.db", "The rating store to operate on.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type ScraperConfig struct {
	BaseUrl           string  `json:"base_url"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type SyncConfig struct {
	FullSyncCooldownSeconds   int64              `json:"full_sync_cooldown_seconds"`
	MemberSyncCooldownSeconds int64              `json:"member_sync_cooldown_seconds"`
	Multipliers               map[string]float64 `json:"multipliers"`
}

type Config struct {
	Scraper ScraperConfig `json:"scraper"`
	Sync    SyncConfig    `json:"sync"`
}

// openService wires a service against the store named by --db. A missing
// config.json5 just means defaults.
func openService(ignoreCooldowns bool) (boxd.Service, func(), error) {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		return boxd.Service{}, nil, err
	}

	database, err := sqliteutil.OpenDB(db.Schema, *dbPath)
	if err != nil {
		return boxd.Service{}, nil, err
	}

	opts := boxd.Options{
		FullSyncCooldown:   time.Duration(cfg.Sync.FullSyncCooldownSeconds) * time.Second,
		MemberSyncCooldown: time.Duration(cfg.Sync.MemberSyncCooldownSeconds) * time.Second,
		Multipliers:        cfg.Sync.Multipliers,
	}
	if ignoreCooldowns {
		opts.FullSyncCooldown = -1
		opts.MemberSyncCooldown = -1
	}

	scraper := letterboxd.NewClient(letterboxd.ClientOptions{
		BaseUrl:           cfg.Scraper.BaseUrl,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
	})
	return boxd.NewService(database, scraper, opts), func() { database.Close() }, nil
}

func printReport(report any) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
