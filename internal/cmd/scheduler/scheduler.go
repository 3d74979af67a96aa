// Package scheduler wires configuration and startup for the
// auto-release scheduler command. It runs against the same store and
// settlement gateway as the API server.
package scheduler

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/lockupfinance/lockup/internal/escrow/engine"
	"github.com/lockupfinance/lockup/internal/escrow/release"
	escrowscheduler "github.com/lockupfinance/lockup/internal/escrow/scheduler"
	"github.com/lockupfinance/lockup/internal/escrow/settlement"
	"github.com/lockupfinance/lockup/internal/escrow/storage/sqlite"
	platformcmd "github.com/lockupfinance/lockup/internal/platform/cmd"
)

// Config holds the scheduler command configuration.
type Config struct {
	DBPath        string        `env:"LOCKUP_DB_PATH" envDefault:"lockup.db"`
	SettlementURL string        `env:"LOCKUP_SETTLEMENT_URL" envDefault:"http://localhost:8090"`
	Interval      time.Duration `env:"LOCKUP_SCHEDULER_INTERVAL" envDefault:"30s"`
}

// ParseConfig layers flags over environment defaults.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database path")
	fs.StringVar(&cfg.SettlementURL, "settlement-url", cfg.SettlementURL, "settlement gateway base URL")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "poll interval for due milestones")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run polls for due milestones until the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceScheduler, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		gateway, err := settlement.NewHTTPGateway(cfg.SettlementURL)
		if err != nil {
			return fmt.Errorf("settlement gateway: %w", err)
		}

		eng := engine.New(store, gateway)
		coordinator := release.New(store, gateway, eng)
		escrowscheduler.New(store, coordinator, cfg.Interval).Run(ctx)
		return nil
	})
}
