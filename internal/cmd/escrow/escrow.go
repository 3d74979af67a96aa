// Package escrow wires configuration and startup for the escrow API
// server command.
package escrow

import (
	"context"
	"flag"
	"fmt"

	"github.com/lockupfinance/lockup/internal/escrow/app"
	platformcmd "github.com/lockupfinance/lockup/internal/platform/cmd"
)

// Config holds the escrow command configuration. Environment variables
// supply defaults; flags override them.
type Config struct {
	HTTPAddr      string `env:"LOCKUP_HTTP_ADDR" envDefault:"localhost:8080"`
	DBPath        string `env:"LOCKUP_DB_PATH" envDefault:"lockup.db"`
	SettlementURL string `env:"LOCKUP_SETTLEMENT_URL" envDefault:"http://localhost:8090"`
}

// ParseConfig layers flags over environment defaults.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database path")
	fs.StringVar(&cfg.SettlementURL, "settlement-url", cfg.SettlementURL, "settlement gateway base URL")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the escrow API server and blocks until shutdown.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceEscrow, func(ctx context.Context) error {
		server, err := app.NewServer(app.Config{
			HTTPAddr:      cfg.HTTPAddr,
			DBPath:        cfg.DBPath,
			SettlementURL: cfg.SettlementURL,
		})
		if err != nil {
			return fmt.Errorf("init escrow server: %w", err)
		}
		defer server.Close()

		if err := server.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve escrow: %w", err)
		}
		return nil
	})
}
