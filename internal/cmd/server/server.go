// Package server holds board command configuration and startup.
package server

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	platformcmd "github.com/louisbranch/inviteboard/internal/platform/cmd"
	boardserver "github.com/louisbranch/inviteboard/internal/services/board/app"
)

// Config holds board command configuration.
type Config struct {
	Port          int           `env:"INVITEBOARD_PORT" envDefault:"8080"`
	DBPath        string        `env:"INVITEBOARD_DB_PATH" envDefault:"data/board.db"`
	TokenSecret   string        `env:"INVITEBOARD_TOKEN_SECRET"`
	ClaimTTL      time.Duration `env:"INVITEBOARD_CLAIM_TTL" envDefault:"30m"`
	SweepInterval time.Duration `env:"INVITEBOARD_SWEEP_INTERVAL" envDefault:"1m"`
}

// ParseConfig loads environment defaults and then parses flags into a
// Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The board HTTP server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the board SQLite database")
	fs.DurationVar(&cfg.ClaimTTL, "claim-ttl", cfg.ClaimTTL, "How long a review claim is held before expiring")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "How often expired claims are swept")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return Config{}, fmt.Errorf("INVITEBOARD_TOKEN_SECRET is required")
	}
	return cfg, nil
}

// Run starts the board server with telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceBoard, func(ctx context.Context) error {
		return boardserver.Run(ctx, boardserver.Config{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			TokenSecret:   []byte(cfg.TokenSecret),
			ClaimTTL:      cfg.ClaimTTL,
			SweepInterval: cfg.SweepInterval,
		})
	})
}
