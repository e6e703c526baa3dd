// Package seed holds the development fixture command. It fills a board
// database with sample applications in every lifecycle state so the API
// can be exercised locally without manual setup.
package seed

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	platformcmd "github.com/louisbranch/inviteboard/internal/platform/cmd"
	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/engine"
	"github.com/louisbranch/inviteboard/internal/review/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath       string  `env:"INVITEBOARD_DB_PATH" envDefault:"data/board.db"`
	Applicants   int     `env:"INVITEBOARD_SEED_APPLICANTS" envDefault:"6"`
	MinVotes     int     `env:"INVITEBOARD_SEED_MIN_VOTES" envDefault:"3"`
	ApprovalRate float64 `env:"INVITEBOARD_SEED_APPROVAL_RATE" envDefault:"0.6"`
}

// ParseConfig loads environment defaults and then parses flags into a
// Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the board SQLite database")
	fs.IntVar(&cfg.Applicants, "applicants", cfg.Applicants, "Number of sample applications to create")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Applicants < 1 {
		return Config{}, fmt.Errorf("applicants must be at least 1")
	}
	return cfg, nil
}

// Run seeds the board database with sample data.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceSeed, func(ctx context.Context) error {
		return seed(ctx, cfg)
	})
}

var seedAdmin = domain.Identity{UserID: "seed-admin", Role: domain.RoleAdmin}

func seed(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open board sqlite store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	eng, err := engine.New(engine.Config{Ledger: store})
	if err != nil {
		return err
	}
	err = eng.UpdateSettings(ctx, seedAdmin, domain.ReviewSettings{
		MinVotes:     cfg.MinVotes,
		ApprovalRate: cfg.ApprovalRate,
	})
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	for i := 0; i < cfg.Applicants; i++ {
		applicant := domain.Identity{UserID: fmt.Sprintf("seed-user-%02d", i+1)}
		post, err := eng.Submit(ctx, applicant, domain.SubmitInput{
			Title:   fmt.Sprintf("Sample application %d", i+1),
			Content: "Seeded application for local development.",
		})
		if err != nil {
			return fmt.Errorf("seed post %d: %w", i+1, err)
		}

		// Vote a rotating share of posts through the first stage: every
		// third stays in voting, the rest split into promoted and
		// community-rejected.
		switch i % 3 {
		case 0:
			// Leave in first review with a single up vote.
			if err := castVotes(ctx, eng, post.ID, 1, 0); err != nil {
				return err
			}
		case 1:
			if err := castVotes(ctx, eng, post.ID, cfg.MinVotes, 0); err != nil {
				return err
			}
			log.Printf("seeded %s into second review", post.ID)
		case 2:
			if err := castVotes(ctx, eng, post.ID, 0, cfg.MinVotes); err != nil {
				return err
			}
			log.Printf("seeded %s as community-rejected", post.ID)
		}
	}
	log.Printf("seeded %d applications into %s", cfg.Applicants, cfg.DBPath)
	return nil
}

func castVotes(ctx context.Context, eng *engine.Engine, postID string, up, down int) error {
	vote := func(n int, direction domain.VoteType) error {
		for i := 0; i < n; i++ {
			voter := domain.Identity{UserID: fmt.Sprintf("seed-voter-%s-%d-%d", direction, i, time.Now().UnixNano())}
			if _, err := eng.CastVote(ctx, voter, postID, direction); err != nil {
				return fmt.Errorf("seed vote on %s: %w", postID, err)
			}
		}
		return nil
	}
	if err := vote(up, domain.VoteUp); err != nil {
		return err
	}
	return vote(down, domain.VoteDown)
}
