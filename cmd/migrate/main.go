package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/NicolasCavalcanti/trekko-website/pkg/database"
	"github.com/NicolasCavalcanti/trekko-website/pkg/utilities"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", -1, "target version for down command (default: one step)")
	flag.Parse()

	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	log := lg.Sugar()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg := database.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("db config: %v", err)
	}
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	p, err := database.NewMigrator(db)
	if err != nil {
		log.Fatalf("configure migrations: %v", err)
	}

	switch *command {
	case "up":
		results, err := p.Up(ctx)
		if err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
		for _, r := range results {
			log.Infow("migration applied", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
		}
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			log.Fatalf("migration status: %v", err)
		}
		for _, s := range statuses {
			log.Infow("migration", "version", s.Source.Version, "path", s.Source.Path, "state", s.State, "applied_at", s.AppliedAt)
		}
	case "down":
		if *target >= 0 {
			results, err := p.DownTo(ctx, *target)
			if err != nil {
				log.Fatalf("roll back migrations: %v", err)
			}
			for _, r := range results {
				log.Infow("migration rolled back", "version", r.Source.Version, "path", r.Source.Path)
			}
		} else {
			r, err := p.Down(ctx)
			if err != nil {
				log.Fatalf("roll back migration: %v", err)
			}
			log.Infow("migration rolled back", "version", r.Source.Version, "path", r.Source.Path)
		}
	default:
		log.Fatalf("unsupported command %q", *command)
	}

	log.Infow("migration command completed", "command", *command, "driver", db.DriverName())
}
