package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur"
	cadasturrepo "github.com/NicolasCavalcanti/trekko-website/internal/cadastur/repo"
	"github.com/NicolasCavalcanti/trekko-website/pkg/cache"
	"github.com/NicolasCavalcanti/trekko-website/pkg/database"
	"github.com/NicolasCavalcanti/trekko-website/pkg/utilities"
)

func main() {
	file := flag.String("file", "BD_CADASTUR.csv", "registry CSV to import")
	flag.Parse()

	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	log := lg.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := database.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("db config: %v", err)
	}
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open registry file: %v", err)
	}
	defer f.Close()

	stats, err := cadastur.NewImporter(db, log).Import(ctx, f)
	if err != nil {
		log.Fatalf("import %s: %v", *file, err)
	}

	// drop stale cached entries so the API serves the new data
	cacheCfg := cache.ConfigFromEnv()
	rdb, err := cache.New(ctx, cacheCfg)
	if err != nil {
		log.Warnw("redis unavailable, cached registry entries expire on their own", "err", err)
	}
	if rdb != nil {
		defer rdb.Close()
		lookup := cadastur.NewCachedLookup(cadasturrepo.NewGuideRepo(db), rdb, cacheCfg.RegistryTTL, log)
		if cached, ok := lookup.(*cadastur.CachedLookup); ok {
			n, err := cached.Flush(ctx)
			if err != nil {
				log.Warnw("flush registry cache", "err", err)
			} else {
				log.Infow("registry cache flushed", "keys", n)
			}
		}
	}

	log.Infow("import completed", "file", *file, "rows", stats.Rows, "imported", stats.Imported, "skipped", stats.Skipped)
}
