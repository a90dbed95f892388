package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/NicolasCavalcanti/trekko-website/internal/cadastur"
	cadasturrepo "github.com/NicolasCavalcanti/trekko-website/internal/cadastur/repo"
	"github.com/NicolasCavalcanti/trekko-website/internal/metrics"
	"github.com/NicolasCavalcanti/trekko-website/internal/router"
	"github.com/NicolasCavalcanti/trekko-website/internal/user"
	"github.com/NicolasCavalcanti/trekko-website/pkg/cache"
	"github.com/NicolasCavalcanti/trekko-website/pkg/database"
	"github.com/NicolasCavalcanti/trekko-website/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting trekko auth service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := database.ConfigFromEnv()
	if err := dbCfg.Validate(); err != nil {
		sugar.Fatalf("db config: %v", err)
	}
	db, err := database.Connect(dbCfg, sugar)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	sugar.Infow("database connected", "driver", db.DriverName())

	if err := database.Migrate(ctx, db); err != nil {
		sugar.Fatalf("db migrate: %v", err)
	}

	ids, err := utilities.NewIDGeneratorFromEnv()
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cacheCfg := cache.ConfigFromEnv()
	rdb, err := cache.New(ctx, cacheCfg)
	if err != nil {
		// the cache is optional; run without it
		sugar.Warnw("redis unavailable, registry cache disabled", "err", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	guides := cadasturrepo.NewGuideRepo(db)
	lookup := cadastur.NewCachedLookup(guides, rdb, cacheCfg.RegistryTTL, sugar)
	cadasturHandler := cadastur.NewHandler(cadastur.NewValidator(guides), lookup, m, sugar)

	userSvc := user.NewUserService(db, ids,
		user.WithMetrics(m),
		user.WithConfig(user.ConfigFromEnv()),
	)
	userHandler := user.NewHandler(userSvc, sugar)

	handler := router.RegisterRoutes(router.Deps{
		Logger:   sugar,
		DB:       db,
		Users:    userHandler,
		Cadastur: cadasturHandler,
		Metrics:  m,
		Gatherer: reg,
	})

	srvCfg := router.ConfigFromEnv()
	srv := &http.Server{
		Addr:         srvCfg.Addr,
		Handler:      handler,
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
	}

	// run server in background
	go func() {
		sugar.Infow("http server listening", "addr", srvCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
