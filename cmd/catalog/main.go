package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"CloudCart/internal/catalog"
	"CloudCart/internal/config"
	"CloudCart/pkg/kit"
)

const service = "catalog"

var version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := kit.NewLogger(service, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("config loaded", zap.Stringer("config", cfg), zap.String("version", version))

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := catalog.RegisterMetrics(store, reg); err != nil {
		return fmt.Errorf("register catalog metrics: %w", err)
	}

	s := &catalog.Server{
		Store:       store,
		Log:         log,
		Environment: cfg.Environment,
		Version:     version,
	}
	if cfg.RateLimit.Writes > 0 {
		s.WriteLimiter = kit.NewIPRateLimiter(cfg.RateLimit.Writes, cfg.RateLimit.Window)
	}

	h := catalog.NewHandler(s, catalog.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		AllowedOrigins: cfg.HTTP.Origins,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})

	return kit.RunHTTPServer(cfg.Addr(), h, log, kit.ServerOptions{
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Shutdown.Timeout,
	})
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (catalog.Store, func(), error) {
	var seed []catalog.Product
	if cfg.Seed.Enabled {
		seed = catalog.SeedProducts()
	}

	if cfg.Database.URL == "" {
		log.Info("using in-memory store", zap.Int("seeded", len(seed)))
		return catalog.NewMemStore(seed), func() {}, nil
	}

	db, err := catalog.OpenPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { _ = db.Close() }

	pg := catalog.NewPostgresStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		closeDB()
		return nil, nil, err
	}
	if len(seed) > 0 {
		if err := pg.Seed(ctx, seed); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("seed products: %w", err)
		}
	}

	log.Info("using postgres store")
	return pg, closeDB, nil
}
