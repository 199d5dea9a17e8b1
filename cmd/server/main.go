package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/breachhunt/internal/config"
	"github.com/playperu/breachhunt/internal/database"
	"github.com/playperu/breachhunt/internal/engine"
	"github.com/playperu/breachhunt/internal/feed"
	"github.com/playperu/breachhunt/internal/migrations"
	"github.com/playperu/breachhunt/internal/server"
	"github.com/playperu/breachhunt/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	clock := clockwork.NewRealClock()
	checks := map[string]server.Checker{}

	// --- Change feed ---
	var f feed.Feed
	switch cfg.FeedDriver {
	case "redis":
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		rf := feed.NewRedis(rdb, logger)
		f = rf
		checks["redis"] = rf
		logger.Info("connected to redis")
	case "nats":
		nf, err := feed.DialNATS(cfg.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer nf.Close()
		f = nf
		checks["nats"] = nf
		logger.Info("connected to nats", "url", cfg.NATSURL)
	default:
		b := feed.NewBroker()
		defer b.Close()
		f = b
	}

	// --- Store ---
	var st store.Store
	switch cfg.StoreDriver {
	case "memory":
		st = store.NewMemStore(cfg.GameID, cfg.DefaultDurationMinutes, f, cfg.FeedChannel, clock, logger)
	default:
		db, err := openSQLite(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("connected to sqlite", "path", cfg.DBPath)

		sqlStore, err := store.NewSQLiteStore(ctx, db, cfg.GameID, cfg.DefaultDurationMinutes, f, cfg.FeedChannel, clock, logger)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		st = sqlStore
		checks["sqlite"] = dbChecker{db}
	}

	if err := server.SeedDemo(ctx, logger, st, cfg.SeedDemo); err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	// --- Engine ---
	eng := engine.New(st, f, clock, logger, engine.Config{
		Channel:        cfg.FeedChannel,
		LivenessWindow: cfg.LivenessWindow,
		AlertDuration:  cfg.AlertDuration,
		ResyncInterval: cfg.ResyncInterval,
	})
	checks["engine"] = eng

	auth, err := server.NewAuth(st, clock, bcrypt.DefaultCost, cfg.AdminPasswords, cfg.VolunteerPasswords)
	if err != nil {
		return fmt.Errorf("preparing auth: %w", err)
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Engine: eng,
		Auth:   auth,
		Checks: checks,
		SPADir: cfg.SPADir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting engine", "feed", cfg.FeedDriver, "channel", cfg.FeedChannel)
		return eng.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}
	db, err := database.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}
	if err := migrations.Run(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// dbChecker adapts *sql.DB to server.Checker.
type dbChecker struct{ db *sql.DB }

func (d dbChecker) Check(ctx context.Context) error { return d.db.PingContext(ctx) }
