package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"mariner/internal/identity/finder"
	"mariner/internal/identity/merge"
	"mariner/internal/identity/password"
	"mariner/internal/identity/service"
	"mariner/internal/identity/session"
	"mariner/internal/identity/store"
	"mariner/internal/notify"
	"mariner/internal/platform/config"
	"mariner/internal/platform/httpserver"
	"mariner/internal/platform/logger"
	"mariner/internal/platform/metrics"
	platformredis "mariner/internal/platform/redis"
	"mariner/internal/token"
	httptransport "mariner/internal/transport/http"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()
	m := metrics.New()

	// Account storage: Postgres when configured, in-memory otherwise.
	var (
		accounts   store.AccountStore
		mergeStore store.MergeStore
		db         *sql.DB
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		accounts, mergeStore = pg, pg
		log.Info("account store: postgres")
	} else {
		mem := store.NewMemory()
		accounts, mergeStore = mem, mem
		log.Info("account store: memory", "note", "set MARINER_POSTGRES_DSN for persistence")
	}

	// Session and password-record storage: Redis when configured.
	var (
		sessions service.SessionStore
		pwStore  password.Store
	)
	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		sessions = session.NewRedis(rdb.Client)
		pwStore = password.NewRedis(rdb.Client)
		log.Info("session store: redis")
	} else {
		sessions = session.NewMemory()
		pwStore = password.NewMemory()
		log.Info("session store: memory")
	}

	svc := service.New(
		accounts,
		finder.New(accounts, log, m),
		password.NewGate(pwStore, log, cfg.ResetCodeTTL),
		sessions,
		merge.New(mergeStore, log, m),
		token.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL),
		notify.NewLogNotifier(log),
		log,
		m,
		cfg.MergeSessionTTL,
	)

	deps := httptransport.Deps{
		Identity: svc,
		Logger:   log,
		DB:       db,
	}
	if rdb != nil {
		deps.Redis = rdb
	}
	router := httptransport.NewRouter(deps)
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting mariner identity engine", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
