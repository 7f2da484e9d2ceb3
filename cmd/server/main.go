package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/TaeDongUm/devCampHub/internal/adapters/http"
	wssignal "github.com/TaeDongUm/devCampHub/internal/adapters/signal"
	"github.com/TaeDongUm/devCampHub/internal/auth"
	"github.com/TaeDongUm/devCampHub/internal/broker"
	"github.com/TaeDongUm/devCampHub/internal/config"
	"github.com/TaeDongUm/devCampHub/internal/presence"
	"github.com/TaeDongUm/devCampHub/internal/reconcile"
	"github.com/TaeDongUm/devCampHub/internal/relay"
	"github.com/TaeDongUm/devCampHub/internal/store"
	"github.com/TaeDongUm/devCampHub/internal/stream"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	kv, err := store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer kv.Close()

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	repo := stream.NewSQLRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	pubsub := broker.NewRedisBroker(kv.Client())
	registry := presence.NewRegistry(kv)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	tracker := stream.NewTracker(kv, repo, repo, stream.WithTTL(cfg.HeartbeatTTL))
	rel := relay.NewRelay(registry, pubsub)
	reconciler := reconcile.NewReconciler(registry, rel, repo)
	sweeper := reconcile.NewSweeper(tracker, repo, cfg.SweepInterval)

	ctrl := wssignal.NewController(registry, rel, reconciler, verifier, pubsub, cfg.ReadLimit, cfg.PingPeriod)

	r := router.SetupRouter(ctx, cfg, ctrl, tracker, verifier)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("devCampHub signal server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Run(gctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}
