// README: Entry point; loads config, wires the turn pipeline and stores, starts the HTTP server and the session janitor.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chatmap/internal/ai"
	"chatmap/internal/config"
	httptransport "chatmap/internal/http"
	"chatmap/internal/http/handlers"
	"chatmap/internal/infra"
	"chatmap/internal/modules/chat"
	"chatmap/internal/modules/geo"
	"chatmap/internal/modules/history"
	"chatmap/internal/modules/mapstate"
	"chatmap/internal/modules/turn"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, infra.FirebaseConfig{
			ProjectID:       cfg.Firebase.ProjectID,
			CredentialsFile: cfg.Firebase.CredentialsFile,
			CheckRevoked:    cfg.Firebase.CheckRevoked,
		})
		if err != nil {
			logger.WithError(err).Fatal("firebase init")
		}
	}

	reg := infra.NewMetricsRegistry()
	provider := ai.NewRouter(ai.NewOpenAIClient(nil, logger), ai.NewGeminiClient())
	deps := turn.Deps{
		Generator: chat.NewGenerator(provider, logger),
		Extractor: geo.NewExtractor(provider, geo.Options{Strict: cfg.Extract.Strict, Timeout: cfg.Extract.Timeout}, logger),
		Metrics:   turn.NewMetrics(reg),
		Logger:    logger,
	}

	var nearby handlers.NearbyFinder
	if cfg.Redis.Addr != "" {
		redisClient := infra.NewRedis(cfg.Redis.Addr)
		defer redisClient.Close()
		if err := infra.PingRedis(ctx, redisClient); err != nil {
			logger.WithError(err).Fatal("redis")
		}
		snapshots := mapstate.NewStore(redisClient)
		deps.Snapshots = snapshots
		nearby = snapshots
	}

	var store history.Store
	if cfg.History.DSN != "" {
		store, err = history.Open(ctx, cfg.History.DSN)
		if err != nil {
			logger.WithError(err).Fatal("history store")
		}
		defer store.Close()
		deps.Recorder = store
	}

	sessions := turn.NewManager(deps, cfg.Sessions.IdleTTL)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Sessions:  sessions,
		Endpoints: handlers.Endpoints{Default: cfg.Model, Profiles: cfg.Profiles},
		History:   store,
		Nearby:    nearby,
		Verifier:  verifier,
		Metrics:   reg,
		Logger:    logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.RunJanitor(gctx)
		return nil
	})
	g.Go(func() error {
		logger.WithFields(map[string]any{
			"addr":     cfg.HTTP.Addr,
			"provider": cfg.Model.Provider,
			"profiles": cfg.ProfileNames(),
			"history":  cfg.History.DSN != "",
			"redis":    cfg.Redis.Addr != "",
			"auth":     verifier != nil,
		}).Info("chatmap-api: listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Closing sessions ends open event streams so Shutdown does not wait on them.
		sessions.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("chatmap-api: stopped")
	}
	logger.Info("chatmap-api: stopped")
}
