package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"easierfocus/internal/auth"
	"easierfocus/internal/config"
	"easierfocus/internal/database"
	"easierfocus/internal/logger"
	"easierfocus/internal/server"
	"easierfocus/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	backend, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		zl.Fatal("open device storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer backend.Close()

	gateway, err := auth.NewGateway(cfg.Identity.URL, cfg.Identity.AnonKey,
		&http.Client{Timeout: cfg.Identity.RequestTimeout})
	if err != nil {
		zl.Fatal("create identity gateway", zap.Error(err))
	}

	service := auth.NewService(
		auth.NewStore(backend, cfg.Storage.Key, zl.Named("store")),
		gateway,
		auth.NewBroadcaster(zl.Named("events")),
		zl.Named("auth"),
	)

	dataClient, err := database.NewClient(cfg.Identity.URL, &http.Client{
		Timeout:   cfg.Identity.RequestTimeout,
		Transport: &auth.Transport{Service: service, AnonKey: cfg.Identity.AnonKey},
	})
	if err != nil {
		zl.Fatal("create data client", zap.Error(err))
	}
	settings := database.NewSettingsStore(dataClient, cfg.Settings.CacheSize, cfg.Settings.CacheTTL)
	journal := database.NewJournalStore(dataClient)

	srv, err := server.New(cfg, service, gateway, settings, journal, zl)
	if err != nil {
		zl.Fatal("create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go purgeOnSignOut(ctx, service, settings)

	state := service.Start(ctx)
	zl.Info("session service ready",
		zap.Bool("authenticated", state.Authenticated()),
		zap.String("refresh_policy", string(service.Policy())))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("starting server", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("run server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown server", zap.Error(err))
	}
	zl.Info("server stopped")
}

// purgeOnSignOut drops cached settings once nobody is signed in.
func purgeOnSignOut(ctx context.Context, service *auth.Service, settings *database.SettingsStore) {
	sub := service.Subscribe(8)
	defer service.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Kind == auth.EventSignedOut {
				settings.Purge()
			}
		}
	}
}
