package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"attendance-backend/config"
	"attendance-backend/internal/api"
	"attendance-backend/internal/attendance"
	"attendance-backend/internal/broker"
	"attendance-backend/internal/db"
	"attendance-backend/internal/device"
	"attendance-backend/internal/logger"
	"attendance-backend/internal/notification"
	"attendance-backend/internal/reconcile"
	"attendance-backend/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}
	logger.Init(cfg.Log)
	log.Info().Str("path", configPath).Msg("configuration loaded")

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	events := broker.New(cfg.Broker.BufferSize)
	loc := cfg.Device.Location()

	deviceClient := device.NewClient(cfg.Device)
	if deviceClient.MockMode() {
		log.Warn().Msg("device mock mode enabled; no requests reach the terminal")
	}
	processor := attendance.NewProcessor(appStore, events)

	reconciler := reconcile.NewService(cfg.Sync, deviceClient, appStore, events, nil)
	go reconciler.Run(ctx)

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		go notification.NewNotifier(events, pool).Run(ctx)
	} else {
		log.Info().Msg("VAPID keys not configured; anomaly push alerts disabled")
	}

	router := api.NewRouter(api.Deps{
		Store:         appStore,
		Processor:     processor,
		Device:        deviceClient,
		Sync:          reconciler,
		SyncAttempts:  cfg.Sync.MaxAttempts,
		Events:        events,
		Webpush:       webpushOptions,
		Location:      loc,
		DeviceTimeout: cfg.Device.Timeout,
	}, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("timezone", loc.String()).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Live streams only end once their subscriptions close.
	events.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}

	log.Info().Msg("server gracefully stopped")
}
