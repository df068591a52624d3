package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/config"
	"whatsapp-crm-sync/internal/api"
	"whatsapp-crm-sync/internal/dispatch"
	"whatsapp-crm-sync/internal/identity"
	"whatsapp-crm-sync/internal/media"
	"whatsapp-crm-sync/internal/normalize"
	"whatsapp-crm-sync/internal/realtime"
	"whatsapp-crm-sync/internal/store"
	"whatsapp-crm-sync/internal/transport"
	"whatsapp-crm-sync/internal/transport/bridge"
	"whatsapp-crm-sync/internal/transport/vendor"
	"whatsapp-crm-sync/internal/webhook"
	"whatsapp-crm-sync/pkg/logger"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	var (
		active transport.Transport
		admin  *bridge.Client
	)
	switch cfg.TransportMode {
	case config.ModeBridge:
		admin, err = bridge.NewClient(cfg.BridgeURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Bridge client setup failed")
		}
		active = admin
	case config.ModeVendor:
		active, err = vendor.NewClient(db)
		if err != nil {
			log.Fatal().Err(err).Msg("Vendor transport setup failed")
		}
	}
	log.Info().Str("transport", active.Name()).Msg("Transport selected")

	var directory transport.Directory
	if admin != nil {
		directory = admin
	}
	resolver := identity.NewResolver(db, directory, cfg.TransportDomain)
	normalizer := normalize.New(resolver)

	archive, err := media.NewArchive(cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("Media archive setup failed")
	}
	saver, err := media.NewSaver(cfg.MediaDir, archive)
	if err != nil {
		log.Fatal().Err(err).Msg("Media storage setup failed")
	}
	var fetcher media.Fetcher
	if admin != nil {
		fetcher = admin
	}
	proxy, err := media.NewProxy(cfg.MediaDir, fetcher)
	if err != nil {
		log.Fatal().Err(err).Msg("Media proxy setup failed")
	}

	queue, err := realtime.NewQueue(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("Queue setup failed")
	}
	defer queue.Close()
	hub := realtime.NewHub()
	publisher, err := realtime.NewPublisher(hub, queue, cfg.RealtimeWebhookURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Realtime publisher setup failed")
	}

	processor, err := webhook.NewProcessor(cfg.WebhookSecret, db, resolver, normalizer, saver, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("Webhook processor setup failed")
	}
	dispatcher, err := dispatch.New(active, db, resolver, saver, publisher, cfg.PublicBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Dispatcher setup failed")
	}

	router, err := api.NewRouter(api.Deps{
		Config:     cfg,
		Store:      db,
		Transport:  active,
		Admin:      admin,
		Resolver:   resolver,
		Normalizer: normalizer,
		Dispatcher: dispatcher,
		Webhook:    processor,
		Proxy:      proxy,
		Publisher:  publisher,
		Hub:        hub,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Router setup failed")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown incomplete")
	}
}
