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

	"github.com/carnegiemellonracing/PiDAQ/internal/broker"
	"github.com/carnegiemellonracing/PiDAQ/internal/config"
	"github.com/carnegiemellonracing/PiDAQ/internal/coordinator"
	"github.com/carnegiemellonracing/PiDAQ/internal/database"
	"github.com/carnegiemellonracing/PiDAQ/internal/dispatch"
	"github.com/carnegiemellonracing/PiDAQ/internal/hub"
	"github.com/carnegiemellonracing/PiDAQ/internal/ingest"
	"github.com/carnegiemellonracing/PiDAQ/internal/mqtt"
	"github.com/carnegiemellonracing/PiDAQ/internal/presence"
	"github.com/carnegiemellonracing/PiDAQ/internal/publish"
	"github.com/carnegiemellonracing/PiDAQ/internal/session"
	"github.com/carnegiemellonracing/PiDAQ/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, cfg.Logger)

	store := session.NewStore()
	registry := presence.NewRegistry()
	pipeline := ingest.NewPipeline(store)

	observers := hub.NewHub(cfg.Logger)
	publisher := publish.NewPublisher(registry, store, observers)

	tee := broker.NewTee(cfg)
	defer tee.Close()
	mirror := database.NewMirror(cfg)
	defer mirror.Close()
	archive, err := storage.NewArchive(cfg)
	if err != nil {
		cfg.Logger.Fatalf("archive init error: %v", err)
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		cfg.Logger.Fatalf("archive bucket error: %v", err)
	}

	commander := mqtt.NewCommander(cfg.MQTTCommandTopic, cfg.MQTTQoS, cfg.Logger)
	dispatcher := dispatch.NewDispatcher(store, registry, commander, publisher, cfg.Logger)

	coord := coordinator.New(cfg, dispatcher, pipeline, publisher, tee, mirror, archive)
	go coord.Run(ctx)

	client := mqtt.BuildClient(cfg, coord.HandleStatus, coord.HandleData)
	commander.Bind(client)
	mqtt.ConnectWithBackoff(ctx, cfg, client, 2*time.Second, 30*time.Second)
	defer client.Disconnect(250)

	observers.OnJoin = coord.HandleObserverJoin
	observers.OnRequest = coord.HandleObserverRequest

	mux := http.NewServeMux()
	mux.Handle("/ws", observers)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		cfg.Logger.Printf("[http] listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.Logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cfg.Logger.Println("coordinator stopped")
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *log.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Printf("received signal: %v — shutting down...", s)
		cancel()
	}()
}
