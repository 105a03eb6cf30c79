package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carewatch/streaming-console/internal/config"
	"github.com/carewatch/streaming-console/internal/console"
	"github.com/carewatch/streaming-console/internal/logger"
	"github.com/carewatch/streaming-console/internal/media"
	"github.com/carewatch/streaming-console/internal/metrics"
	"github.com/carewatch/streaming-console/internal/protocol"
	"github.com/carewatch/streaming-console/internal/rest"
	"github.com/carewatch/streaming-console/internal/session"
	"github.com/carewatch/streaming-console/internal/tile"
	"github.com/carewatch/streaming-console/pkg/types"
)

var (
	// Command-line flags
	configPath = flag.String("config", "", "Path to YAML config file")
	httpAddr   = flag.String("http", "", "Console HTTP address (overrides config)")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor   = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	// Local .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	logger.Info("Main", "Streaming console starting...")
	logger.Info("Main", "Log level: %s", level)
	logger.Info("Main", "Inference server: %s", cfg.ServerURL)

	m := metrics.New()

	restClient := rest.New(cfg.ServerURL, cfg.Token)
	token := cfg.Token
	if token == "" && cfg.Username != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		token, err = restClient.SignIn(ctx, cfg.Username, cfg.Password)
		cancel()
		if err != nil {
			log.Fatalf("Failed to sign in: %v", err)
		}
		restClient.SetToken(token)
		logger.Info("Main", "Signed in as %s", cfg.Username)
	}

	client, err := protocol.NewClient(cfg.ServerURL, m)
	if err != nil {
		log.Fatalf("Failed to build inference client: %v", err)
	}

	dial := func(ctx context.Context, cameraID, tok string, onMetadata func(*types.InferMetadata), onClose func(error)) tile.Conn {
		return client.Open(ctx, cameraID, tok, onMetadata, onClose)
	}
	openSource := func(cam config.Camera) (media.Source, error) {
		if cam.Mode == "upload" {
			return media.OpenFile(cam.File, cfg.SendWidth, cfg.JPEGQuality)
		}
		return media.OpenDevice(cam.Device, cfg.SendWidth, cfg.JPEGQuality)
	}

	registry := session.NewRegistry()
	feed := tile.NewFeed(0)

	tiles := make([]*tile.Tile, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		t := tile.New(tile.Options{
			Camera:     cam,
			Config:     cfg,
			Registry:   registry,
			Dial:       dial,
			OpenSource: openSource,
			Notifier:   restClient,
			Metrics:    m,
			Feed:       feed,
			Token:      token,
		})
		tiles = append(tiles, t)
		if cam.AutoStart {
			if err := t.Start(); err != nil {
				logger.Error("Main", "Camera %s failed to start: %v", cam.ID, err)
			}
		}
	}

	srv := console.NewServer(tiles, feed, m)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Handler(),
	}
	go func() {
		logger.Info("Main", "Console listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Main", "HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	for _, t := range tiles {
		t.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Console stopped")
}
