package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/xhad/guardian/pkg/config"
	"github.com/xhad/guardian/pkg/session"
	"github.com/xhad/guardian/server"
)

func main() {
	var configPath, addr string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if port := os.Getenv("PORT"); port != "" && addr == "" {
		cfg.Server.Addr = ":" + port
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := session.FromConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to build session", "err", err)
		os.Exit(2)
	}
	if err := s.Init(ctx); err != nil {
		logger.Error("failed to index knowledge base", "err", err)
		os.Exit(2)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewWSServer(s, server.Config{
			Scraper:        session.UploadScraperConfig(cfg),
			UploadDir:      cfg.Server.UploadDir,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting websocket server", "addr", cfg.Server.Addr, "session", s.ID)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
