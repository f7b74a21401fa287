// Application entry point: loads configuration, initializes the logger,
// opens the store, and wires the hub into the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arvhov/chatrelay/internal/api"
	"github.com/arvhov/chatrelay/internal/archive"
	"github.com/arvhov/chatrelay/internal/config"
	"github.com/arvhov/chatrelay/internal/hub"
	"github.com/arvhov/chatrelay/internal/logger"
	"github.com/arvhov/chatrelay/internal/store"
)

func main() {
	cfg := config.NewConfigFromEnv()
	logger.InitLogger(cfg.Log)
	serverLogger := logger.NewLogger("server")
	serverLogger.WithFields(map[string]interface{}{
		"addr":    cfg.Addr,
		"db_path": cfg.DBPath,
		"level":   cfg.Log.Level,
	}).Info("Starting chatrelay")

	messages, err := store.Open(cfg.DBPath)
	if err != nil {
		serverLogger.Fatalf("Opening store: %v", err)
	}

	feed := archive.Connect(cfg.NATSURL, logger.NewLogger("archive"))
	defer feed.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(hub.NewRooms(), messages, feed, cfg, logger.NewLogger("hub"))
	go h.Run(ctx)

	srv := api.NewServer(h, messages, feed, cfg, logger.NewLogger("api"))
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serverLogger.Errorf("HTTP shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		serverLogger.Fatalf("ListenAndServe: %v", err)
	}
	serverLogger.Info("Server stopped")
}
