package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homechat/internal/api/routes"
	"homechat/internal/config"
	"homechat/internal/database"
	"homechat/internal/realtime"
	"homechat/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting homechat server")

	db, err := database.NewMySQLConnection(cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("Failed to migrate schema", "error", err)
		os.Exit(1)
	}

	redisClient, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	roomRepo := repository.NewRoomRepository(db)
	contactRepo := repository.NewContactRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	presenceRepo := repository.NewPresenceRepository(redisClient, db)

	hub := realtime.NewHub(roomRepo, contactRepo, messageRepo, presenceRepo, realtime.HubOptions{
		TypingTimeout:  cfg.Realtime.TypingTimeout,
		SendBufferSize: cfg.Realtime.SendBufferSize,
	}, slog.Default())
	go hub.Run()

	dispatcher := realtime.NewDispatcher(hub, slog.Default())

	router := routes.NewRouter(hub, dispatcher, roomRepo, messageRepo, cfg.JWT.Secret)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
