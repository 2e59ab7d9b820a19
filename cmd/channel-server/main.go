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

	"github.com/emctoo/channel-server/internal/api"
	"github.com/emctoo/channel-server/internal/config"
	"github.com/emctoo/channel-server/internal/realtime"
	"github.com/emctoo/channel-server/internal/storage"
)

func main() {
	host := flag.String("host", "", "override HOST")
	port := flag.String("port", "", "override PORT")
	redisURL := flag.String("redis-url", "", "override REDIS_URL")
	flag.Parse()

	cfg, err := config.Load(*redisURL)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != "" {
		cfg.Port = *port
	}

	rdb, err := storage.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	srv := realtime.NewServer(cfg, rdb)

	ctx, cancelBootstrap := context.WithCancel(context.Background())
	srv.Bootstrap(ctx)

	router := api.NewRouter(cfg, rdb, srv)

	httpServer := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("channel-server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancelBootstrap()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
