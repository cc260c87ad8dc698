package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/misprint/carddrop/internal/adapter/handler"
	"github.com/misprint/carddrop/internal/adapter/storage"
	"github.com/misprint/carddrop/internal/config"
	"github.com/misprint/carddrop/internal/core/domain"
	"github.com/misprint/carddrop/internal/core/service"
	"github.com/misprint/carddrop/internal/port"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)

	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to set up schema: %v", err)
	}
	if err := mysqlAdapter.SeedItem(ctx, domain.Item{
		ID:          cfg.ItemID,
		Name:        cfg.ItemName,
		Description: cfg.ItemDescription,
		ImageURL:    cfg.ItemImageURL,
		Quantity:    cfg.InitialStock,
	}); err != nil {
		log.Fatalf("failed to seed item: %v", err)
	}
	log.Printf("item ready: %s", cfg.ItemID)

	// Initialize Redis. Idempotency checks degrade to disabled when the
	// cache is unreachable; stock correctness does not depend on it.
	var cache port.CacheRepository
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis unavailable, idempotency checks disabled: %v", err)
	} else {
		cache = storage.NewRedisAdapter(rdb)
		log.Println("connected to redis")
	}

	// Initialize hub and service
	hub := service.NewBroadcastHub(mysqlAdapter)
	purchaseService := service.NewPurchaseService(mysqlAdapter, cache, hub, cfg.InitialStock)

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(purchaseService)
	feedHandler := handler.NewLiveFeedHandler(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", httpHandler.HealthCheck)
	mux.HandleFunc("GET /status/{item_id}", httpHandler.Status)
	mux.HandleFunc("POST /buy/{item_id}", httpHandler.Buy)
	mux.HandleFunc("POST /reset/{item_id}", httpHandler.Reset)
	mux.HandleFunc("GET /events", feedHandler.Stream)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
		// Live feed requests inherit this context, so cancel() below
		// unblocks their inbox waits during shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	rdb.Close()
	db.Close()
	log.Println("connections closed")
}
