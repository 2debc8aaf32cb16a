// Package main is the MoneyBee server entry point: wires Postgres, Redis,
// and NATS clients, the collaborator HTTP clients and their circuit
// breakers, the Transfer Engine, the Customer-Event Reactor, and the
// Admission Filter, then serves the HTTP API, following this codebase's
// context-cancellation-plus-signal.Notify graceful shutdown shape.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/selcukyavuz/moneybee/api/handlers"
	"github.com/selcukyavuz/moneybee/api/middleware"
	"github.com/selcukyavuz/moneybee/internal/admission"
	"github.com/selcukyavuz/moneybee/internal/breaker"
	"github.com/selcukyavuz/moneybee/internal/cache"
	"github.com/selcukyavuz/moneybee/internal/collaborators"
	"github.com/selcukyavuz/moneybee/internal/config"
	"github.com/selcukyavuz/moneybee/internal/engine"
	"github.com/selcukyavuz/moneybee/internal/events"
	"github.com/selcukyavuz/moneybee/internal/lock"
	"github.com/selcukyavuz/moneybee/internal/rdb"
	"github.com/selcukyavuz/moneybee/internal/reactor"
	"github.com/selcukyavuz/moneybee/internal/store/postgres"
)

func main() {
	log.Println("🚀 Starting MoneyBee transfer backplane...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()

	pgStore, err := postgres.NewStore(ctx, postgres.DefaultConfig(cfg.PostgresDSN))
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}

	redisClient, err := rdb.NewClient(ctx, rdb.DefaultConfig(cfg.RedisAddr))
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	bus, err := events.Connect(ctx, events.DefaultConfig(cfg.NatsURL))
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer bus.Close()
	if err := bus.SetupStream(ctx); err != nil {
		log.Fatalf("nats: setup stream: %v", err)
	}
	publisher := events.NewPublisher(bus)

	locker := lock.New(redisClient.Raw())
	apiKeyCache := cache.NewRedis(redisClient.Raw())

	customerBrk := breaker.New(redisClient.Raw())
	fraudBrk := breaker.New(redisClient.Raw())
	fxBrk := breaker.New(redisClient.Raw())
	authBrk := breaker.New(redisClient.Raw())

	var customer collaborators.Customer = collaborators.NewHTTPCustomerClient(cfg.CustomerServiceURL, cfg.CollaboratorTimeout, cfg.CollaboratorRetryAttempts, customerBrk)
	var fraud collaborators.Fraud = collaborators.NewHTTPFraudClient(cfg.FraudServiceURL, cfg.CollaboratorTimeout, cfg.CollaboratorRetryAttempts, fraudBrk)
	var fx collaborators.ExchangeRate = collaborators.NewHTTPExchangeRateClient(cfg.ExchangeRateServiceURL, cfg.ExchangeRateAPIKey, cfg.CollaboratorTimeout, cfg.CollaboratorRetryAttempts, fxBrk)
	var authClient collaborators.Auth = collaborators.NewHTTPAuthClient(cfg.AuthServiceURL, cfg.CollaboratorTimeout, cfg.CollaboratorRetryAttempts, authBrk)

	eng := engine.New(cfg, pgStore, locker, customer, fraud, fx, publisher)
	filter := admission.New(cfg, authClient, apiKeyCache)

	r, err := reactor.New(ctx, bus, eng, reactor.DefaultConfig())
	if err != nil {
		log.Fatalf("reactor: %v", err)
	}
	r.Start()
	defer r.Stop()

	transferHandler := handlers.NewTransferHandler(eng, cfg)
	receiptHandler := handlers.NewReceiptHandler(eng)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("POST /api/transfers", transferHandler.Create)
	mux.HandleFunc("POST /api/transfers/{code}/complete", transferHandler.Complete)
	mux.HandleFunc("POST /api/transfers/{code}/cancel", transferHandler.Cancel)
	mux.HandleFunc("GET /api/transfers/customer/{id}", transferHandler.ListByCustomer)
	mux.HandleFunc("GET /api/transfers/daily-limit/{id}", transferHandler.DailyLimit)
	mux.HandleFunc("GET /api/transfers/{code}/receipt", receiptHandler.Download)
	mux.HandleFunc("GET /api/transfers/{code}", transferHandler.Get)

	handler := middleware.Chain(
		middleware.SecurityHeaders,
		middleware.InputValidation,
		middleware.CSRFMiddleware,
		middleware.RequireAPIKey(cfg, filter),
	)(mux)

	server := &http.Server{
		Addr:    ":8080",
		Handler: handler,
	}

	go func() {
		log.Println("📡 HTTP server listening on :8080")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
