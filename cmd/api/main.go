// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/studysync/coordination-platform/internal/bus"
	"github.com/studysync/coordination-platform/internal/config"
	"github.com/studysync/coordination-platform/internal/gateway"
	"github.com/studysync/coordination-platform/internal/handler"
	"github.com/studysync/coordination-platform/internal/middleware"
	"github.com/studysync/coordination-platform/internal/sideeffect"
	"github.com/studysync/coordination-platform/internal/store"
	"github.com/studysync/coordination-platform/pkg/logger"
	"github.com/studysync/coordination-platform/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "coordination-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to the real-time gateway
	gw, err := gateway.Connect(ctx, gateway.Config{
		URL:      cfg.GatewayInternalURL,
		CAFile:   cfg.GatewayCAFile,
		CertFile: cfg.GatewayCertFile,
		KeyFile:  cfg.GatewayKeyFile,
		Token:    cfg.GatewayToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to gateway", zap.Error(err))
		os.Exit(1)
	}
	defer gw.Close()

	// Open the persistence store
	st, err := store.Open(cfg.StorePath, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Event bus and side-effect bindings
	eventBus := bus.New(log)

	var notifier sideeffect.Notifier = sideeffect.NopNotifier{}
	if cfg.NotifierURL != "" {
		notifier = sideeffect.NewHTTPNotifier(cfg.NotifierURL)
	}

	effects := sideeffect.NewRegistry(log)
	sideeffect.RegisterDefaults(effects, sideeffect.Deps{
		Notifier:  notifier,
		Publisher: gateway.NewPublisher(gw),
		Store:     st,
		Logger:    log,
	})
	detachEffects := effects.Attach(eventBus)
	defer detachEffects()

	// Handlers
	healthHandler := handler.NewHealthHandler(gw)
	negotiateHandler := handler.NewNegotiateHandler(cfg.GatewayURL, cfg.GrantSecret, cfg.GrantTTL, st, log)
	eventsHandler := handler.NewEventsHandler(eventBus, log)

	// Router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/realtime/negotiate", negotiateHandler.Negotiate)
		r.Post("/events", eventsHandler.Emit)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Let in-flight side effects finish before the store and gateway go
	// away underneath them.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.EffectDrainTimeout)
	defer cancelDrain()
	if err := effects.Drain(drainCtx); err != nil {
		log.Warn("side effects did not drain cleanly", zap.Error(err))
	}

	log.Info("server stopped")
}
