package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fathomlab/fathom/api"
	"github.com/fathomlab/fathom/config"
	"github.com/fathomlab/fathom/internal/adapter/chart"
	"github.com/fathomlab/fathom/internal/adapter/generator"
	"github.com/fathomlab/fathom/internal/adapter/relay"
	"github.com/fathomlab/fathom/internal/adapter/search"
	"github.com/fathomlab/fathom/internal/engine"
	"github.com/fathomlab/fathom/internal/registry"
	"github.com/fathomlab/fathom/internal/service"
	"github.com/fathomlab/fathom/policy"
	"github.com/fathomlab/fathom/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting fathom...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Generator URL: %s", cfg.GeneratorURL)
	log.Printf("Search URL: %s", cfg.SearchURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize capability adapters
	gen := generator.NewGenerator(cfg.GeneratorURL, cfg.GeneratorFallbackURL, cfg.GeneratorAPIKey, cfg.GenerateTimeout)
	provider := search.NewProvider(cfg.SearchURL, cfg.SearchTimeout)
	charts := chart.NewBuilder()
	relayClient := relay.NewClient(cfg.RelayURL)

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize registry and engine
	reg := registry.New(db)
	eng := engine.New(gen, provider, charts, policyEngine, reg, engine.Options{
		SearchTimeout:    cfg.SearchTimeout,
		SummaryMaxChars:  cfg.SummaryMaxChars,
		SectionQueueSize: cfg.SectionQueueSize,
		FlushThreshold:   cfg.FlushThreshold,
	})

	// Initialize service
	svc := service.New(db, reg, eng, relayClient, cfg)

	// Initialize handler
	h := api.NewHandler(svc, cfg)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Routes
	h.RegisterRoutes(e)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down fathom...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Fathom stopped")
}
