package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/kaloisi/water-temp/internal/api/http"
	"github.com/kaloisi/water-temp/internal/config"
	"github.com/kaloisi/water-temp/internal/logging"
	"github.com/kaloisi/water-temp/internal/observability/metrics"
	"github.com/kaloisi/water-temp/internal/scheduler"
	"github.com/kaloisi/water-temp/internal/series"
	"github.com/kaloisi/water-temp/internal/station"
	"github.com/kaloisi/water-temp/internal/wunderground"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slogger := logging.New(cfg.AppEnv, cfg.LogLevel, "water-temp")

	registry, err := station.NewRegistry(cfg.Stations)
	if err != nil {
		log.Fatalf("invalid station configuration: %v", err)
	}

	// Shared HTTP client for calls to the gateway.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	if cfg.APIKey == "" {
		slogger.Warn("WU_API_KEY is not set; upstream calls will be rejected by the provider")
	}

	client := wunderground.NewClient(httpClient, wunderground.ClientConfig{
		GatewayURL: cfg.GatewayURL,
		APIKey:     cfg.APIKey,
	}, slogger)

	svc := series.NewService(registry, client, slogger)

	// Load the default window up front so the first request is served warm.
	// A cold start with the provider down is not fatal; the first successful
	// request or scheduled refresh recovers.
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 2*time.Minute)
	if _, err := svc.LoadSeries(loadCtx, cfg.DayWindow); err != nil {
		slogger.Warn("initial series load failed", "days", cfg.DayWindow, "error", err)
	}
	cancelLoad()

	sched := scheduler.New(svc, cfg.RefreshInterval, slogger)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "water-temp",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "water-temp",
		})
	})
	app.Get("/metrics", metrics.Handler())

	httpapi.RegisterRoutes(app, svc, registry, cfg.DayWindow)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slogger.Error("fiber server stopped", "error", err)
		}
	}()
	slogger.Info("listening", "port", cfg.Port, "stations", len(cfg.Stations), "days", cfg.DayWindow)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slogger.Error("error during shutdown", "error", err)
	}
}
