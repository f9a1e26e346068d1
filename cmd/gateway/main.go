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

	"github.com/kaloisi/water-temp/internal/config"
	"github.com/kaloisi/water-temp/internal/gateway"
	"github.com/kaloisi/water-temp/internal/logging"
	"github.com/kaloisi/water-temp/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slogger := logging.New(cfg.AppEnv, cfg.LogLevel, "gateway")

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	app := fiber.New(fiber.Config{
		AppName:               "water-temp-gateway",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "water-temp-gateway",
		})
	})
	app.Get("/metrics", metrics.Handler())

	gw := gateway.New(cfg.AllowedHost, httpClient, slogger)
	gw.Register(app)

	go func() {
		if err := app.Listen(":" + cfg.GatewayPort); err != nil {
			slogger.Error("fiber server stopped", "error", err)
		}
	}()
	slogger.Info("gateway listening", "port", cfg.GatewayPort, "allowedHost", cfg.AllowedHost)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slogger.Error("error during shutdown", "error", err)
	}
}
