package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kaloisi/water-temp/internal/observability/metrics"
)

// bodyPreviewLimit bounds the bodyPreview field of debug responses.
const bodyPreviewLimit = 500

// Gateway forwards requests to a single allow-listed upstream host. It holds
// no per-request state; every request is validated and forwarded on its own.
type Gateway struct {
	allowedHost string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates a Gateway that forwards only to allowedHost.
func New(allowedHost string, httpClient *http.Client, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		allowedHost: allowedHost,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Register wires the forwarding handlers into the app. Preflight is answered
// before any validation; the allow-list must never fail an OPTIONS request.
func (g *Gateway) Register(app *fiber.App) {
	app.Use(corsHeaders)
	app.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/", g.forward)
}

// corsHeaders makes every response readable from any origin. Access control
// is the allow-list on the forwarding target, not a restriction on callers.
func corsHeaders(c *fiber.Ctx) error {
	origin := c.Get(fiber.HeaderOrigin)
	if origin == "" {
		origin = "*"
	}
	c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
	c.Set(fiber.HeaderAccessControlAllowMethods, "GET, OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type")
	return c.Next()
}

func (g *Gateway) forward(c *fiber.Ctx) error {
	target := c.Query("url")
	if target == "" {
		metrics.GatewayForwards.WithLabelValues("missing_url").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing ?url= parameter",
		})
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		metrics.GatewayForwards.WithLabelValues("invalid_url").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid URL",
		})
	}

	if !strings.EqualFold(parsed.Hostname(), g.allowedHost) {
		metrics.GatewayForwards.WithLabelValues("denied").Inc()
		g.logger.Warn("forward denied", "host", parsed.Hostname())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Domain not allowed",
		})
	}

	req, err := http.NewRequestWithContext(c.Context(), http.MethodGet, target, nil)
	if err != nil {
		metrics.GatewayForwards.WithLabelValues("invalid_url").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid URL",
		})
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "identity")
	// Current-conditions and today queries must never be served stale by an
	// intermediary cache between here and the provider.
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	metrics.GatewayUpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayForwards.WithLabelValues("upstream_error").Inc()
		g.logger.Error("upstream fetch failed", "target", target, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "Upstream fetch failed",
			"message": err.Error(),
		})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GatewayForwards.WithLabelValues("upstream_error").Inc()
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "Upstream fetch failed",
			"message": err.Error(),
		})
	}

	metrics.GatewayForwards.WithLabelValues("forwarded").Inc()

	if c.Request().URI().QueryArgs().Has("debug") {
		headers := make(map[string]string, len(resp.Header))
		for k, v := range resp.Header {
			headers[k] = strings.Join(v, ", ")
		}
		preview := string(body)
		if len(preview) > bodyPreviewLimit {
			preview = preview[:bodyPreviewLimit]
		}
		return c.JSON(fiber.Map{
			"upstreamStatus":  resp.StatusCode,
			"upstreamHeaders": headers,
			"bodyLength":      len(body),
			"bodyPreview":     preview,
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(resp.StatusCode).Send(body)
}
