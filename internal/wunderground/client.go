package wunderground

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kaloisi/water-temp/internal/observability/metrics"
	"github.com/kaloisi/water-temp/internal/station"
)

// DefaultAPIBase is the Weather.com PWS API origin.
const DefaultAPIBase = "https://api.weather.com"

// ErrNoObservations is returned when the provider answers successfully but
// the response carries no readings.
var ErrNoObservations = errors.New("no observations in response")

// ClientConfig configures the upstream client.
type ClientConfig struct {
	// GatewayURL is the forwarding gateway base; every provider call is
	// issued as <GatewayURL>?url=<encoded target>. The client never
	// contacts the provider origin directly.
	GatewayURL string

	// APIBase overrides the provider origin embedded in target URLs.
	// Defaults to DefaultAPIBase; tests point it at a stub.
	APIBase string

	// APIKey is the shared PWS key appended to every target URL.
	APIKey string

	Backoff BackoffConfig
}

// Client fetches PWS observations through the forwarding gateway.
type Client struct {
	httpClient *http.Client
	gatewayURL string
	apiBase    string
	apiKey     string
	backoff    BackoffConfig
	circuit    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates an upstream client.
func NewClient(httpClient *http.Client, cfg ClientConfig, logger *slog.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "wunderground",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	if logger == nil {
		logger = slog.Default()
	}

	backoff := cfg.Backoff
	if backoff.InitialInterval <= 0 {
		backoff = BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}
	}

	return &Client{
		httpClient: httpClient,
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/?"),
		apiBase:    strings.TrimRight(apiBase, "/"),
		apiKey:     cfg.APIKey,
		backoff:    backoff,
		circuit:    cb,
		logger:     logger,
	}
}

// FetchCurrent returns the latest reading for one station.
func (c *Client) FetchCurrent(ctx context.Context, st station.Station) (Observation, error) {
	target := c.targetURL("/v2/pws/observations/current", url.Values{
		"stationId": {st.ID},
	})

	obs, err := c.fetchObservations(ctx, "current", target)
	if err != nil {
		return Observation{}, fmt.Errorf("current conditions for %s: %w", st.ID, err)
	}
	if len(obs) == 0 {
		return Observation{}, fmt.Errorf("current conditions for %s: %w", st.ID, ErrNoObservations)
	}
	return obs[0], nil
}

// FetchDay returns all observations for one station on one local calendar
// day, oldest first as the provider emits them. The current day is routed to
// the rapid feed; the dated history endpoint does not reliably carry
// same-day data yet.
func (c *Client) FetchDay(ctx context.Context, st station.Station, date time.Time) ([]Observation, error) {
	var endpoint, target string
	if isToday(date) {
		endpoint = "rapid"
		target = c.targetURL("/v2/pws/observations/all/1day", url.Values{
			"stationId": {st.ID},
		})
	} else {
		endpoint = "history"
		target = c.targetURL("/v2/pws/history/all", url.Values{
			"stationId": {st.ID},
			"date":      {date.Format("20060102")},
		})
	}

	obs, err := c.fetchObservations(ctx, endpoint, target)
	if err != nil {
		return nil, fmt.Errorf("day %s for %s: %w", date.Format("20060102"), st.ID, err)
	}
	return obs, nil
}

func (c *Client) fetchObservations(ctx context.Context, endpoint, target string) ([]Observation, error) {
	start := time.Now()
	resp, err := c.doRequest(ctx, c.proxyURL(target))
	metrics.UpstreamFetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamFetches.WithLabelValues(endpoint, "error").Inc()
		c.logger.Debug("gateway fetch failed", "endpoint", endpoint, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.UpstreamFetches.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	metrics.UpstreamFetches.WithLabelValues(endpoint, "ok").Inc()
	return payload.Observations, nil
}

// targetURL builds the provider URL the gateway will be asked to forward to.
func (c *Client) targetURL(path string, params url.Values) string {
	params.Set("format", "json")
	params.Set("units", "e")
	params.Set("numericPrecision", "decimal")
	if c.apiKey != "" {
		params.Set("apiKey", c.apiKey)
	}
	return fmt.Sprintf("%s%s?%s", c.apiBase, path, params.Encode())
}

func (c *Client) proxyURL(target string) string {
	return c.gatewayURL + "/?url=" + url.QueryEscape(target)
}

func isToday(date time.Time) bool {
	now := time.Now()
	y1, m1, d1 := date.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
