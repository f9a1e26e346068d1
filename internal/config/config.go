package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kaloisi/water-temp/internal/station"
)

// Default stations match the deployed dashboard: a water probe and an air probe.
var defaultStations = []station.Station{
	{ID: "KMAWEBST38", DisplayName: "Water Temp"},
	{ID: "KMAWEBST37", DisplayName: "Air Temp"},
}

type AppConfig struct {
	// APIKey is the shared Weather.com PWS key attached to every upstream call.
	APIKey string

	// GatewayURL is the base URL of the forwarding gateway; the upstream
	// client sends every provider request as <GatewayURL>?url=<target>.
	GatewayURL string

	// AllowedHost is the single upstream hostname the gateway will forward to.
	AllowedHost string

	// Stations to plot.
	Stations []station.Station

	// DayWindow is the default full-load window in days (1-45).
	DayWindow int

	// RefreshInterval controls the auto-refresh cadence.
	RefreshInterval time.Duration

	HTTPTimeout time.Duration

	Port        string
	GatewayPort string

	AppEnv   string
	LogLevel string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.APIKey = os.Getenv("WU_API_KEY")
	cfg.GatewayURL = getenvDefault("GATEWAY_URL", "http://localhost:8081/")
	cfg.AllowedHost = getenvDefault("GATEWAY_ALLOWED_HOST", "api.weather.com")

	cfg.DayWindow = getenvInt("DAY_WINDOW", 3)
	if cfg.DayWindow < 1 || cfg.DayWindow > 45 {
		return nil, fmt.Errorf("DAY_WINDOW must be between 1 and 45, got %d", cfg.DayWindow)
	}

	intervalStr := getenvDefault("REFRESH_INTERVAL", "5m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
	}
	cfg.RefreshInterval = interval

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.GatewayPort = getenvDefault("GATEWAY_PORT", "8081")
	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	stations, err := loadStations()
	if err != nil {
		return nil, err
	}
	cfg.Stations = stations

	return cfg, nil
}

// loadStations resolves the station list: STATIONS_FILE (yaml) wins over the
// STATIONS env var; with neither set, the built-in pair is used.
func loadStations() ([]station.Station, error) {
	if path := os.Getenv("STATIONS_FILE"); path != "" {
		return loadStationsFile(path)
	}

	raw := os.Getenv("STATIONS")
	if raw == "" {
		return defaultStations, nil
	}

	var stations []station.Station
	for _, entry := range strings.Split(raw, ",") {
		id, name, found := strings.Cut(strings.TrimSpace(entry), ":")
		if !found || id == "" {
			return nil, fmt.Errorf("invalid STATIONS entry %q; want id:name", entry)
		}
		if name == "" {
			name = id
		}
		stations = append(stations, station.Station{ID: id, DisplayName: name})
	}

	return stations, nil
}

func loadStationsFile(path string) ([]station.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}

	var doc struct {
		Stations []station.Station `yaml:"stations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse stations file %s: %w", path, err)
	}
	if len(doc.Stations) == 0 {
		return nil, fmt.Errorf("stations file %s lists no stations", path)
	}

	return doc.Stations, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
