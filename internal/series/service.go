package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kaloisi/water-temp/internal/station"
	"github.com/kaloisi/water-temp/internal/wunderground"
)

var (
	// ErrAllStationsFailed is returned when no station produced any data for
	// a load or refresh. On refresh the previous series is left untouched;
	// stale-but-valid beats empty.
	ErrAllStationsFailed = errors.New("all station fetches failed")

	// ErrStaleWindow is returned when the day window changed while a fetch
	// was in flight; the fetched result is discarded, never merged.
	ErrStaleWindow = errors.New("day window changed during fetch")

	// ErrNoData is returned when no series has been loaded yet.
	ErrNoData = errors.New("no series loaded")
)

// Fetcher is the upstream client surface the service needs.
type Fetcher interface {
	FetchCurrent(ctx context.Context, st station.Station) (wunderground.Observation, error)
	FetchDay(ctx context.Context, st station.Station, date time.Time) ([]wunderground.Observation, error)
}

// Reading is one station's latest conditions, or the reason they are missing.
type Reading struct {
	Station      station.Station           `json:"station"`
	DashboardURL string                    `json:"dashboardUrl"`
	Observation  *wunderground.Observation `json:"observation"`
	Temperature  *float64                  `json:"temperature,omitempty"`
	Error        string                    `json:"error,omitempty"`
}

// Service owns the live series for the viewing session and orchestrates
// fetching. The series is rebuilt on a window change, extended in place on
// refresh, and never persisted.
type Service struct {
	registry *station.Registry
	client   Fetcher
	logger   *slog.Logger

	mu          sync.Mutex
	series      Series
	window      int
	generation  uint64
	refreshing  bool
	lastUpdated time.Time
}

// NewService creates a Service.
func NewService(registry *station.Registry, client Fetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		client:   client,
		logger:   logger,
	}
}

// LoadSeries rebuilds the series from scratch over the given day window.
// Current-conditions and historical fetches run as two concurrent families;
// stations within a family are fetched independently and fail independently.
func (s *Service) LoadSeries(ctx context.Context, days int) (Series, error) {
	if days < 1 || days > 45 {
		return nil, fmt.Errorf("day window must be between 1 and 45, got %d", days)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	var (
		wg      sync.WaitGroup
		current map[string]wunderground.Observation
		batches map[string][]wunderground.Observation
		batchOK map[string]bool
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		current, _ = s.fetchAllCurrent(ctx)
	}()
	go func() {
		defer wg.Done()
		batches, batchOK = s.fetchBatches(ctx, days)
	}()
	wg.Wait()

	if s.allFailed(batchOK, current) {
		return nil, ErrAllStationsFailed
	}

	built := BuildSeries(batches)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, ErrStaleWindow
	}
	s.series = built
	s.window = days
	s.lastUpdated = time.Now()
	return built, nil
}

// RefreshSeries re-fetches the most recent day plus current conditions and
// upserts them into the existing series. Only one refresh runs at a time; a
// request arriving while one is in flight is dropped and answered with the
// current series.
func (s *Service) RefreshSeries(ctx context.Context) (Series, error) {
	s.mu.Lock()
	if s.refreshing {
		cur := s.series
		s.mu.Unlock()
		return cur, nil
	}
	s.refreshing = true
	gen := s.generation
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	now := time.Now()

	var (
		wg      sync.WaitGroup
		current map[string]wunderground.Observation
		batches map[string][]wunderground.Observation
		batchOK map[string]bool
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		current, _ = s.fetchAllCurrent(ctx)
	}()
	go func() {
		defer wg.Done()
		batches, batchOK = s.fetchBatches(ctx, 1)
	}()
	wg.Wait()

	if s.allFailed(batchOK, current) {
		s.mu.Lock()
		prev := s.series
		s.mu.Unlock()
		return prev, ErrAllStationsFailed
	}

	nowPoint := buildNowPoint(now, current)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return s.series, ErrStaleWindow
	}
	s.series = UpsertRecent(s.series, batches, nowPoint)
	s.lastUpdated = now
	return s.series, nil
}

// CurrentReadings fetches the latest observation for every station. Failures
// are isolated per station; one station's outage never blanks the others.
func (s *Service) CurrentReadings(ctx context.Context) map[string]Reading {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	readings := make(map[string]Reading, len(s.registry.List()))

	for _, st := range s.registry.List() {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()

			r := Reading{Station: st, DashboardURL: st.DashboardURL()}

			obs, err := s.client.FetchCurrent(ctx, st)
			if err != nil {
				s.logger.Warn("current conditions fetch failed", "station", st.ID, "error", err)
				r.Error = err.Error()
			} else {
				r.Observation = &obs
				if temp, ok := obs.Temperature(); ok {
					r.Temperature = &temp
				}
			}

			mu.Lock()
			readings[st.ID] = r
			mu.Unlock()
		}()
	}
	wg.Wait()

	return readings
}

// Snapshot returns the series as last loaded or refreshed.
func (s *Service) Snapshot() (Series, int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == 0 {
		return nil, 0, time.Time{}, ErrNoData
	}
	return s.series, s.window, s.lastUpdated, nil
}

// Window returns the currently loaded day window, 0 before the first load.
func (s *Service) Window() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

func (s *Service) fetchAllCurrent(ctx context.Context) (map[string]wunderground.Observation, map[string]string) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	results := make(map[string]wunderground.Observation)
	errs := make(map[string]string)

	for _, st := range s.registry.List() {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()

			obs, err := s.client.FetchCurrent(ctx, st)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("current conditions fetch failed", "station", st.ID, "error", err)
				errs[st.ID] = err.Error()
				return
			}
			results[st.ID] = obs
		}()
	}
	wg.Wait()

	return results, errs
}

// fetchBatches fetches the last `days` calendar days for every station.
// Stations run concurrently; days within one station run sequentially. A day
// that fails is logged and skipped, so a partially failed station still
// contributes what it has — and a fully failed one contributes an empty
// batch, which the engine treats the same as "nothing to report".
func (s *Service) fetchBatches(ctx context.Context, days int) (map[string][]wunderground.Observation, map[string]bool) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	batches := make(map[string][]wunderground.Observation)
	succeeded := make(map[string]bool)

	now := time.Now()

	for _, st := range s.registry.List() {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()

			var batch []wunderground.Observation
			ok := false
			for i := 0; i < days; i++ {
				date := now.AddDate(0, 0, -i)
				obs, err := s.client.FetchDay(ctx, st, date)
				if err != nil {
					s.logger.Warn("day fetch failed",
						"station", st.ID, "date", date.Format("20060102"), "error", err)
					continue
				}
				ok = true
				batch = append(batch, obs...)
			}

			mu.Lock()
			batches[st.ID] = batch
			succeeded[st.ID] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()

	return batches, succeeded
}

// allFailed reports whether no station produced any data in either family.
func (s *Service) allFailed(batchOK map[string]bool, current map[string]wunderground.Observation) bool {
	for _, st := range s.registry.List() {
		if batchOK[st.ID] {
			return false
		}
		if _, ok := current[st.ID]; ok {
			return false
		}
	}
	return true
}

// buildNowPoint turns current conditions into a synthetic series point keyed
// by the fetch instant. Nil when no station has a usable temperature.
func buildNowPoint(now time.Time, current map[string]wunderground.Observation) *Point {
	temps := make(map[string]float64)
	for id, obs := range current {
		if t, ok := obs.Temperature(); ok {
			temps[id] = t
		}
	}
	if len(temps) == 0 {
		return nil
	}
	return &Point{
		Time:         now.Format(time.RFC3339),
		Timestamp:    now.UnixMilli(),
		Temperatures: temps,
	}
}
