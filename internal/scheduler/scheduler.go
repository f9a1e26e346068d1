package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/kaloisi/water-temp/internal/series"
)

// Scheduler periodically refreshes the live series. Refreshes are already
// mutually exclusive inside the service, so an overlapping manual refresh
// simply causes the timed one to be dropped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *series.Service
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(service *series.Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic refresh job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.interval = 5 * time.Minute
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		// Nothing to refresh before the first load.
		if s.service.Window() == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if _, err := s.service.RefreshSeries(ctx); err != nil {
			if errors.Is(err, series.ErrStaleWindow) {
				return
			}
			s.logger.Warn("scheduled refresh failed", "error", err)
			return
		}
		s.logger.Debug("scheduled refresh completed")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
