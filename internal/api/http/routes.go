package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/kaloisi/water-temp/internal/series"
	"github.com/kaloisi/water-temp/internal/station"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, svc *series.Service, registry *station.Registry, defaultDays int) {
	v1 := app.Group("/api/v1")

	v1.Get("/series", func(c *fiber.Ctx) error {
		req, err := parseSeriesQuery(c, defaultDays)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		// Serve the cached series unless the caller asked for a different
		// window; a window change rebuilds from scratch.
		if req.Days == svc.Window() {
			if snap, days, updated, err := svc.Snapshot(); err == nil {
				return c.JSON(seriesResponse(registry, snap, days, updated))
			}
		}

		s, err := svc.LoadSeries(c.Context(), req.Days)
		if err != nil {
			return seriesError(err)
		}

		return c.JSON(seriesResponse(registry, s, req.Days, time.Now()))
	})

	v1.Post("/series/refresh", func(c *fiber.Ctx) error {
		if svc.Window() == 0 {
			return fiber.NewError(fiber.StatusConflict, "no series loaded; load a day window first")
		}

		s, err := svc.RefreshSeries(c.Context())
		if err != nil {
			return seriesError(err)
		}

		_, days, updated, snapErr := svc.Snapshot()
		if snapErr != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to refresh series")
		}
		return c.JSON(seriesResponse(registry, s, days, updated))
	})

	v1.Get("/current", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"stations": svc.CurrentReadings(c.Context()),
		})
	})
}

func seriesError(err error) error {
	switch {
	case errors.Is(err, series.ErrAllStationsFailed):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, series.ErrStaleWindow):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load series")
	}
}

func seriesResponse(registry *station.Registry, s series.Series, days int, updated time.Time) fiber.Map {
	return fiber.Map{
		"stations":    registry.List(),
		"days":        days,
		"lastUpdated": updated,
		"points":      s,
	}
}

// seriesQuery holds query parameters for the series endpoint.
type seriesQuery struct {
	Days int `validate:"min=1,max=45"`
}

func parseSeriesQuery(c *fiber.Ctx, defaultDays int) (seriesQuery, error) {
	q := seriesQuery{Days: defaultDays}

	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("days must be an integer")
		}
		q.Days = n
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}
