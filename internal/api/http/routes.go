package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/weatherenergy/pipeline/internal/anomaly"
	"github.com/weatherenergy/pipeline/internal/dataset"
	"github.com/weatherenergy/pipeline/internal/quality"
	"github.com/weatherenergy/pipeline/internal/store"
)

var validate = validator.New()

// Reader is the read-only view the dashboard has over persisted pipeline
// artifacts. There is no write path back into the pipeline.
type Reader interface {
	LoadMerged() (dataset.MergedDataset, error)
	LoadQualityReport() (quality.Report, error)
	LoadAnomalies() ([]anomaly.Record, error)
}

// RegisterRoutes wires the JSON API handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, st Reader) {
	v1 := app.Group("/api/v1")

	v1.Get("/readings", func(c *fiber.Ctx) error {
		var req readingsQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ds, err := st.LoadMerged()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no merged dataset; run the pipeline first")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load merged dataset")
		}

		filtered := req.filter(ds)
		return c.JSON(fiber.Map{
			"count":    len(filtered),
			"readings": filtered,
		})
	})

	v1.Get("/quality", func(c *fiber.Ctx) error {
		rep, err := st.LoadQualityReport()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no quality report; run the pipeline first")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load quality report")
		}
		return c.JSON(rep)
	})

	v1.Get("/anomalies", func(c *fiber.Ctx) error {
		recs, err := st.LoadAnomalies()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no anomalies file; run the pipeline first")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load anomalies")
		}

		if city := c.Query("city"); city != "" {
			var filtered []anomaly.Record
			for _, r := range recs {
				if r.City == city {
					filtered = append(filtered, r)
				}
			}
			recs = filtered
		}

		return c.JSON(fiber.Map{
			"count":     len(recs),
			"anomalies": toAnomalyResponses(recs),
		})
	})

	v1.Get("/cities", func(c *fiber.Ctx) error {
		ds, err := st.LoadMerged()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no merged dataset; run the pipeline first")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load merged dataset")
		}
		return c.JSON(fiber.Map{"cities": ds.Cities()})
	})
}

// readingsQuery holds the filter parameters for the readings endpoint.
type readingsQuery struct {
	City string
	From time.Time
	To   time.Time `validate:"omitempty,gtefield=From"`
}

func (q *readingsQuery) bind(c *fiber.Ctx) error {
	q.City = c.Query("city")

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := parseTime(fromStr)
		if err != nil {
			return err
		}
		q.From = from
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := parseTime(toStr)
		if err != nil {
			return err
		}
		q.To = to
	}

	return validate.Struct(q)
}

func (q readingsQuery) filter(ds dataset.MergedDataset) dataset.MergedDataset {
	out := make(dataset.MergedDataset, 0, len(ds))
	for _, r := range ds {
		if q.City != "" && r.City != q.City {
			continue
		}
		if !q.From.IsZero() && r.Date.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && r.Date.After(q.To) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// anomalyResponse exposes anomaly records with the same field names as the
// persisted CSV.
type anomalyResponse struct {
	City              string  `json:"city"`
	Date              string  `json:"date"`
	AvgTempF          float64 `json:"avg_temp_f"`
	TempDeltaF        float64 `json:"temp_delta_f"`
	EnergyConsumption float64 `json:"energy_consumption"`
	Score             float64 `json:"score"`
}

func toAnomalyResponses(recs []anomaly.Record) []anomalyResponse {
	out := make([]anomalyResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, anomalyResponse{
			City:              r.City,
			Date:              r.Date.Format("2006-01-02"),
			AvgTempF:          r.AvgTempF,
			TempDeltaF:        r.TempDeltaF,
			EnergyConsumption: r.EnergyConsumption,
			Score:             r.Score,
		})
	}
	return out
}

// parseTime accepts RFC3339, plain dates, or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339, YYYY-MM-DD or unix seconds")
}
