// Package pipeline orchestrates one batch run: fetch both sources for every
// city, merge, then derive the quality report and anomaly records from the
// persisted dataset. Runs are stateless and idempotent; every stage fully
// overwrites its outputs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weatherenergy/pipeline/internal/anomaly"
	"github.com/weatherenergy/pipeline/internal/config"
	"github.com/weatherenergy/pipeline/internal/dataset"
	"github.com/weatherenergy/pipeline/internal/fetch"
	"github.com/weatherenergy/pipeline/internal/quality"
)

// Store is the persistence contract the pipeline writes through.
type Store interface {
	SaveMerged(ds dataset.MergedDataset) error
	LoadMerged() (dataset.MergedDataset, error)
	SaveQualityReport(rep quality.Report) error
	SaveAnomalies(recs []anomaly.Record) error
	SaveRawWeather(city string, rows []dataset.WeatherRow) error
	SaveRawEnergy(city string, rows []dataset.EnergyRow) error
	SaveCombinedRaw(weather []dataset.WeatherRow, energy []dataset.EnergyRow) error
}

// Stage names accepted by Run.
const (
	StageFetch   = "fetch"
	StageQuality = "quality"
	StageAnomaly = "anomaly"
)

// AllStages runs the full batch in order.
var AllStages = []string{StageFetch, StageQuality, StageAnomaly}

// Service wires sources, store and detector configuration for batch runs.
type Service struct {
	cfg     *config.AppConfig
	weather fetch.WeatherSource
	energy  fetch.EnergySource
	store   Store
	log     *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewService(cfg *config.AppConfig, w fetch.WeatherSource, e fetch.EnergySource, st Store, log *slog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		weather: w,
		energy:  e,
		store:   st,
		log:     log,
		now:     time.Now,
	}
}

// Window returns the rolling fetch window: it ends yesterday, because the
// newest day's data is not reliably published yet, and spans FetchDays days.
func (s *Service) Window() fetch.Window {
	end := dataset.Day(s.now()).AddDate(0, 0, -1)
	return fetch.Window{
		Start: end.AddDate(0, 0, -s.cfg.FetchDays),
		End:   end,
	}
}

// Run executes the named stages in order. Any failure aborts the run; nothing
// is retried here and no partial outputs are committed beyond the stage that
// already completed.
func (s *Service) Run(ctx context.Context, stages []string) error {
	runID := uuid.NewString()
	log := s.log.With("run_id", runID)

	start := s.now()
	log.Info("pipeline run starting", "stages", stages)

	for _, stage := range stages {
		var err error
		switch stage {
		case StageFetch:
			err = s.runFetch(ctx, log)
		case StageQuality:
			err = s.runQuality(log)
		case StageAnomaly:
			err = s.runAnomaly(log)
		default:
			err = fmt.Errorf("unknown stage %q", stage)
		}
		if err != nil {
			log.Error("pipeline run failed", "stage", stage, "err", err)
			return fmt.Errorf("stage %s: %w", stage, err)
		}
	}

	log.Info("pipeline run completed", "elapsed", s.now().Sub(start))
	return nil
}

// runFetch pulls both sources for every configured city sequentially, dumps
// the raw rows, and persists the merged dataset.
func (s *Service) runFetch(ctx context.Context, log *slog.Logger) error {
	win := s.Window()
	log.Info("fetching sources",
		"start", win.Start.Format("2006-01-02"),
		"end", win.End.Format("2006-01-02"),
		"cities", len(s.cfg.Cities))

	var allWeather []dataset.WeatherRow
	var allEnergy []dataset.EnergyRow

	for _, city := range s.cfg.Cities {
		rows, err := s.weather.FetchWeather(ctx, city, win)
		if err != nil {
			return err
		}
		log.Info("weather fetched", "source", s.weather.Name(), "city", city.Name, "rows", len(rows))
		if err := s.store.SaveRawWeather(city.Name, rows); err != nil {
			return err
		}
		allWeather = append(allWeather, rows...)

		energy, err := s.energy.FetchEnergy(ctx, city, win)
		if err != nil {
			return err
		}
		log.Info("energy fetched", "source", s.energy.Name(), "city", city.Name, "rows", len(energy))
		if err := s.store.SaveRawEnergy(city.Name, energy); err != nil {
			return err
		}
		allEnergy = append(allEnergy, energy...)
	}

	if err := s.store.SaveCombinedRaw(allWeather, allEnergy); err != nil {
		return err
	}

	merged := dataset.Merge(allWeather, allEnergy)
	if err := s.store.SaveMerged(merged); err != nil {
		return err
	}

	log.Info("merged dataset saved", "rows", len(merged))
	return nil
}

func (s *Service) runQuality(log *slog.Logger) error {
	ds, err := s.store.LoadMerged()
	if err != nil {
		return err
	}

	rep := quality.Check(ds, s.now())
	if err := s.store.SaveQualityReport(rep); err != nil {
		return err
	}

	log.Info("quality report saved",
		"rows", rep.RowCount,
		"temperature_outliers", rep.Outliers.TemperatureOutliers,
		"negative_energy_readings", rep.Outliers.NegativeEnergyReadings,
		"is_fresh", rep.Freshness.IsFresh)
	return nil
}

func (s *Service) runAnomaly(log *slog.Logger) error {
	ds, err := s.store.LoadMerged()
	if err != nil {
		return err
	}

	recs, err := anomaly.Detect(ds, anomaly.Config{
		Contamination: s.cfg.Anomaly.Contamination,
		Seed:          s.cfg.Anomaly.Seed,
	})
	if err != nil {
		return err
	}

	if err := s.store.SaveAnomalies(recs); err != nil {
		return err
	}

	log.Info("anomalies saved", "count", len(recs), "seed", s.cfg.Anomaly.Seed)
	return nil
}
