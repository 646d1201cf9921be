// Package store persists pipeline outputs as flat files under a data
// directory. Every writer fully overwrites its target and emits rows in a
// deterministic order and format, so a rerun over unchanged data produces
// byte-identical files.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/weatherenergy/pipeline/internal/anomaly"
	"github.com/weatherenergy/pipeline/internal/dataset"
	"github.com/weatherenergy/pipeline/internal/quality"
)

var (
	// ErrNotFound is returned when a requested artifact has not been
	// produced yet.
	ErrNotFound = errors.New("no persisted data")
)

const (
	mergedCSVFile     = "merged_data.csv"
	mergedParquetFile = "merged_data.parquet"
	anomaliesFile     = "anomalies.csv"
	qualityFile       = "quality_report.json"
	rawDir            = "raw"
)

// FileStore reads and writes all persisted pipeline artifacts below dir.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// SaveMerged overwrites both representations of the merged dataset.
func (s *FileStore) SaveMerged(ds dataset.MergedDataset) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	if err := writeMergedCSV(filepath.Join(s.dir, mergedCSVFile), ds); err != nil {
		return fmt.Errorf("write merged csv: %w", err)
	}
	if err := writeMergedParquet(filepath.Join(s.dir, mergedParquetFile), ds); err != nil {
		return fmt.Errorf("write merged parquet: %w", err)
	}
	return nil
}

// LoadMerged reads the merged dataset, preferring Parquet and falling back to
// CSV when only that exists.
func (s *FileStore) LoadMerged() (dataset.MergedDataset, error) {
	pq := filepath.Join(s.dir, mergedParquetFile)
	if _, err := os.Stat(pq); err == nil {
		ds, err := readMergedParquet(pq)
		if err != nil {
			return nil, fmt.Errorf("read merged parquet: %w", err)
		}
		return ds, nil
	}

	csvPath := filepath.Join(s.dir, mergedCSVFile)
	if _, err := os.Stat(csvPath); err != nil {
		return nil, ErrNotFound
	}
	ds, err := readMergedCSV(csvPath)
	if err != nil {
		return nil, fmt.Errorf("read merged csv: %w", err)
	}
	return ds, nil
}

func (s *FileStore) SaveQualityReport(rep quality.Report) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return os.WriteFile(filepath.Join(s.dir, qualityFile), raw, 0o644)
}

func (s *FileStore) LoadQualityReport() (quality.Report, error) {
	var rep quality.Report
	raw, err := os.ReadFile(filepath.Join(s.dir, qualityFile))
	if err != nil {
		if os.IsNotExist(err) {
			return rep, ErrNotFound
		}
		return rep, err
	}
	if err := json.Unmarshal(raw, &rep); err != nil {
		return rep, fmt.Errorf("parse quality report: %w", err)
	}
	return rep, nil
}

func (s *FileStore) SaveAnomalies(recs []anomaly.Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeAnomaliesCSV(filepath.Join(s.dir, anomaliesFile), recs)
}

func (s *FileStore) LoadAnomalies() ([]anomaly.Record, error) {
	path := filepath.Join(s.dir, anomaliesFile)
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNotFound
	}
	return readAnomaliesCSV(path)
}

// SaveRawWeather dumps one city's source rows under raw/, mirroring the
// fetch stage's per-city artifacts.
func (s *FileStore) SaveRawWeather(city string, rows []dataset.WeatherRow) error {
	if err := os.MkdirAll(filepath.Join(s.dir, rawDir), 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("weather_%s.csv", cityFileName(city))
	return writeWeatherCSV(filepath.Join(s.dir, rawDir, name), rows)
}

func (s *FileStore) SaveRawEnergy(city string, rows []dataset.EnergyRow) error {
	if err := os.MkdirAll(filepath.Join(s.dir, rawDir), 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("energy_%s.csv", cityFileName(city))
	return writeEnergyCSV(filepath.Join(s.dir, rawDir, name), rows)
}

// SaveCombinedRaw writes the all-cities raw dumps the transform stage joins
// from.
func (s *FileStore) SaveCombinedRaw(weather []dataset.WeatherRow, energy []dataset.EnergyRow) error {
	if err := os.MkdirAll(filepath.Join(s.dir, rawDir), 0o755); err != nil {
		return err
	}
	if err := writeWeatherCSV(filepath.Join(s.dir, rawDir, "weather_all.csv"), weather); err != nil {
		return err
	}
	return writeEnergyCSV(filepath.Join(s.dir, rawDir, "energy_all.csv"), energy)
}

func cityFileName(city string) string {
	return strings.ReplaceAll(city, " ", "_")
}
