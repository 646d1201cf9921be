package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/weatherenergy/pipeline/internal/anomaly"
	"github.com/weatherenergy/pipeline/internal/dataset"
	"github.com/weatherenergy/pipeline/internal/quality"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func sampleDataset() dataset.MergedDataset {
	return dataset.MergedDataset{
		{City: "Chicago", Date: day("2024-01-01"), AvgTempF: dataset.Float64(30.5), TempDeltaF: dataset.Float64(12), EnergyConsumption: dataset.Float64(1500.25)},
		{City: "Chicago", Date: day("2024-01-02"), EnergyConsumption: dataset.Float64(1480)},
		{City: "Seattle", Date: day("2024-01-01"), AvgTempF: dataset.Float64(48), TempDeltaF: dataset.Float64(6)},
	}
}

func TestMergedRoundTripCSV(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ds := sampleDataset()

	if err := s.SaveMerged(ds); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Remove the parquet file so the loader exercises the CSV fallback.
	if err := os.Remove(filepath.Join(s.Dir(), mergedParquetFile)); err != nil {
		t.Fatalf("remove parquet: %v", err)
	}

	got, err := s.LoadMerged()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, ds) {
		t.Errorf("csv round trip mismatch:\n got %+v\nwant %+v", got, ds)
	}
}

func TestMergedRoundTripParquet(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ds := sampleDataset()

	if err := s.SaveMerged(ds); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadMerged()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(got) != len(ds) {
		t.Fatalf("row count = %d, want %d", len(got), len(ds))
	}
	for i := range ds {
		if got[i].City != ds[i].City || !got[i].Date.Equal(ds[i].Date) {
			t.Errorf("row %d key mismatch: %+v vs %+v", i, got[i], ds[i])
		}
		if !floatPtrEqual(got[i].AvgTempF, ds[i].AvgTempF) ||
			!floatPtrEqual(got[i].TempDeltaF, ds[i].TempDeltaF) ||
			!floatPtrEqual(got[i].EnergyConsumption, ds[i].EnergyConsumption) {
			t.Errorf("row %d value mismatch: %+v vs %+v", i, got[i], ds[i])
		}
	}
}

func TestRerunIsByteIdentical(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ds := sampleDataset()

	if err := s.SaveMerged(ds); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(s.Dir(), mergedCSVFile))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SaveMerged(ds); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(s.Dir(), mergedCSVFile))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Error("rewriting the same dataset changed the csv bytes")
	}

	rep := quality.Check(ds, day("2024-01-02"))
	if err := s.SaveQualityReport(rep); err != nil {
		t.Fatal(err)
	}
	firstJSON, _ := os.ReadFile(filepath.Join(s.Dir(), qualityFile))
	if err := s.SaveQualityReport(rep); err != nil {
		t.Fatal(err)
	}
	secondJSON, _ := os.ReadFile(filepath.Join(s.Dir(), qualityFile))
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Error("rewriting the same report changed the json bytes")
	}
}

func TestQualityReportRoundTrip(t *testing.T) {
	s := NewFileStore(t.TempDir())
	rep := quality.Check(sampleDataset(), day("2024-01-02"))

	if err := s.SaveQualityReport(rep); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadQualityReport()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, rep) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, rep)
	}
}

func TestAnomaliesRoundTrip(t *testing.T) {
	s := NewFileStore(t.TempDir())
	recs := []anomaly.Record{
		{City: "Phoenix", Date: day("2024-07-04"), AvgTempF: 118, TempDeltaF: 25, EnergyConsumption: 2200, Score: 4.25},
		{City: "Seattle", Date: day("2024-07-05"), AvgTempF: 60, TempDeltaF: 30, EnergyConsumption: -10, Score: 3.5},
	}

	if err := s.SaveAnomalies(recs); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadAnomalies()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, recs) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, recs)
	}
}

func TestLoadMissingArtifacts(t *testing.T) {
	s := NewFileStore(t.TempDir())

	if _, err := s.LoadMerged(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadMerged err = %v, want ErrNotFound", err)
	}
	if _, err := s.LoadQualityReport(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadQualityReport err = %v, want ErrNotFound", err)
	}
	if _, err := s.LoadAnomalies(); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadAnomalies err = %v, want ErrNotFound", err)
	}
}

func TestRawDumps(t *testing.T) {
	s := NewFileStore(t.TempDir())

	weather := []dataset.WeatherRow{
		{City: "New York", Date: day("2024-02-01"), TMaxF: dataset.Float64(40), TMinF: dataset.Float64(28)},
	}
	energy := []dataset.EnergyRow{
		{City: "New York", Date: day("2024-02-01"), EnergyMWh: 2000},
	}

	if err := s.SaveRawWeather("New York", weather); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRawEnergy("New York", energy); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCombinedRaw(weather, energy); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{
		"weather_New_York.csv",
		"energy_New_York.csv",
		"weather_all.csv",
		"energy_all.csv",
	} {
		if _, err := os.Stat(filepath.Join(s.Dir(), rawDir, name)); err != nil {
			t.Errorf("missing raw dump %s: %v", name, err)
		}
	}
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
