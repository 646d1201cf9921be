package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/weatherenergy/pipeline/internal/anomaly"
	"github.com/weatherenergy/pipeline/internal/dataset"
)

const dateLayout = "2006-01-02"

var mergedHeader = []string{"date", "city", "avg_temp_f", "temp_delta_f", "energy_consumption"}

func writeMergedCSV(path string, ds dataset.MergedDataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(mergedHeader); err != nil {
		return err
	}
	for _, r := range ds {
		rec := []string{
			r.Date.Format(dateLayout),
			r.City,
			formatNullable(r.AvgTempF),
			formatNullable(r.TempDeltaF),
			formatNullable(r.EnergyConsumption),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readMergedCSV(path string) (dataset.MergedDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var ds dataset.MergedDataset
	for _, rec := range rows[1:] {
		if len(rec) != len(mergedHeader) {
			return nil, fmt.Errorf("merged csv row has %d fields, want %d", len(rec), len(mergedHeader))
		}
		date, err := time.Parse(dateLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("merged csv date %q: %w", rec[0], err)
		}
		avg, err := parseNullable(rec[2])
		if err != nil {
			return nil, err
		}
		delta, err := parseNullable(rec[3])
		if err != nil {
			return nil, err
		}
		energy, err := parseNullable(rec[4])
		if err != nil {
			return nil, err
		}
		ds = append(ds, dataset.Reading{
			Date:              date,
			City:              rec[1],
			AvgTempF:          avg,
			TempDeltaF:        delta,
			EnergyConsumption: energy,
		})
	}
	return ds, nil
}

var anomaliesHeader = []string{"date", "city", "avg_temp_f", "temp_delta_f", "energy_consumption", "score"}

func writeAnomaliesCSV(path string, recs []anomaly.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(anomaliesHeader); err != nil {
		return err
	}
	for _, r := range recs {
		rec := []string{
			r.Date.Format(dateLayout),
			r.City,
			formatFloat(r.AvgTempF),
			formatFloat(r.TempDeltaF),
			formatFloat(r.EnergyConsumption),
			formatFloat(r.Score),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readAnomaliesCSV(path string) ([]anomaly.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var recs []anomaly.Record
	for _, rec := range rows[1:] {
		if len(rec) != len(anomaliesHeader) {
			return nil, fmt.Errorf("anomalies csv row has %d fields, want %d", len(rec), len(anomaliesHeader))
		}
		date, err := time.Parse(dateLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("anomalies csv date %q: %w", rec[0], err)
		}
		vals := make([]float64, 4)
		for i, field := range rec[2:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("anomalies csv value %q: %w", field, err)
			}
			vals[i] = v
		}
		recs = append(recs, anomaly.Record{
			Date:              date,
			City:              rec[1],
			AvgTempF:          vals[0],
			TempDeltaF:        vals[1],
			EnergyConsumption: vals[2],
			Score:             vals[3],
		})
	}
	return recs, nil
}

func writeWeatherCSV(path string, rows []dataset.WeatherRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "city", "tmax_f", "tmin_f"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format(dateLayout),
			r.City,
			formatNullable(r.TMaxF),
			formatNullable(r.TMinF),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeEnergyCSV(path string, rows []dataset.EnergyRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "city", "energy_mwh"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format(dateLayout),
			r.City,
			formatFloat(r.EnergyMWh),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// formatFloat keeps the shortest exact representation so output bytes are
// stable across runs.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatNullable(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func parseNullable(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse float %q: %w", s, err)
	}
	return &v, nil
}
