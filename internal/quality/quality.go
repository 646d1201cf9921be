// Package quality computes the data-quality report for a merged dataset:
// per-column null tallies, range-based outlier counts, and freshness.
package quality

import (
	"time"

	"github.com/weatherenergy/pipeline/internal/dataset"
)

// Physically plausible temperature bounds in °F. Values outside are flagged.
const (
	TempMinF = -50.0
	TempMaxF = 130.0
)

// staleAfter is how old the newest row may be before the dataset counts as
// stale.
const staleAfter = 24 * time.Hour

type OutlierReport struct {
	TemperatureOutliers    int `json:"temperature_outliers"`
	NegativeEnergyReadings int `json:"negative_energy_readings"`
}

type FreshnessReport struct {
	LatestDate string `json:"latest_date"`
	IsFresh    bool   `json:"is_fresh"`
	DaysOld    int    `json:"days_old"`
}

type Report struct {
	MissingValues map[string]int  `json:"missing_values"`
	Outliers      OutlierReport   `json:"outliers"`
	Freshness     FreshnessReport `json:"freshness"`
	RowCount      int             `json:"row_count"`
}

// Check is a pure function of the dataset and the supplied clock time; it has
// no side effects and writes nothing.
func Check(ds dataset.MergedDataset, now time.Time) Report {
	return Report{
		MissingValues: missingValues(ds),
		Outliers:      outliers(ds),
		Freshness:     freshness(ds, now),
		RowCount:      len(ds),
	}
}

func missingValues(ds dataset.MergedDataset) map[string]int {
	missing := map[string]int{
		"date":               0,
		"city":               0,
		"avg_temp_f":         0,
		"temp_delta_f":       0,
		"energy_consumption": 0,
	}
	for _, r := range ds {
		if r.AvgTempF == nil {
			missing["avg_temp_f"]++
		}
		if r.TempDeltaF == nil {
			missing["temp_delta_f"]++
		}
		if r.EnergyConsumption == nil {
			missing["energy_consumption"]++
		}
	}
	return missing
}

func outliers(ds dataset.MergedDataset) OutlierReport {
	var rep OutlierReport
	for _, r := range ds {
		if r.AvgTempF != nil && (*r.AvgTempF < TempMinF || *r.AvgTempF > TempMaxF) {
			rep.TemperatureOutliers++
		}
		if r.EnergyConsumption != nil && *r.EnergyConsumption < 0 {
			rep.NegativeEnergyReadings++
		}
	}
	return rep
}

func freshness(ds dataset.MergedDataset, now time.Time) FreshnessReport {
	latest, ok := ds.LatestDate()
	if !ok {
		return FreshnessReport{IsFresh: false, DaysOld: -1}
	}

	age := now.Sub(latest)
	return FreshnessReport{
		LatestDate: latest.Format("2006-01-02"),
		IsFresh:    age <= staleAfter,
		DaysOld:    int(age.Hours() / 24),
	}
}
