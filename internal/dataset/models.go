package dataset

import (
	"time"
)

// City identifies one tracked location together with the identifiers each
// upstream API needs for it.
type City struct {
	Name          string `yaml:"name" json:"name"`
	NOAAStationID string `yaml:"noaa_station_id" json:"noaa_station_id"`
	EIARespondent string `yaml:"eia_respondent" json:"eia_respondent"`
}

// WeatherRow is one day of station observations, already converted to °F.
// Either temperature may be absent when the station did not report it.
type WeatherRow struct {
	City  string
	Date  time.Time // midnight UTC
	TMaxF *float64
	TMinF *float64
}

// EnergyRow is one day of electricity demand for a balancing authority.
type EnergyRow struct {
	City      string
	Date      time.Time // midnight UTC
	EnergyMWh float64
}

// Reading is one merged (city, date) row. Temperature-derived fields and
// energy usage are nullable: an outer join leaves the missing side nil.
type Reading struct {
	City              string    `json:"city"`
	Date              time.Time `json:"date"`
	AvgTempF          *float64  `json:"avg_temp_f"`
	TempDeltaF        *float64  `json:"temp_delta_f"`
	EnergyConsumption *float64  `json:"energy_consumption"`
}

// MergedDataset is the joined dataset, ordered by (city, date) with at most
// one row per (city, date).
type MergedDataset []Reading

// Cities returns the distinct city names present, sorted.
func (ds MergedDataset) Cities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range ds {
		if !seen[r.City] {
			seen[r.City] = true
			out = append(out, r.City)
		}
	}
	// Dataset order is (city, date), so first occurrences are already sorted.
	return out
}

// LatestDate returns the newest date in the dataset and false when empty.
func (ds MergedDataset) LatestDate() (time.Time, bool) {
	var latest time.Time
	for _, r := range ds {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, !latest.IsZero()
}

// Day normalizes a timestamp to midnight UTC so joins key on calendar days.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Float64 returns a pointer to v; convenient for building nullable rows.
func Float64(v float64) *float64 {
	return &v
}
