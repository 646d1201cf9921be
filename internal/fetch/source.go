package fetch

import (
	"context"
	"time"

	"github.com/weatherenergy/pipeline/internal/dataset"
)

// Window is the rolling span of dates fetched on each run, inclusive on both
// ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered by the window.
func (w Window) Days() int {
	return int(dataset.Day(w.End).Sub(dataset.Day(w.Start)).Hours()/24) + 1
}

// WeatherSource abstracts a daily-weather API (e.g. NOAA CDO).
type WeatherSource interface {
	Name() string
	FetchWeather(ctx context.Context, city dataset.City, win Window) ([]dataset.WeatherRow, error)
}

// EnergySource abstracts a daily electricity-usage API (e.g. EIA).
type EnergySource interface {
	Name() string
	FetchEnergy(ctx context.Context, city dataset.City, win Window) ([]dataset.EnergyRow, error)
}
