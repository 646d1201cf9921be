package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/weatherenergy/pipeline/internal/dataset"
)

// noaaDateLayout is the timestamp format used by the CDO v2 API.
const noaaDateLayout = "2006-01-02T15:04:05"

// NOAAClient fetches daily TMAX/TMIN observations from the NOAA Climate Data
// Online API (GHCND dataset). Values arrive in tenths of °C and are converted
// to °F.
type NOAAClient struct {
	name    string
	token   string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewNOAAClient(client *http.Client, token string) *NOAAClient {
	return &NOAAClient{
		name:    "noaa-cdo",
		token:   token,
		baseURL: "https://www.ncei.noaa.gov/cdo-web/api/v2/data",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("noaa"),
	}
}

func (c *NOAAClient) Name() string {
	return c.name
}

func (c *NOAAClient) FetchWeather(ctx context.Context, city dataset.City, win Window) ([]dataset.WeatherRow, error) {
	if c.token == "" {
		return nil, fmt.Errorf("noaa api key is not configured")
	}
	if city.NOAAStationID == "" {
		return nil, fmt.Errorf("city %q has no NOAA station id", city.Name)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("datasetid", "GHCND")
		values.Set("stationid", city.NOAAStationID)
		values.Set("datatypeid", "TMAX,TMIN")
		values.Set("startdate", win.Start.Format("2006-01-02"))
		values.Set("enddate", win.End.Format("2006-01-02"))
		values.Set("limit", "1000")

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("token", c.token)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("noaa fetch for %s: %w", city.Name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Date     string  `json:"date"`
			Datatype string  `json:"datatype"`
			Station  string  `json:"station"`
			Value    float64 `json:"value"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("noaa response for %s: %w", city.Name, err)
	}

	// Pivot the flat (date, datatype, value) rows into one row per day.
	byDay := make(map[time.Time]*dataset.WeatherRow)
	for _, res := range payload.Results {
		ts, err := time.Parse(noaaDateLayout, res.Date)
		if err != nil {
			return nil, fmt.Errorf("noaa date %q for %s: %w", res.Date, city.Name, err)
		}
		day := dataset.Day(ts)

		row, ok := byDay[day]
		if !ok {
			row = &dataset.WeatherRow{City: city.Name, Date: day}
			byDay[day] = row
		}

		f := tenthsCelsiusToFahrenheit(res.Value)
		switch res.Datatype {
		case "TMAX":
			if row.TMaxF == nil {
				row.TMaxF = dataset.Float64(f)
			}
		case "TMIN":
			if row.TMinF == nil {
				row.TMinF = dataset.Float64(f)
			}
		}
	}

	rows := make([]dataset.WeatherRow, 0, len(byDay))
	for _, row := range byDay {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	return rows, nil
}

// tenthsCelsiusToFahrenheit converts GHCND temperature values, which are
// reported in tenths of degrees Celsius.
func tenthsCelsiusToFahrenheit(v float64) float64 {
	return v*0.18 + 32
}
