package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/weatherenergy/pipeline/internal/dataset"
)

// flexFloat parses EIA numeric values, which arrive either as JSON numbers,
// as quoted strings, or as null depending on the route. A null value is not a
// zero reading; callers must check valid before using value.
type flexFloat struct {
	value float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if string(b) == "null" {
		*f = flexFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("numeric value %q: %w", b, err)
	}
	*f = flexFloat{value: v, valid: true}
	return nil
}

// EIAClient fetches daily electricity demand from the EIA v2 API. Each city
// maps to the balancing-authority respondent serving it; demand is reported
// in megawatthours.
type EIAClient struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewEIAClient(client *http.Client, apiKey string) *EIAClient {
	return &EIAClient{
		name:    "eia",
		apiKey:  apiKey,
		baseURL: "https://api.eia.gov/v2/electricity/rto/daily-region-data/data/",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("eia"),
	}
}

func (c *EIAClient) Name() string {
	return c.name
}

func (c *EIAClient) FetchEnergy(ctx context.Context, city dataset.City, win Window) ([]dataset.EnergyRow, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("eia api key is not configured")
	}
	if city.EIARespondent == "" {
		return nil, fmt.Errorf("city %q has no EIA respondent code", city.Name)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("api_key", c.apiKey)
		values.Set("frequency", "daily")
		values.Set("data[0]", "value")
		values.Set("facets[respondent][]", city.EIARespondent)
		values.Set("facets[type][]", "D") // demand
		values.Set("start", win.Start.Format("2006-01-02"))
		values.Set("end", win.End.Format("2006-01-02"))
		values.Set("length", "5000")

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("eia fetch for %s: %w", city.Name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Response struct {
			Data []struct {
				Period     string    `json:"period"`
				Respondent string    `json:"respondent"`
				Value      flexFloat `json:"value"`
			} `json:"data"`
		} `json:"response"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("eia response for %s: %w", city.Name, err)
	}

	// The API can return one row per timezone variant; keep the first value
	// seen for each day.
	seen := make(map[time.Time]bool)
	var rows []dataset.EnergyRow
	for _, d := range payload.Response.Data {
		if !d.Value.valid {
			continue
		}
		ts, err := time.Parse("2006-01-02", d.Period)
		if err != nil {
			return nil, fmt.Errorf("eia period %q for %s: %w", d.Period, city.Name, err)
		}
		day := dataset.Day(ts)
		if seen[day] {
			continue
		}

		seen[day] = true
		rows = append(rows, dataset.EnergyRow{
			City:      city.Name,
			Date:      day,
			EnergyMWh: d.Value.value,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	return rows, nil
}
