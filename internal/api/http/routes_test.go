package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/weatherenergy/pipeline/internal/anomaly"
	"github.com/weatherenergy/pipeline/internal/dataset"
	"github.com/weatherenergy/pipeline/internal/quality"
	"github.com/weatherenergy/pipeline/internal/store"
)

// fakeReader serves canned artifacts without touching the filesystem.
type fakeReader struct {
	ds     dataset.MergedDataset
	report quality.Report
	recs   []anomaly.Record
	empty  bool
}

func (f *fakeReader) LoadMerged() (dataset.MergedDataset, error) {
	if f.empty {
		return nil, store.ErrNotFound
	}
	return f.ds, nil
}

func (f *fakeReader) LoadQualityReport() (quality.Report, error) {
	if f.empty {
		return quality.Report{}, store.ErrNotFound
	}
	return f.report, nil
}

func (f *fakeReader) LoadAnomalies() ([]anomaly.Record, error) {
	if f.empty {
		return nil, store.ErrNotFound
	}
	return f.recs, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func testApp(r Reader) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, r)
	RegisterCharts(app, r)
	return app
}

func seededReader() *fakeReader {
	ds := dataset.MergedDataset{
		{City: "Chicago", Date: day("2024-01-01"), AvgTempF: dataset.Float64(30), TempDeltaF: dataset.Float64(10), EnergyConsumption: dataset.Float64(1500)},
		{City: "Chicago", Date: day("2024-01-02"), AvgTempF: dataset.Float64(32), TempDeltaF: dataset.Float64(12), EnergyConsumption: dataset.Float64(1520)},
		{City: "Seattle", Date: day("2024-01-01"), AvgTempF: dataset.Float64(48), TempDeltaF: dataset.Float64(6), EnergyConsumption: dataset.Float64(900)},
	}
	return &fakeReader{
		ds:     ds,
		report: quality.Check(ds, day("2024-01-02")),
		recs: []anomaly.Record{
			{City: "Chicago", Date: day("2024-01-02"), AvgTempF: 32, TempDeltaF: 12, EnergyConsumption: 1520, Score: 3.1},
		},
	}
}

func TestReadingsFilterByCity(t *testing.T) {
	app := testApp(seededReader())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings?city=Chicago", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Count    int               `json:"count"`
		Readings []dataset.Reading `json:"readings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
	for _, r := range body.Readings {
		if r.City != "Chicago" {
			t.Errorf("unexpected city %q in filtered readings", r.City)
		}
	}
}

func TestReadingsDateRange(t *testing.T) {
	app := testApp(seededReader())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings?from=2024-01-02&to=2024-01-02", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

func TestReadingsRejectsInvertedRange(t *testing.T) {
	app := testApp(seededReader())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings?from=2024-01-05&to=2024-01-01", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestReadingsRejectsBadTime(t *testing.T) {
	app := testApp(seededReader())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings?from=not-a-date", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestQualityEndpoint(t *testing.T) {
	r := seededReader()
	app := testApp(r)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quality", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var rep quality.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.RowCount != r.report.RowCount {
		t.Errorf("row count = %d, want %d", rep.RowCount, r.report.RowCount)
	}
}

func TestAnomaliesCityFilter(t *testing.T) {
	app := testApp(seededReader())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?city=Seattle", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 0 {
		t.Errorf("count = %d, want 0 for unflagged city", body.Count)
	}
}

func TestMissingArtifactsReturn404(t *testing.T) {
	app := testApp(&fakeReader{empty: true})

	for _, path := range []string{
		"/api/v1/readings",
		"/api/v1/quality",
		"/api/v1/anomalies",
		"/api/v1/cities",
		"/charts/trends",
		"/charts/latest",
		"/charts/forecast",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestForecastChart(t *testing.T) {
	ds := dataset.MergedDataset{}
	start := day("2024-01-01")
	for i := 0; i < 12; i++ {
		ds = append(ds, dataset.Reading{
			City:              "Chicago",
			Date:              start.AddDate(0, 0, i),
			AvgTempF:          dataset.Float64(30),
			TempDeltaF:        dataset.Float64(10),
			EnergyConsumption: dataset.Float64(1500 + float64(i)*10),
		})
	}
	app := testApp(&fakeReader{ds: ds})

	req := httptest.NewRequest(http.MethodGet, "/charts/forecast?city=Chicago&days=7", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(body) == 0 {
		t.Error("empty body")
	}
}

func TestForecastChartRejectsShortHistory(t *testing.T) {
	app := testApp(seededReader())

	req := httptest.NewRequest(http.MethodGet, "/charts/forecast?city=Chicago", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 for too little history", resp.StatusCode)
	}
}

func TestCityLatestSkipsNegativeEnergy(t *testing.T) {
	ds := dataset.MergedDataset{
		{City: "Chicago", Date: day("2024-01-01"), AvgTempF: dataset.Float64(30), EnergyConsumption: dataset.Float64(1500)},
		{City: "Chicago", Date: day("2024-01-02"), AvgTempF: dataset.Float64(32), EnergyConsumption: dataset.Float64(-5)},
		{City: "Seattle", Date: day("2024-01-02"), EnergyConsumption: dataset.Float64(900)},
	}

	cities, temps, energy := cityLatest(ds)
	if len(cities) != 2 || cities[0] != "Chicago" || cities[1] != "Seattle" {
		t.Fatalf("cities = %v", cities)
	}
	// The negative Jan 2 reading is excluded, so Chicago's latest is Jan 1.
	if energy[0].Value != 1500.0 {
		t.Errorf("Chicago energy = %v, want 1500", energy[0].Value)
	}
	if temps[0].Value != 30.0 {
		t.Errorf("Chicago temp = %v, want 30", temps[0].Value)
	}
	// Seattle has no temperature reading there; the bar shows a gap.
	if temps[1].Value != "-" {
		t.Errorf("Seattle temp = %v, want gap", temps[1].Value)
	}
}

func TestChartPagesRenderHTML(t *testing.T) {
	app := testApp(seededReader())

	for _, path := range []string{"/", "/charts/trends", "/charts/cities", "/charts/latest", "/charts/anomalies"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, resp.StatusCode)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("%s: read body: %v", path, err)
		}
		if len(body) == 0 {
			t.Errorf("%s: empty body", path)
		}
	}
}
