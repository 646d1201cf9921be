package httpapi

import (
	"bytes"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/gofiber/fiber/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/weatherenergy/pipeline/internal/dataset"
	"github.com/weatherenergy/pipeline/internal/store"
)

// minForecastPoints is the smallest history that gives a usable trend line.
const minForecastPoints = 10

const indexPage = `<!DOCTYPE html>
<html>
<head><title>US Weather + Energy Dashboard</title></head>
<body>
<h1>US Weather + Energy Dashboard</h1>
<ul>
<li><a href="/charts/trends">Energy vs. temperature trends</a></li>
<li><a href="/charts/cities">Energy usage by city</a></li>
<li><a href="/charts/latest">Latest per-city conditions</a></li>
<li><a href="/charts/forecast">Energy forecast</a></li>
<li><a href="/charts/anomalies">Detected anomalies</a></li>
<li><a href="/api/v1/quality">Quality report (JSON)</a></li>
</ul>
</body>
</html>`

// RegisterCharts wires the interactive chart pages into the Fiber app. Charts
// are rendered from the persisted files on every request; the dashboard is a
// read-only consumer.
func RegisterCharts(app *fiber.App, st Reader) {
	app.Get("/", func(c *fiber.Ctx) error {
		c.Type("html")
		return c.SendString(indexPage)
	})

	app.Get("/charts/trends", func(c *fiber.Ctx) error {
		ds, err := loadDataset(st)
		if err != nil {
			return err
		}

		dates, temps, energy := dailyMeans(ds)

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    "Energy vs. Temperature",
				Subtitle: "Daily mean across selected cities",
			}),
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trends"}),
		)
		line.SetXAxis(dates).
			AddSeries("avg_temp_f", toLineData(temps)).
			AddSeries("energy_consumption", toLineData(energy))

		return renderChart(c, line)
	})

	app.Get("/charts/cities", func(c *fiber.Ctx) error {
		ds, err := loadDataset(st)
		if err != nil {
			return err
		}

		cities, means := cityEnergyMeans(ds)

		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: "Mean energy usage by city"}),
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Cities"}),
		)
		bar.SetXAxis(cities).AddSeries("energy_consumption", toBarData(means))

		return renderChart(c, bar)
	})

	app.Get("/charts/latest", func(c *fiber.Ctx) error {
		ds, err := loadDataset(st)
		if err != nil {
			return err
		}

		cities, temps, energy := cityLatest(ds)

		bar := charts.NewBar()
		bar.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    "Latest per-city conditions",
				Subtitle: "Most recent reading with a valid energy value",
			}),
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Latest"}),
		)
		bar.SetXAxis(cities).
			AddSeries("avg_temp_f", temps).
			AddSeries("energy_consumption", energy)

		return renderChart(c, bar)
	})

	app.Get("/charts/forecast", func(c *fiber.Ctx) error {
		ds, err := loadDataset(st)
		if err != nil {
			return err
		}

		city := c.Query("city")
		if city == "" {
			cities := ds.Cities()
			if len(cities) == 0 {
				return fiber.NewError(fiber.StatusNotFound, "merged dataset is empty")
			}
			city = cities[0]
		}
		horizon := c.QueryInt("days", 14)
		if horizon < 7 {
			horizon = 7
		}
		if horizon > 30 {
			horizon = 30
		}

		hist := cityEnergySeries(ds, city)
		if len(hist) < minForecastPoints {
			return fiber.NewError(fiber.StatusUnprocessableEntity,
				"not enough energy readings to forecast for "+city)
		}

		labels, histData, fcData := forecastEnergy(hist, horizon)

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    city + " energy forecast",
				Subtitle: "Linear trend over the fetch window",
			}),
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Forecast"}),
		)
		line.SetXAxis(labels).
			AddSeries("historical", histData).
			AddSeries("forecast", fcData)

		return renderChart(c, line)
	})

	app.Get("/charts/anomalies", func(c *fiber.Ctx) error {
		recs, err := st.LoadAnomalies()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no anomalies file; run the pipeline first")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load anomalies")
		}

		dates := make([]string, 0, len(recs))
		points := make([]opts.ScatterData, 0, len(recs))
		for _, r := range recs {
			dates = append(dates, r.Date.Format("2006-01-02")+" "+r.City)
			points = append(points, opts.ScatterData{Value: r.EnergyConsumption})
		}

		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    "Detected anomalies",
				Subtitle: "Energy usage of flagged rows",
			}),
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Anomalies"}),
		)
		scatter.SetXAxis(dates).AddSeries("energy_consumption", points)

		return renderChart(c, scatter)
	})
}

type chartRenderer interface {
	Render(w io.Writer) error
}

func renderChart(c *fiber.Ctx, chart chartRenderer) error {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to render chart")
	}
	c.Type("html")
	return c.Send(buf.Bytes())
}

func loadDataset(st Reader) (dataset.MergedDataset, error) {
	ds, err := st.LoadMerged()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "no merged dataset; run the pipeline first")
		}
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to load merged dataset")
	}
	return ds, nil
}

// dailyMeans averages temperature and energy per date over rows where the
// field is present.
func dailyMeans(ds dataset.MergedDataset) (dates []string, temps, energy []float64) {
	type agg struct {
		tempSum, energySum float64
		tempN, energyN     int
	}

	byDate := make(map[string]*agg)
	for _, r := range ds {
		key := r.Date.Format("2006-01-02")
		a, ok := byDate[key]
		if !ok {
			a = &agg{}
			byDate[key] = a
		}
		if r.AvgTempF != nil {
			a.tempSum += *r.AvgTempF
			a.tempN++
		}
		if r.EnergyConsumption != nil {
			a.energySum += *r.EnergyConsumption
			a.energyN++
		}
	}

	dates = make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, d := range dates {
		a := byDate[d]
		var t, e float64
		if a.tempN > 0 {
			t = a.tempSum / float64(a.tempN)
		}
		if a.energyN > 0 {
			e = a.energySum / float64(a.energyN)
		}
		temps = append(temps, t)
		energy = append(energy, e)
	}
	return dates, temps, energy
}

func cityEnergyMeans(ds dataset.MergedDataset) (cities []string, means []float64) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range ds {
		if r.EnergyConsumption == nil {
			continue
		}
		sums[r.City] += *r.EnergyConsumption
		counts[r.City]++
	}

	for c := range sums {
		cities = append(cities, c)
	}
	sort.Strings(cities)

	for _, c := range cities {
		means = append(means, sums[c]/float64(counts[c]))
	}
	return cities, means
}

// cityLatest returns, per city, the most recent reading whose energy value is
// present and non-negative. Temperature may still be missing there; such gaps
// render as holes rather than zeros.
func cityLatest(ds dataset.MergedDataset) (cities []string, temps, energy []opts.BarData) {
	latest := make(map[string]dataset.Reading)
	for _, r := range ds {
		if r.EnergyConsumption == nil || *r.EnergyConsumption < 0 {
			continue
		}
		cur, ok := latest[r.City]
		if !ok || r.Date.After(cur.Date) {
			latest[r.City] = r
		}
	}

	for c := range latest {
		cities = append(cities, c)
	}
	sort.Strings(cities)

	for _, c := range cities {
		r := latest[c]
		if r.AvgTempF != nil {
			temps = append(temps, opts.BarData{Value: *r.AvgTempF})
		} else {
			temps = append(temps, opts.BarData{Value: "-"})
		}
		energy = append(energy, opts.BarData{Value: *r.EnergyConsumption})
	}
	return cities, temps, energy
}

type datedValue struct {
	date  time.Time
	value float64
}

func cityEnergySeries(ds dataset.MergedDataset, city string) []datedValue {
	var out []datedValue
	for _, r := range ds {
		if r.City != city || r.EnergyConsumption == nil {
			continue
		}
		out = append(out, datedValue{date: r.Date, value: *r.EnergyConsumption})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

// forecastEnergy fits energy against days since the first reading and extends
// the trend horizon days past the last one. Historical and forecast values
// share one x axis; each series leaves "-" gaps where the other applies.
func forecastEnergy(hist []datedValue, horizon int) (labels []string, histData, fcData []opts.LineData) {
	start := hist[0].date
	xs := make([]float64, len(hist))
	ys := make([]float64, len(hist))
	for i, p := range hist {
		xs[i] = p.date.Sub(start).Hours() / 24
		ys[i] = p.value
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	for _, p := range hist {
		labels = append(labels, p.date.Format("2006-01-02"))
		histData = append(histData, opts.LineData{Value: p.value})
		fcData = append(fcData, opts.LineData{Value: "-"})
	}

	last := hist[len(hist)-1]
	lastX := last.date.Sub(start).Hours() / 24
	for i := 1; i <= horizon; i++ {
		d := last.date.AddDate(0, 0, i)
		labels = append(labels, d.Format("2006-01-02"))
		histData = append(histData, opts.LineData{Value: "-"})
		fcData = append(fcData, opts.LineData{Value: alpha + beta*(lastX+float64(i))})
	}
	return labels, histData, fcData
}

func toLineData(vals []float64) []opts.LineData {
	out := make([]opts.LineData, 0, len(vals))
	for _, v := range vals {
		out = append(out, opts.LineData{Value: v})
	}
	return out
}

func toBarData(vals []float64) []opts.BarData {
	out := make([]opts.BarData, 0, len(vals))
	for _, v := range vals {
		out = append(out, opts.BarData{Value: v})
	}
	return out
}
