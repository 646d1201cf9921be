package dataset

import (
	"sort"
)

// Merge outer-joins weather and energy rows on (city, date).
//
// Rows present on only one side keep nil fields for the other. The derived
// columns avg_temp_f and temp_delta_f are computed only when both TMAX and
// TMIN were reported. Output is sorted by (city, date) and contains at most
// one row per key; duplicate source rows for the same key keep the first
// occurrence.
func Merge(weather []WeatherRow, energy []EnergyRow) MergedDataset {
	type key struct {
		city string
		date int64
	}

	rows := make(map[key]*Reading)

	for _, w := range weather {
		k := key{w.City, Day(w.Date).Unix()}
		if _, ok := rows[k]; ok {
			continue
		}
		r := &Reading{City: w.City, Date: Day(w.Date)}
		if w.TMaxF != nil && w.TMinF != nil {
			r.AvgTempF = Float64((*w.TMaxF + *w.TMinF) / 2)
			r.TempDeltaF = Float64(*w.TMaxF - *w.TMinF)
		}
		rows[k] = r
	}

	seenEnergy := make(map[key]bool)
	for _, e := range energy {
		k := key{e.City, Day(e.Date).Unix()}
		if seenEnergy[k] {
			continue
		}
		seenEnergy[k] = true

		r, ok := rows[k]
		if !ok {
			r = &Reading{City: e.City, Date: Day(e.Date)}
			rows[k] = r
		}
		r.EnergyConsumption = Float64(e.EnergyMWh)
	}

	out := make(MergedDataset, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].City != out[j].City {
			return out[i].City < out[j].City
		}
		return out[i].Date.Before(out[j].Date)
	})

	return out
}
