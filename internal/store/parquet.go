package store

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"github.com/weatherenergy/pipeline/internal/dataset"
)

// mergedSchema mirrors the merged CSV layout with proper nullability.
var mergedSchema = arrow.NewSchema([]arrow.Field{
	{Name: "date", Type: arrow.FixedWidthTypes.Date32},
	{Name: "city", Type: arrow.BinaryTypes.String},
	{Name: "avg_temp_f", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "temp_delta_f", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "energy_consumption", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

func writeMergedParquet(path string, ds dataset.MergedDataset) error {
	bldr := array.NewRecordBuilder(memory.DefaultAllocator, mergedSchema)
	defer bldr.Release()

	dateB := bldr.Field(0).(*array.Date32Builder)
	cityB := bldr.Field(1).(*array.StringBuilder)
	avgB := bldr.Field(2).(*array.Float64Builder)
	deltaB := bldr.Field(3).(*array.Float64Builder)
	energyB := bldr.Field(4).(*array.Float64Builder)

	for _, r := range ds {
		dateB.Append(arrow.Date32FromTime(r.Date))
		cityB.Append(r.City)
		appendNullable(avgB, r.AvgTempF)
		appendNullable(deltaB, r.TempDeltaF)
		appendNullable(energyB, r.EnergyConsumption)
	}

	rec := bldr.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w, err := pqarrow.NewFileWriter(mergedSchema, f, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return err
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		f.Close()
		return err
	}
	// w.Close also closes the underlying file.
	return w.Close()
}

func readMergedParquet(path string) (dataset.MergedDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tbl, err := pqarrow.ReadTable(
		context.Background(),
		f,
		parquet.NewReaderProperties(memory.DefaultAllocator),
		pqarrow.ArrowReadProperties{},
		memory.DefaultAllocator,
	)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	if tbl.NumCols() != int64(len(mergedSchema.Fields())) {
		return nil, fmt.Errorf("parquet file has %d columns, want %d", tbl.NumCols(), len(mergedSchema.Fields()))
	}

	dates := make([]arrow.Date32, 0, tbl.NumRows())
	for _, chunk := range tbl.Column(0).Data().Chunks() {
		arr, ok := chunk.(*array.Date32)
		if !ok {
			return nil, fmt.Errorf("date column has type %T", chunk)
		}
		for i := 0; i < arr.Len(); i++ {
			dates = append(dates, arr.Value(i))
		}
	}

	cities := make([]string, 0, tbl.NumRows())
	for _, chunk := range tbl.Column(1).Data().Chunks() {
		arr, ok := chunk.(*array.String)
		if !ok {
			return nil, fmt.Errorf("city column has type %T", chunk)
		}
		for i := 0; i < arr.Len(); i++ {
			cities = append(cities, arr.Value(i))
		}
	}

	avg, err := readFloatColumn(tbl, 2)
	if err != nil {
		return nil, err
	}
	delta, err := readFloatColumn(tbl, 3)
	if err != nil {
		return nil, err
	}
	energy, err := readFloatColumn(tbl, 4)
	if err != nil {
		return nil, err
	}

	n := len(dates)
	if len(cities) != n || len(avg) != n || len(delta) != n || len(energy) != n {
		return nil, fmt.Errorf("parquet columns have mismatched lengths")
	}

	ds := make(dataset.MergedDataset, 0, n)
	for i := 0; i < n; i++ {
		ds = append(ds, dataset.Reading{
			Date:              dates[i].ToTime().UTC(),
			City:              cities[i],
			AvgTempF:          avg[i],
			TempDeltaF:        delta[i],
			EnergyConsumption: energy[i],
		})
	}
	return ds, nil
}

func readFloatColumn(tbl arrow.Table, col int) ([]*float64, error) {
	out := make([]*float64, 0, tbl.NumRows())
	for _, chunk := range tbl.Column(col).Data().Chunks() {
		arr, ok := chunk.(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("column %d has type %T", col, chunk)
		}
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				out = append(out, nil)
				continue
			}
			out = append(out, dataset.Float64(arr.Value(i)))
		}
	}
	return out, nil
}

func appendNullable(b *array.Float64Builder, v *float64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}
