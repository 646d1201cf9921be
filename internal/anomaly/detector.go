// Package anomaly scores merged rows with an unsupervised multivariate
// outlier model and labels the most unusual fraction of each batch.
//
// The model is fit per run over (avg_temp_f, temp_delta_f,
// energy_consumption): moments are estimated from a seeded subsample of the
// batch and each row is scored by its Mahalanobis distance from the batch
// center. No model state survives across runs.
package anomaly

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/weatherenergy/pipeline/internal/dataset"
)

const featureCount = 3

// defaultSubsample caps how many rows feed the moment estimation.
const defaultSubsample = 256

// Config controls the detector. Seed is deliberately explicit: the same
// dataset with the same seed always yields the same records.
type Config struct {
	// Contamination is the fraction of rows labeled anomalous, in [0,1).
	Contamination float64

	// Seed drives the subsampling step.
	Seed int64

	// SubsampleSize bounds the rows used for moment estimation
	// (0 = defaultSubsample).
	SubsampleSize int
}

// Record is one flagged row together with its outlier score. Higher scores
// are more unusual.
type Record struct {
	City              string
	Date              time.Time
	AvgTempF          float64
	TempDeltaF        float64
	EnergyConsumption float64
	Score             float64
}

// Detect fits the model over the dataset and returns flagged rows in dataset
// order. Rows with any missing feature are excluded from both fitting and
// labeling.
func Detect(ds dataset.MergedDataset, cfg Config) ([]Record, error) {
	if cfg.Contamination < 0 || cfg.Contamination >= 1 {
		return nil, fmt.Errorf("contamination must be in [0,1), got %v", cfg.Contamination)
	}

	// Candidate rows: complete feature vectors only.
	var candidates []Record
	for _, r := range ds {
		if r.AvgTempF == nil || r.TempDeltaF == nil || r.EnergyConsumption == nil {
			continue
		}
		candidates = append(candidates, Record{
			City:              r.City,
			Date:              r.Date,
			AvgTempF:          *r.AvgTempF,
			TempDeltaF:        *r.TempDeltaF,
			EnergyConsumption: *r.EnergyConsumption,
		})
	}

	n := len(candidates)
	if n < 2 || cfg.Contamination == 0 {
		return nil, nil
	}

	data := make([]float64, 0, n*featureCount)
	for _, c := range candidates {
		data = append(data, c.AvgTempF, c.TempDeltaF, c.EnergyConsumption)
	}
	x := mat.NewDense(n, featureCount, data)

	sample := subsample(x, cfg)
	scores := score(x, sample)
	for i := range candidates {
		candidates[i].Score = scores[i]
	}

	k := int(math.Ceil(cfg.Contamination * float64(n)))
	if k > n {
		k = n
	}

	// Rank by score, stable on the original (city, date) order so ties are
	// deterministic.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Score > candidates[order[b]].Score
	})

	flagged := make(map[int]bool, k)
	for _, i := range order[:k] {
		flagged[i] = true
	}

	out := make([]Record, 0, k)
	for i, c := range candidates {
		if flagged[i] {
			out = append(out, c)
		}
	}
	return out, nil
}

// subsample returns the rows used for moment estimation. Large batches are
// sampled with the configured seed; this is the model's only stochastic step.
func subsample(x *mat.Dense, cfg Config) *mat.Dense {
	n, d := x.Dims()

	limit := cfg.SubsampleSize
	if limit <= 0 {
		limit = defaultSubsample
	}
	if n <= limit {
		return x
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	idx := rng.Perm(n)[:limit]
	sort.Ints(idx)

	sub := mat.NewDense(limit, d, nil)
	for i, j := range idx {
		sub.SetRow(i, x.RawRowView(j))
	}
	return sub
}

// score computes per-row Mahalanobis distances from the sample mean. When the
// covariance is singular (constant columns, tiny batches) it falls back to
// summed squared z-scores; either way the result is deterministic.
func score(x, sample *mat.Dense) []float64 {
	n, d := x.Dims()

	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, sample), nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, sample, nil)

	var chol mat.Cholesky
	if ok := chol.Factorize(&cov); ok {
		mu := mat.NewVecDense(d, mean)
		scores := make([]float64, n)
		for i := 0; i < n; i++ {
			row := mat.NewVecDense(d, mat.Row(nil, i, x))
			scores[i] = stat.Mahalanobis(row, mu, &chol)
		}
		return scores
	}

	return zScores(x, sample, mean)
}

func zScores(x, sample *mat.Dense, mean []float64) []float64 {
	n, d := x.Dims()

	std := make([]float64, d)
	for j := 0; j < d; j++ {
		std[j] = stat.StdDev(mat.Col(nil, j, sample), nil)
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < d; j++ {
			if std[j] == 0 {
				continue
			}
			z := (x.At(i, j) - mean[j]) / std[j]
			s += z * z
		}
		scores[i] = math.Sqrt(s)
	}
	return scores
}
