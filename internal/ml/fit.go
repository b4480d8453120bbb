package ml

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Fit validates the table and runs the requested algorithm in process.
func Fit(ctx context.Context, alg Algorithm, x mat.Matrix, p Params) (Result, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return Result{}, clusteringErrorf(alg, "empty table")
	}
	if err := p.validate(alg, rows); err != nil {
		return Result{}, &ClusteringError{Algorithm: alg, Err: err}
	}
	table := mat.DenseCopyOf(x)
	for i := 0; i < rows; i++ {
		for j, v := range table.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Result{}, clusteringErrorf(alg, "non-finite value %v at row %d column %d", v, i, j)
			}
		}
	}

	var (
		result Result
		err    error
	)
	switch alg {
	case KMeans:
		result, err = kmeans(ctx, table, p, newRand(p))
	case GMM:
		result, err = gmm(ctx, table, p, newRand(p))
	case DBSCAN:
		result, err = dbscan(ctx, table, p)
	}
	if err != nil {
		return Result{}, err
	}
	result.Metrics.Histogram = histogram(result.Labels)
	return result, nil
}

func newRand(p Params) *rand.Rand {
	if p.Seeded {
		return rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i, v := range a {
		d := v - b[i]
		sum += d * d
	}
	return sum
}
