package ml

import (
	"context"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type kmeansRun struct {
	centers *mat.Dense
	labels  []int
	inertia float64
}

// kmeans keeps the lowest inertia run out of p.Inits k-means++ seeded Lloyd
// runs. Convergence is declared when the squared center shift drops below
// p.Tol times the mean feature variance.
func kmeans(ctx context.Context, x *mat.Dense, p Params, rng *rand.Rand) (Result, error) {
	tol := p.Tol * meanVariance(x)

	var best *kmeansRun
	for init := 0; init < p.Inits; init++ {
		run, err := lloyd(ctx, x, seedCenters(x, p.Clusters, rng), p.MaxIter, tol)
		if err != nil {
			return Result{}, err
		}
		if best == nil || run.inertia < best.inertia {
			best = run
		}
	}
	return Result{Labels: best.labels, Metrics: Metrics{Inertia: best.inertia}}, nil
}

func meanVariance(x *mat.Dense) float64 {
	rows, cols := x.Dims()
	col := make([]float64, rows)
	var sum float64
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		_, std := stat.PopMeanStdDev(col, nil)
		sum += std * std
	}
	return sum / float64(cols)
}

// seedCenters picks k initial centers with k-means++: each new center is a
// row drawn with probability proportional to its squared distance to the
// closest center chosen so far.
func seedCenters(x *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, d := x.Dims()
	centers := mat.NewDense(k, d, nil)
	centers.SetRow(0, x.RawRowView(rng.IntN(n)))

	closest := make([]float64, n)
	for i := range closest {
		closest[i] = sqDist(x.RawRowView(i), centers.RawRowView(0))
	}

	for c := 1; c < k; c++ {
		pick := -1
		if total := floats.Sum(closest); total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i, w := range closest {
				acc += w
				if acc > target {
					pick = i
					break
				}
			}
			if pick < 0 {
				for i := n - 1; i >= 0; i-- {
					if closest[i] > 0 {
						pick = i
						break
					}
				}
			}
		} else {
			pick = rng.IntN(n)
		}

		centers.SetRow(c, x.RawRowView(pick))
		for i := range closest {
			if dist := sqDist(x.RawRowView(i), centers.RawRowView(c)); dist < closest[i] {
				closest[i] = dist
			}
		}
	}
	return centers
}

func lloyd(ctx context.Context, x, centers *mat.Dense, maxIter int, tol float64) (*kmeansRun, error) {
	n, _ := x.Dims()
	k, _ := centers.Dims()
	labels := make([]int, n)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		assign(x, centers, labels)
		next := updateCenters(x, labels, centers)

		var shift float64
		for c := 0; c < k; c++ {
			shift += sqDist(centers.RawRowView(c), next.RawRowView(c))
		}
		centers = next
		if shift <= tol {
			break
		}
	}

	inertia := assign(x, centers, labels)
	return &kmeansRun{centers: centers, labels: labels, inertia: inertia}, nil
}

// assign labels every row with its nearest center, lowest index on ties, and
// returns the inertia.
func assign(x, centers *mat.Dense, labels []int) float64 {
	k, _ := centers.Dims()
	var inertia float64
	for i := range labels {
		row := x.RawRowView(i)
		best, bestDist := 0, sqDist(row, centers.RawRowView(0))
		for c := 1; c < k; c++ {
			if dist := sqDist(row, centers.RawRowView(c)); dist < bestDist {
				best, bestDist = c, dist
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

// updateCenters moves every center to the mean of its rows. A center without
// rows stays where it was.
func updateCenters(x *mat.Dense, labels []int, prev *mat.Dense) *mat.Dense {
	k, d := prev.Dims()
	next := mat.NewDense(k, d, nil)
	counts := make([]int, k)
	for i, l := range labels {
		floats.Add(next.RawRowView(l), x.RawRowView(i))
		counts[l]++
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			next.SetRow(c, prev.RawRowView(c))
			continue
		}
		floats.Scale(1/float64(counts[c]), next.RawRowView(c))
	}
	return next
}
