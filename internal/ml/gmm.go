package ml

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const (
	// regCovar is added to the covariance diagonals so they stay positive.
	regCovar = 1e-6
	// kmeansInitTol is the relative tolerance of the k-means run seeding EM.
	kmeansInitTol  = 1e-4
	kmeansInitIter = 300
)

type gmmModel struct {
	weights []float64
	dists   []*distmv.Normal
}

type gmmRun struct {
	labels     []int
	lowerBound float64
	logLik     float64
}

// gmm fits a full covariance Gaussian mixture with EM, initialised from a
// single k-means run per init. The best init by mean log-likelihood wins.
func gmm(ctx context.Context, x *mat.Dense, p Params, rng *rand.Rand) (Result, error) {
	n, d := x.Dims()
	k := p.Clusters
	tol := kmeansInitTol * meanVariance(x)

	var best *gmmRun
	for init := 0; init < p.Inits; init++ {
		seed, err := lloyd(ctx, x, seedCenters(x, k, rng), kmeansInitIter, tol)
		if err != nil {
			return Result{}, err
		}
		run, err := em(ctx, x, seed.labels, k, p)
		if err != nil {
			return Result{}, err
		}
		if best == nil || run.lowerBound > best.lowerBound {
			best = run
		}
	}

	free := float64(k*d + k*d*(d+1)/2 + k - 1)
	return Result{
		Labels: best.labels,
		Metrics: Metrics{
			AIC: -2*best.logLik + 2*free,
			BIC: -2*best.logLik + free*math.Log(float64(n)),
		},
	}, nil
}

func em(ctx context.Context, x *mat.Dense, labels []int, k int, p Params) (*gmmRun, error) {
	n, _ := x.Dims()
	resp := make([][]float64, n)
	for i, l := range labels {
		resp[i] = make([]float64, k)
		resp[i][l] = 1
	}

	model, err := mStep(x, resp)
	if err != nil {
		return nil, err
	}

	lowerBound := math.Inf(-1)
	for iter := 0; iter < p.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prev := lowerBound
		lowerBound = eStep(x, model, resp) / float64(n)

		if model, err = mStep(x, resp); err != nil {
			return nil, err
		}
		if math.Abs(lowerBound-prev) < p.Tol {
			break
		}
	}

	total := eStep(x, model, resp)
	out := make([]int, n)
	for i, r := range resp {
		out[i] = floats.MaxIdx(r)
	}
	return &gmmRun{labels: out, lowerBound: lowerBound, logLik: total}, nil
}

// eStep fills resp with the posterior of each component and returns the
// total log-likelihood of x.
func eStep(x *mat.Dense, model *gmmModel, resp [][]float64) float64 {
	k := len(model.weights)
	lp := make([]float64, k)
	var total float64
	for i := range resp {
		row := x.RawRowView(i)
		for c := 0; c < k; c++ {
			lp[c] = math.Log(model.weights[c]) + model.dists[c].LogProb(row)
		}
		lse := floats.LogSumExp(lp)
		total += lse
		for c := 0; c < k; c++ {
			resp[i][c] = math.Exp(lp[c] - lse)
		}
	}
	return total
}

func mStep(x *mat.Dense, resp [][]float64) (*gmmModel, error) {
	n, d := x.Dims()
	k := len(resp[0])
	model := &gmmModel{weights: make([]float64, k), dists: make([]*distmv.Normal, k)}

	diff := make([]float64, d)
	for c := 0; c < k; c++ {
		nk := 10 * epsilon
		mean := make([]float64, d)
		for i, r := range resp {
			nk += r[c]
			floats.AddScaled(mean, r[c], x.RawRowView(i))
		}
		floats.Scale(1/nk, mean)

		cov := make([]float64, d*d)
		for i, r := range resp {
			if r[c] == 0 {
				continue
			}
			floats.SubTo(diff, x.RawRowView(i), mean)
			for a := 0; a < d; a++ {
				for b := a; b < d; b++ {
					cov[a*d+b] += r[c] * diff[a] * diff[b]
				}
			}
		}
		sigma := mat.NewSymDense(d, nil)
		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				v := cov[a*d+b] / nk
				if a == b {
					v += regCovar
				}
				sigma.SetSym(a, b, v)
			}
		}

		dist, ok := distmv.NewNormal(mean, sigma, nil)
		if !ok {
			return nil, clusteringErrorf(GMM, "covariance of component %d is not positive definite", c)
		}
		model.dists[c] = dist
		model.weights[c] = nk / float64(n)
	}
	return model, nil
}

// epsilon is the float64 machine epsilon.
const epsilon = 2.220446049250313e-16
