package ml

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// blobs returns two tight groups of points around (0, 0) and (10, 10); the
// first half of the rows belongs to the first group.
func blobs(perGroup int, spread float64, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed))
	data := make([]float64, 0, perGroup*4)
	for _, center := range [][2]float64{{0, 0}, {10, 10}} {
		for i := 0; i < perGroup; i++ {
			data = append(data, center[0]+rng.NormFloat64()*spread, center[1]+rng.NormFloat64()*spread)
		}
	}
	return mat.NewDense(perGroup*2, 2, data)
}

func assertTwoGroups(t *testing.T, labels []int, perGroup int) {
	t.Helper()
	first, second := labels[0], labels[perGroup]
	assert.NotEqual(t, first, second)
	for i := 0; i < perGroup; i++ {
		assert.Equal(t, first, labels[i])
		assert.Equal(t, second, labels[perGroup+i])
	}
}

func TestKMeansSeparatesGroups(t *testing.T) {
	x := blobs(30, 0.5, 1)
	p := DefaultParams(KMeans)
	p.Clusters = 2

	result, err := Fit(context.Background(), KMeans, x, p)
	require.NoError(t, err)
	assertTwoGroups(t, result.Labels, 30)
	assert.Greater(t, result.Metrics.Inertia, 0.0)
	assert.Equal(t, []ClusterSize{{Label: 0, Count: 30}, {Label: 1, Count: 30}}, result.Metrics.Histogram)
}

func TestKMeansSeededIsDeterministic(t *testing.T) {
	x := blobs(50, 3, 7)
	p := DefaultParams(KMeans)
	p.Clusters = 5
	p.Seed = 42

	first, err := Fit(context.Background(), KMeans, x, p)
	require.NoError(t, err)
	second, err := Fit(context.Background(), KMeans, x, p)
	require.NoError(t, err)

	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.Metrics.Inertia, second.Metrics.Inertia)
	for _, l := range first.Labels {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 5)
	}
}

func TestKMeansInertiaDecreasesWithK(t *testing.T) {
	x := blobs(40, 2, 3)
	p := DefaultParams(KMeans)

	prev := math.Inf(1)
	for k := 1; k <= 4; k++ {
		p.Clusters = k
		result, err := Fit(context.Background(), KMeans, x, p)
		require.NoError(t, err)
		assert.LessOrEqual(t, result.Metrics.Inertia, prev+1e-9)
		prev = result.Metrics.Inertia
	}
}

func TestKMeansDuplicatePoints(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 1, 1, 1})
	p := DefaultParams(KMeans)
	p.Clusters = 3

	result, err := Fit(context.Background(), KMeans, x, p)
	require.NoError(t, err)
	assert.Zero(t, result.Metrics.Inertia)
	for _, l := range result.Labels {
		assert.Less(t, l, 3)
	}
}

func TestFitRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	p := DefaultParams(KMeans)

	p.Clusters = 5
	_, err := Fit(ctx, KMeans, mat.NewDense(3, 1, []float64{1, 2, 3}), p)
	var clusterErr *ClusteringError
	require.ErrorAs(t, err, &clusterErr)
	assert.Equal(t, KMeans, clusterErr.Algorithm)

	p.Clusters = 0
	_, err = Fit(ctx, KMeans, mat.NewDense(3, 1, []float64{1, 2, 3}), p)
	assert.ErrorAs(t, err, &clusterErr)

	p.Clusters = 2
	_, err = Fit(ctx, KMeans, mat.NewDense(3, 1, []float64{1, math.NaN(), 3}), p)
	assert.ErrorAs(t, err, &clusterErr)

	_, err = Fit(ctx, GMM, mat.NewDense(3, 1, []float64{1, math.Inf(1), 3}), DefaultParams(GMM))
	assert.ErrorAs(t, err, &clusterErr)

	bad := DefaultParams(DBSCAN)
	bad.Eps = 0
	_, err = Fit(ctx, DBSCAN, mat.NewDense(3, 1, []float64{1, 2, 3}), bad)
	assert.ErrorAs(t, err, &clusterErr)
}

func TestFitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := DefaultParams(KMeans)
	p.Clusters = 2
	_, err := Fit(ctx, KMeans, blobs(10, 1, 1), p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGMMSeparatesGroups(t *testing.T) {
	x := blobs(40, 0.7, 11)
	p := DefaultParams(GMM)
	p.Clusters = 2

	result, err := Fit(context.Background(), GMM, x, p)
	require.NoError(t, err)
	assertTwoGroups(t, result.Labels, 40)

	assert.False(t, math.IsNaN(result.Metrics.AIC))
	assert.False(t, math.IsInf(result.Metrics.BIC, 0))
	// 2 components in 2-D have 11 free parameters; ln(80) > 2 so BIC > AIC.
	assert.InDelta(t, (result.Metrics.BIC-result.Metrics.AIC)/11, math.Log(80)-2, 1e-9)
}

func TestDBSCANLabelsNoise(t *testing.T) {
	x := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 0.2,
		0.2, 0,
		0.1, 0.1,
		5, 5,
		5, 5.2,
		5.2, 5,
		5.1, 5.1,
		20, 20,
	})
	p := Params{Eps: 0.5, MinSamples: 3}

	result, err := Fit(context.Background(), DBSCAN, x, p)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 1, -1}, result.Labels)
	assert.Equal(t, []ClusterSize{{Label: 0, Count: 4}, {Label: 1, Count: 4}, {Label: -1, Count: 1}}, result.Metrics.Histogram)
}

func TestDBSCANBorderPoints(t *testing.T) {
	// 0..3 are dense, 4 is only reachable from 3.
	x := mat.NewDense(5, 1, []float64{0, 0.1, 0.2, 0.3, 0.7})
	result, err := Fit(context.Background(), DBSCAN, x, Params{Eps: 0.45, MinSamples: 4})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, result.Labels)

	result, err = Fit(context.Background(), DBSCAN, x, Params{Eps: 0.15, MinSamples: 4})
	require.NoError(t, err)
	for _, l := range result.Labels {
		assert.Equal(t, -1, l)
	}
}

func TestHistogramOrder(t *testing.T) {
	got := histogram([]int{2, 0, 1, 1, 2, -1})
	assert.Equal(t, []ClusterSize{{1, 2}, {2, 2}, {-1, 1}, {0, 1}}, got)
}

func TestCost(t *testing.T) {
	assert.Equal(t, "12.5", Cost(KMeans, &Result{Metrics: Metrics{Inertia: 12.5}}))
	assert.Equal(t, "AIC=10;BIC=12.25", Cost(GMM, &Result{Metrics: Metrics{AIC: 10, BIC: 12.25}}))
	assert.Equal(t, "n/a", Cost(DBSCAN, &Result{}))
	assert.Equal(t, "failed", Cost(KMeans, nil))
}

func TestParamsToken(t *testing.T) {
	assert.Equal(t, "7", Params{Clusters: 7}.Token(KMeans))
	assert.Equal(t, "0.5-10", Params{Eps: 0.5, MinSamples: 10}.Token(DBSCAN))
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("gmm")
	require.NoError(t, err)
	assert.Equal(t, GMM, alg)
	_, err = ParseAlgorithm("spectral")
	assert.Error(t, err)
}

func TestJobRunsOnce(t *testing.T) {
	calls := 0
	fit := func(ctx context.Context, alg Algorithm, x mat.Matrix, p Params) (Result, error) {
		calls++
		return Result{Labels: []int{0}}, nil
	}
	job := NewJob(KMeans, Params{Clusters: 1}, fit)
	assert.Equal(t, Unfitted, job.State())

	_, err := job.Run(context.Background(), mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)
	assert.Equal(t, Fitted, job.State())

	_, err = job.Run(context.Background(), mat.NewDense(1, 1, []float64{1}))
	assert.ErrorIs(t, err, ErrJobDone)
	assert.Equal(t, 1, calls)

	result, err := job.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.Labels)
}

func TestJobFailure(t *testing.T) {
	fit := func(ctx context.Context, alg Algorithm, x mat.Matrix, p Params) (Result, error) {
		return Result{}, errors.New("diverged")
	}
	job := NewJob(GMM, Params{}, fit)
	_, err := job.Run(context.Background(), mat.NewDense(1, 1, []float64{1}))

	var clusterErr *ClusteringError
	require.ErrorAs(t, err, &clusterErr)
	assert.Equal(t, GMM, clusterErr.Algorithm)
	assert.Equal(t, Failed, job.State())

	_, err = job.Result()
	assert.ErrorAs(t, err, &clusterErr)
}
