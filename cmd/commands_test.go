package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/maxsatt-segmentation/internal/config"
	"github.com/forest-guardian/maxsatt-segmentation/internal/ml"
)

func testApp() *app {
	return &app{cfg: &config.Config{
		Classification: config.ClassificationConfig{
			Inits:   4,
			MaxIter: 50,
			Seed:    9,
			Seeded:  false,
			Sigma:   1.5,
		},
		Sweep: config.SweepConfig{MinK: 2, MaxK: 14},
	}}
}

func TestRequestMergesConfigAndFlags(t *testing.T) {
	cases := []struct {
		name  string
		flags map[string]string
		want  ml.Request
	}{
		{
			name:  "kmeans from config",
			flags: map[string]string{"clusters": "5"},
			want: ml.Request{Product: "NDVI", Algorithm: ml.KMeans, Sigma: 1.5,
				Params: ml.Params{Clusters: 5, Inits: 4, MaxIter: 50, Tol: 1e-4, Seed: 9}},
		},
		{
			name:  "seed flag turns seeding on",
			flags: map[string]string{"seed": "3", "sigma": "0", "normalize": "true"},
			want: ml.Request{Product: "NDVI", Algorithm: ml.KMeans, Normalize: true,
				Params: ml.Params{Clusters: 8, Inits: 4, MaxIter: 50, Tol: 1e-4, Seed: 3, Seeded: true}},
		},
		{
			name:  "gmm keeps its own inits and iterations",
			flags: map[string]string{"algorithm": "gmm", "cropped": "true"},
			want: ml.Request{Product: "NDVI", Cropped: true, Algorithm: ml.GMM, Sigma: 1.5,
				Params: ml.Params{Clusters: 3, Inits: 1, MaxIter: 100, Tol: 1e-3, Seed: 9}},
		},
		{
			name:  "dbscan ignores seeding config",
			flags: map[string]string{"algorithm": "dbscan", "eps": "0.25", "min-samples": "7", "force": "true"},
			want: ml.Request{Product: "NDVI", Algorithm: ml.DBSCAN, Sigma: 1.5, Force: true,
				Params: ml.Params{Eps: 0.25, MinSamples: 7}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var flags classifyFlags
			cmd := &cobra.Command{Use: "classify"}
			flags.register(cmd)
			for name, value := range tc.flags {
				require.NoError(t, cmd.Flags().Set(name, value))
			}

			got, err := testApp().request(cmd, &flags, "NDVI")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRequestUnknownAlgorithm(t *testing.T) {
	var flags classifyFlags
	cmd := &cobra.Command{Use: "classify"}
	flags.register(cmd)
	require.NoError(t, cmd.Flags().Set("algorithm", "spectral"))

	_, err := testApp().request(cmd, &flags, "NDVI")
	assert.Error(t, err)
}

func TestSweepFlagsMatchClassify(t *testing.T) {
	a := testApp()
	sweep := newSweepCmd(a)
	classify := newClassifyCmd(a)
	for _, name := range []string{"sigma", "seed", "normalize", "cropped"} {
		assert.NotNil(t, sweep.Flags().Lookup(name), name)
		assert.NotNil(t, classify.Flags().Lookup(name), name)
	}

	params, sigma := a.sweepParams(sweep, 0, 0)
	assert.Equal(t, 1.5, sigma)
	assert.False(t, params.Seeded)
	assert.Equal(t, 4, params.Inits)

	require.NoError(t, sweep.Flags().Set("sigma", "0.5"))
	require.NoError(t, sweep.Flags().Set("seed", "11"))
	params, sigma = a.sweepParams(sweep, 11, 0.5)
	assert.Equal(t, 0.5, sigma)
	assert.True(t, params.Seeded)
	assert.Equal(t, uint64(11), params.Seed)
}
