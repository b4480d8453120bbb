package sentinel

import (
	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

// calculateIndex computes the normalized difference (a-b)/(a+b). A zero
// denominator yields 0.
func calculateIndex(band1, band2 []float64) []float64 {
	result := make([]float64, len(band1))
	for i := range result {
		denominator := band1[i] + band2[i]
		if denominator != 0 {
			result[i] = (band1[i] - band2[i]) / denominator
		} else {
			result[i] = 0
		}
	}
	return result
}

func stackBands(bands [][]float64) [][]float64 {
	out := make([][]float64, len(bands))
	copy(out, bands)
	return out
}

func castBands(bands [][]float64, dt raster.DType) [][]float64 {
	out := make([][]float64, len(bands))
	for i, b := range bands {
		out[i] = make([]float64, len(b))
		for j, v := range b {
			out[i][j] = raster.Cast(v, dt)
		}
	}
	return out
}
