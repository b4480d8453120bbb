package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type DegeneratePolicy int

const (
	// DegenerateRaise fails standardization on a zero-variance column.
	DegenerateRaise DegeneratePolicy = iota
	// DegeneratePassThrough copies zero-variance columns unchanged.
	DegeneratePassThrough
)

func ParseDegeneratePolicy(s string) (DegeneratePolicy, error) {
	switch s {
	case "", "error":
		return DegenerateRaise, nil
	case "passthrough":
		return DegeneratePassThrough, nil
	}
	return 0, fmt.Errorf("unknown degenerate column policy %q", s)
}

// Standardize returns a copy of t where every column has zero mean and unit
// population standard deviation.
func Standardize(t mat.Matrix, policy DegeneratePolicy) (*mat.Dense, error) {
	rows, cols := t.Dims()
	out := mat.DenseCopyOf(t)

	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, t)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			if policy == DegeneratePassThrough {
				continue
			}
			return nil, &DegenerateColumnError{Column: j}
		}
		for i, v := range col {
			out.Set(i, j, (v-mean)/std)
		}
	}
	return out, nil
}

// Smooth applies a 2-D Gaussian filter to every column of t, seen as a
// height x width grid. Borders reflect including the edge pixel.
func Smooth(t mat.Matrix, sigma float64, height, width int) (*mat.Dense, error) {
	if sigma < 0 || math.IsNaN(sigma) {
		return nil, fmt.Errorf("smoothing sigma must not be negative, got %v", sigma)
	}
	bands, err := Unflatten(t, height, width)
	if err != nil {
		return nil, err
	}
	if sigma == 0 {
		return mat.DenseCopyOf(t), nil
	}

	kernel := gaussianKernel(sigma)
	rows, cols := t.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j, band := range bands {
		smoothed := convolveRows(band, kernel, height, width)
		smoothed = convolveCols(smoothed, kernel, height, width)
		out.SetCol(j, smoothed)
	}
	return out, nil
}

// gaussianKernel returns normalized weights for offsets -r..r, with
// r = int(4*sigma + 0.5).
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func convolveRows(band, kernel []float64, height, width int) []float64 {
	radius := len(kernel) / 2
	out := make([]float64, len(band))
	for y := 0; y < height; y++ {
		row := band[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			acc := 0.0
			for k, w := range kernel {
				acc += w * row[reflectIndex(x+k-radius, width)]
			}
			out[y*width+x] = acc
		}
	}
	return out
}

func convolveCols(band, kernel []float64, height, width int) []float64 {
	radius := len(kernel) / 2
	out := make([]float64, len(band))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			acc := 0.0
			for k, w := range kernel {
				acc += w * band[reflectIndex(y+k-radius, height)*width+x]
			}
			out[y*width+x] = acc
		}
	}
	return out
}

// reflectIndex maps i into [0, n) mirroring at the borders with the edge
// sample repeated: ... 1 0 | 0 1 2 3 | 3 2 ...
func reflectIndex(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}
