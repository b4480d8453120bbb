package ml

import (
	"fmt"
	"slices"
	"strconv"
)

type ClusterSize struct {
	Label int
	Count int
}

type Metrics struct {
	Inertia   float64
	AIC       float64
	BIC       float64
	Histogram []ClusterSize
}

type Result struct {
	// Labels holds one label per table row; dbscan noise is -1.
	Labels  []int
	Metrics Metrics
}

// histogram counts labels, largest cluster first and label order on ties.
func histogram(labels []int) []ClusterSize {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	out := make([]ClusterSize, 0, len(counts))
	for l, c := range counts {
		out = append(out, ClusterSize{Label: l, Count: c})
	}
	slices.SortFunc(out, func(a, b ClusterSize) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return a.Label - b.Label
	})
	return out
}

// Cost renders the run log cost column. A nil result means the run failed.
func Cost(alg Algorithm, r *Result) string {
	if r == nil {
		return "failed"
	}
	switch alg {
	case KMeans:
		return strconv.FormatFloat(r.Metrics.Inertia, 'g', -1, 64)
	case GMM:
		return fmt.Sprintf("AIC=%s;BIC=%s",
			strconv.FormatFloat(r.Metrics.AIC, 'g', -1, 64),
			strconv.FormatFloat(r.Metrics.BIC, 'g', -1, 64))
	}
	return "n/a"
}
