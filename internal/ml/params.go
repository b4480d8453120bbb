package ml

import (
	"fmt"
	"strconv"
)

type Algorithm string

const (
	KMeans Algorithm = "kmeans"
	GMM    Algorithm = "gmm"
	DBSCAN Algorithm = "dbscan"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case KMeans, GMM, DBSCAN:
		return a, nil
	}
	return "", fmt.Errorf("unknown clustering algorithm %q (expected kmeans, gmm or dbscan)", s)
}

// Params configures one fit. Clusters, Inits, MaxIter and Tol apply to kmeans
// and gmm; Eps and MinSamples to dbscan.
type Params struct {
	Clusters   int
	Inits      int
	MaxIter    int
	Tol        float64
	Eps        float64
	MinSamples int
	Seed       uint64
	Seeded     bool
}

func DefaultParams(alg Algorithm) Params {
	switch alg {
	case GMM:
		return Params{Clusters: 3, Inits: 1, MaxIter: 100, Tol: 1e-3, Seed: 1, Seeded: true}
	case DBSCAN:
		return Params{Eps: 0.5, MinSamples: 5}
	}
	return Params{Clusters: 8, Inits: 10, MaxIter: 300, Tol: 1e-4, Seed: 1, Seeded: true}
}

// Token is the parameter part of a label raster name and of the run log
// clusters column.
func (p Params) Token(alg Algorithm) string {
	if alg == DBSCAN {
		return strconv.FormatFloat(p.Eps, 'f', -1, 64) + "-" + strconv.Itoa(p.MinSamples)
	}
	return strconv.Itoa(p.Clusters)
}

func (p Params) validate(alg Algorithm, samples int) error {
	switch alg {
	case KMeans, GMM:
		if p.Clusters < 1 {
			return fmt.Errorf("clusters must be positive, got %d", p.Clusters)
		}
		if p.Clusters > samples {
			return fmt.Errorf("%d clusters requested for %d pixels", p.Clusters, samples)
		}
		if p.Inits < 1 {
			return fmt.Errorf("inits must be positive, got %d", p.Inits)
		}
		if p.MaxIter < 1 {
			return fmt.Errorf("max iterations must be positive, got %d", p.MaxIter)
		}
		if p.Tol < 0 {
			return fmt.Errorf("tolerance must not be negative, got %v", p.Tol)
		}
	case DBSCAN:
		if !(p.Eps > 0) {
			return fmt.Errorf("eps must be positive, got %v", p.Eps)
		}
		if p.MinSamples < 1 {
			return fmt.Errorf("min samples must be positive, got %d", p.MinSamples)
		}
	default:
		return fmt.Errorf("unknown clustering algorithm %q", alg)
	}
	return nil
}
