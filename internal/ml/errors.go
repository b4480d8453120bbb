package ml

import "fmt"

// ClusteringError reports a fit that could not produce labels.
type ClusteringError struct {
	Algorithm Algorithm
	Err       error
}

func (e *ClusteringError) Error() string {
	return fmt.Sprintf("%s clustering failed: %v", e.Algorithm, e.Err)
}

func (e *ClusteringError) Unwrap() error {
	return e.Err
}

func clusteringErrorf(alg Algorithm, format string, args ...any) *ClusteringError {
	return &ClusteringError{Algorithm: alg, Err: fmt.Errorf(format, args...)}
}
