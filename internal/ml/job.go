package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

type State int

const (
	Unfitted State = iota
	Fitting
	Fitted
	Failed
)

func (s State) String() string {
	switch s {
	case Unfitted:
		return "unfitted"
	case Fitting:
		return "fitting"
	case Fitted:
		return "fitted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FitFunc clusters the rows of a table.
type FitFunc func(ctx context.Context, alg Algorithm, x mat.Matrix, p Params) (Result, error)

var ErrJobDone = errors.New("clustering job already ran")

// Job is a single clustering invocation. It runs at most once.
type Job struct {
	alg    Algorithm
	params Params
	fit    FitFunc

	mu     sync.Mutex
	state  State
	result Result
	err    error
}

func NewJob(alg Algorithm, params Params, fit FitFunc) *Job {
	if fit == nil {
		fit = Fit
	}
	return &Job{alg: alg, params: params, fit: fit}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) Run(ctx context.Context, x mat.Matrix) (Result, error) {
	j.mu.Lock()
	if j.state != Unfitted {
		j.mu.Unlock()
		return Result{}, ErrJobDone
	}
	j.state = Fitting
	j.mu.Unlock()

	result, err := j.fit(ctx, j.alg, x, j.params)

	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		var clusterErr *ClusteringError
		if !errors.As(err, &clusterErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = &ClusteringError{Algorithm: j.alg, Err: err}
		}
		j.state, j.err = Failed, err
		return Result{}, err
	}
	j.state, j.result = Fitted, result
	return result, nil
}

// Result returns the outcome of a finished job.
func (j *Job) Result() (Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case Fitted:
		return j.result, nil
	case Failed:
		return Result{}, j.err
	}
	return Result{}, fmt.Errorf("clustering job is %s", j.state)
}
