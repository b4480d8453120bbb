package delivery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

type Stage string

const (
	StageProducts Stage = "products"
	StageCrop     Stage = "crop"
	StageClassify Stage = "classify"
	StageSweep    Stage = "sweep"
)

// Failure is one artifact that could not be produced.
type Failure struct {
	Project  string
	Date     string
	Stage    Stage
	Artifact string
	Err      error
}

func (f Failure) Error() string {
	if f.Artifact == "" {
		return fmt.Sprintf("%s/%s %s: %v", f.Project, f.Date, f.Stage, f.Err)
	}
	return fmt.Sprintf("%s/%s %s %s: %v", f.Project, f.Date, f.Stage, f.Artifact, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

type Report struct {
	Dates    []string
	Products []raster.Product
	Crops    []raster.Product
	Labels   []raster.Product
	Skipped  int
	Failures []Failure
}

func (r *Report) fail(project, date string, stage Stage, artifact string, err error) {
	r.Failures = append(r.Failures, Failure{Project: project, Date: date, Stage: stage, Artifact: artifact, Err: err})
}

func (r *Report) merge(other Report) {
	r.Dates = append(r.Dates, other.Dates...)
	r.Products = append(r.Products, other.Products...)
	r.Crops = append(r.Crops, other.Crops...)
	r.Labels = append(r.Labels, other.Labels...)
	r.Skipped += other.Skipped
	r.Failures = append(r.Failures, other.Failures...)
}

// Err joins every failure, nil when the batch fully succeeded.
func (r Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (r Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d dates, %d products, %d crops, %d label rasters (%d already present), %d failures",
		len(r.Dates), len(r.Products), len(r.Crops), len(r.Labels), r.Skipped, len(r.Failures))
	for _, f := range r.Failures {
		sb.WriteString("\n- ")
		sb.WriteString(f.Error())
	}
	return sb.String()
}
