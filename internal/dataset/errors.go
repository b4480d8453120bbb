package dataset

import "fmt"

// ShapeError reports a raster or table whose dimensions cannot be converted.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "invalid shape: " + e.Reason
}

func shapeErrorf(format string, args ...any) *ShapeError {
	return &ShapeError{Reason: fmt.Sprintf(format, args...)}
}

// DegenerateColumnError is returned when a column has zero variance and
// cannot be standardized.
type DegenerateColumnError struct {
	Column int
}

func (e *DegenerateColumnError) Error() string {
	return fmt.Sprintf("column %d has zero variance", e.Column)
}
