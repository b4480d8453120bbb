package artifact

import "fmt"

// StorageError wraps a filesystem or codec failure on an artifact path.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CollisionError means two different artifact keys mapped to one path.
type CollisionError struct {
	Path string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("artifact path collision on %s", e.Path)
}
