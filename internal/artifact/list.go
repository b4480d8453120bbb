package artifact

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/forest-guardian/maxsatt-segmentation/internal/utils"
)

// Criteria selects artifacts of one project. Zero fields match anything.
type Criteria struct {
	Project   string
	Date      string
	Kind      Kind
	Cropped   *bool
	Product   string
	Algorithm string
}

func (c Criteria) match(k Key) bool {
	if c.Date != "" && c.Date != k.Date {
		return false
	}
	if c.Kind != "" && c.Kind != k.Kind {
		return false
	}
	if c.Cropped != nil && *c.Cropped != k.Cropped {
		return false
	}
	if c.Product != "" && c.Product != k.Product {
		return false
	}
	if c.Algorithm != "" && c.Algorithm != k.Algorithm {
		return false
	}
	return true
}

// List returns the sorted paths of every artifact matching c. Files that do
// not follow the naming scheme, including in-flight temporaries, are skipped.
func (s *Store) List(c Criteria) ([]string, error) {
	if err := checkSegment("project", c.Project, false); err != nil {
		return nil, err
	}
	root := s.ProjectDir(c.Project)

	var paths []string
	for _, kind := range []Kind{KindImage, KindClassification} {
		if c.Kind != "" && c.Kind != kind {
			continue
		}
		dir := filepath.Join(root, string(kind))
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			k, err := ParsePath(c.Project, rel)
			if err != nil {
				return nil
			}
			if c.match(k) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, &StorageError{Op: "list", Path: dir, Err: err}
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// Dates lists the acquisition dates present under one kind of a project,
// oldest first.
func (s *Store) Dates(project string, kind Kind) ([]string, error) {
	dir := filepath.Join(s.ProjectDir(project), string(kind))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list", Path: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	dates := utils.ParseDates(names, DateLayout)
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(DateLayout)
	}
	return out, nil
}
