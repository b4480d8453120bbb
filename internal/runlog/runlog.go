package runlog

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/forest-guardian/maxsatt-segmentation/internal/utils"
)

const (
	FileName          = "log.csv"
	HistogramFileName = "log_histogram.csv"
)

// Entry is one classification invocation. Field order is the column order
// of log.csv.
type Entry struct {
	Project    string `csv:"project"`
	Date       string `csv:"date"`
	ImageType  string `csv:"image_type"`
	Clusters   string `csv:"clusters"`
	Cropped    bool   `csv:"cropped"`
	Normalized bool   `csv:"normalized"`
	Algorithm  string `csv:"algorithm"`
	Cost       string `csv:"cost"`

	Histogram []Bucket `csv:"-"`
}

type Bucket struct {
	Label int
	Count int
}

// HistogramRow is one cluster of an entry in log_histogram.csv.
type HistogramRow struct {
	Project    string `csv:"project"`
	Date       string `csv:"date"`
	ImageType  string `csv:"image_type"`
	Clusters   string `csv:"clusters"`
	Cropped    bool   `csv:"cropped"`
	Normalized bool   `csv:"normalized"`
	Algorithm  string `csv:"algorithm"`
	Label      int    `csv:"label"`
	Count      int    `csv:"count"`
}

// Log appends entries to projects/<project>/log.csv and keeps cluster sizes
// in the companion log_histogram.csv.
type Log struct {
	projectDir func(project string) string
	locks      utils.KeyedMutex
}

// New builds a log rooted like the artifact store: projects live under
// root/projects.
func New(root string) *Log {
	return &Log{
		projectDir: func(project string) string {
			return filepath.Join(root, "projects", project)
		},
	}
}

func (l *Log) Path(project string) string {
	return filepath.Join(l.projectDir(project), FileName)
}

func (l *Log) HistogramPath(project string) string {
	return filepath.Join(l.projectDir(project), HistogramFileName)
}

// Append writes entries in order. Entries of the same project land in one
// write; the header is written only when the file is new or empty.
func (l *Log) Append(entries ...Entry) error {
	var projects []string
	byProject := make(map[string][]Entry)
	for _, e := range entries {
		if _, ok := byProject[e.Project]; !ok {
			projects = append(projects, e.Project)
		}
		byProject[e.Project] = append(byProject[e.Project], e)
	}

	var errs []error
	for _, project := range projects {
		group := byProject[project]
		var rows []HistogramRow
		for _, e := range group {
			for _, b := range e.Histogram {
				rows = append(rows, HistogramRow{
					Project:    e.Project,
					Date:       e.Date,
					ImageType:  e.ImageType,
					Clusters:   e.Clusters,
					Cropped:    e.Cropped,
					Normalized: e.Normalized,
					Algorithm:  e.Algorithm,
					Label:      b.Label,
					Count:      b.Count,
				})
			}
		}
		if err := l.locks.Execute(l.Path(project), func() error {
			return appendRows(l.Path(project), &group)
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		if err := l.locks.Execute(l.HistogramPath(project), func() error {
			return appendRows(l.HistogramPath(project), &rows)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func appendRows(path string, rows any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log folder: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var buf bytes.Buffer
	if info.Size() == 0 {
		err = gocsv.Marshal(rows, &buf)
	} else {
		err = gocsv.MarshalWithoutHeaders(rows, &buf)
	}
	if err != nil {
		return fmt.Errorf("failed to encode rows for %s: %w", path, err)
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return nil
}

// Read returns every entry of a project's log, oldest first. Histograms are
// not attached; see ReadHistogram.
func (l *Log) Read(project string) ([]Entry, error) {
	var entries []Entry
	if err := readRows(l.Path(project), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Log) ReadHistogram(project string) ([]HistogramRow, error) {
	var rows []HistogramRow
	if err := readRows(l.HistogramPath(project), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func readRows(path string, out any) error {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil
	}
	if err := gocsv.UnmarshalFile(file, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
