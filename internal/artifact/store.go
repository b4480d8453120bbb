package artifact

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

// Store is the filesystem namespace every derived raster lives in. Paths are
// built from a Key only, so a finished artifact is found again by any later run.
type Store struct {
	root  string
	codec raster.Codec

	mu   sync.Mutex
	seen map[string]string
}

func NewStore(root string, codec raster.Codec) *Store {
	return &Store{
		root:  root,
		codec: codec,
		seen:  make(map[string]string),
	}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Codec() raster.Codec {
	return s.codec
}

func (s *Store) ProjectDir(project string) string {
	return filepath.Join(s.root, "projects", project)
}

func (s *Store) GenerateKey(params ...interface{}) string {
	var keyData string
	for _, param := range params {
		keyData += fmt.Sprintf("%v_", param)
	}
	h := sha1.New()
	h.Write([]byte(keyData))
	return hex.EncodeToString(h.Sum(nil))
}

// ResolvePath returns the canonical location of k. Resolving two different
// keys to the same path is reported as a CollisionError.
func (s *Store) ResolvePath(k Key) (string, error) {
	k = k.canonical()
	rel, err := k.relPath()
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.ProjectDir(k.Project), rel)

	fingerprint := s.GenerateKey(k.Project, k.Date, k.Cropped, k.Kind, k.Product, k.Algorithm, k.Param, k.Normalized, k.Sigma)
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.seen[path]; ok && prev != fingerprint {
		return "", &CollisionError{Path: path}
	}
	s.seen[path] = fingerprint
	return path, nil
}

func (s *Store) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &StorageError{Op: "stat", Path: path, Err: err}
}

// Write encodes img to path atomically: the codec writes a hidden temporary
// file in the same directory which is then renamed over path.
func (s *Store) Write(path string, img *raster.Image) error {
	return s.atomic(path, func(tmp string) error {
		return s.codec.Write(tmp, img)
	})
}

// WriteFile is Write for non-raster artifacts.
func (s *Store) WriteFile(path string, fn func(w io.Writer) error) error {
	return s.atomic(path, func(tmp string) error {
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

func (s *Store) atomic(path string, write func(tmp string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return &StorageError{Op: "create", Path: path, Err: err}
	}
	tmpFile := f.Name()
	f.Close()

	if err := write(tmpFile); err != nil {
		os.Remove(tmpFile)
		return &StorageError{Op: "write", Path: path, Err: err}
	}

	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return &StorageError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Describe builds the product descriptor of an existing artifact. Images are
// named after their catalog product, cropped or not, so the name can be fed
// back into a Key.
func (s *Store) Describe(path string, k Key) (raster.Product, error) {
	header, err := s.codec.Stat(path)
	if err != nil {
		return raster.Product{}, &StorageError{Op: "stat", Path: path, Err: err}
	}
	name := k.Name()
	if k.Kind == KindImage {
		name = k.Product
	}
	return raster.Product{
		Header:  header,
		Name:    name,
		Project: k.Project,
		Date:    k.Date,
		Cropped: k.Cropped,
		Path:    path,
	}, nil
}

// PlotPath is where the cost sweep chart of a product is written.
func (s *Store) PlotPath(project, date, product string, cropped bool) (string, error) {
	k := ImageKey(project, date, product, cropped)
	if err := k.validate(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.ProjectDir(project), string(KindClassification), date)
	if cropped {
		dir = filepath.Join(dir, croppedDir)
	}
	return filepath.Join(dir, "elbow_"+product+".png"), nil
}
