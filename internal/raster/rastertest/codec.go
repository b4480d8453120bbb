// Package rastertest provides a file-backed raster codec for tests that must
// not depend on a GDAL installation.
package rastertest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

// Codec stores rasters as JSON documents and counts reads and writes.
type Codec struct {
	mu     sync.Mutex
	writes int
	reads  map[string]int
}

func NewCodec() *Codec {
	return &Codec{reads: map[string]int{}}
}

type document struct {
	Info  raster.Info `json:"info"`
	Bands [][]float64 `json:"bands"`
}

func (c *Codec) Stat(path string) (raster.Header, error) {
	doc, err := load(path)
	if err != nil {
		return raster.Header{}, err
	}
	return raster.Header{Info: doc.Info, Channels: len(doc.Bands)}, nil
}

func (c *Codec) Read(path string) (*raster.Image, error) {
	doc, err := load(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.reads[path]++
	c.mu.Unlock()
	return &raster.Image{Info: doc.Info, Bands: doc.Bands}, nil
}

func (c *Codec) Write(path string, img *raster.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	bands := make([][]float64, len(img.Bands))
	for i, b := range img.Bands {
		bands[i] = make([]float64, len(b))
		for j, v := range b {
			bands[i][j] = raster.Cast(v, img.DType)
		}
	}
	data, err := json.Marshal(document{Info: img.Info, Bands: bands})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return nil
}

// Writes returns how many rasters were encoded through this codec.
func (c *Codec) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *Codec) Reads(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[path]
}

// WriteBand writes a single-band raster fixture directly, bypassing any store.
func WriteBand(t interface{ Fatalf(string, ...any) }, path string, info raster.Info, values []float64) {
	WriteImage(t, path, &raster.Image{Info: info, Bands: [][]float64{values}})
}

func WriteImage(t interface{ Fatalf(string, ...any) }, path string, img *raster.Image) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	data, err := json.Marshal(document{Info: img.Info, Bands: img.Bands})
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func load(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode raster %s: %w", path, err)
	}
	return &doc, nil
}
