package sentinel

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
	"github.com/forest-guardian/maxsatt-segmentation/internal/utils"
)

type Tier string

const (
	R10m Tier = "10m"
	R20m Tier = "20m"
	R60m Tier = "60m"
)

var tierDirs = map[Tier]string{
	R10m: "R10m",
	R20m: "R20m",
	R60m: "R60m",
}

// BandSource is a read-once handle on one single-channel raster file.
type BandSource struct {
	key    string
	path   string
	header raster.Header
	codec  raster.Codec

	mu   sync.Mutex
	read bool
}

func (b *BandSource) Key() string           { return b.key }
func (b *BandSource) Path() string          { return b.path }
func (b *BandSource) Header() raster.Header { return b.header }

// Read returns the band as width*height row-major values. The source is closed
// afterwards and a second call fails.
func (b *BandSource) Read() ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.read {
		return nil, fmt.Errorf("band %s already read from %s", b.key, b.path)
	}
	b.read = true

	img, err := b.codec.Read(b.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read band %s: %w", b.key, err)
	}
	if len(img.Bands) != 1 {
		return nil, fmt.Errorf("band %s file %s has %d channels, expected 1", b.key, b.path, len(img.Bands))
	}
	if img.Width != b.header.Width || img.Height != b.header.Height {
		return nil, fmt.Errorf("band %s changed size since it was opened", b.key)
	}
	return img.Bands[0], nil
}

type bandFile struct {
	path   string
	header raster.Header
}

// Manifest holds the band files of one acquisition date per resolution tier.
// Every Lookup hands out a fresh read-once BandSource.
type Manifest struct {
	codec raster.Codec
	tiers map[Tier]map[string]bandFile
}

// NewManifest opens every path of a tier -> band key -> file mapping.
func NewManifest(codec raster.Codec, paths map[Tier]map[string]string) (*Manifest, error) {
	m := &Manifest{codec: codec, tiers: make(map[Tier]map[string]bandFile)}
	for tier, bands := range paths {
		if _, ok := tierDirs[tier]; !ok {
			return nil, fmt.Errorf("unknown resolution tier %q", tier)
		}
		m.tiers[tier] = make(map[string]bandFile, len(bands))
		for key, path := range bands {
			header, err := codec.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open band %s (%s): %w", key, tier, err)
			}
			m.tiers[tier][key] = bandFile{path: path, header: header}
		}
	}
	return m, nil
}

func (m *Manifest) Lookup(tier Tier, key string) (*BandSource, error) {
	f, ok := m.tiers[tier][key]
	if !ok {
		return nil, &MissingBandError{Tier: tier, Key: key}
	}
	return &BandSource{key: key, path: f.path, header: f.header, codec: m.codec}, nil
}

func (m *Manifest) Keys(tier Tier) []string {
	return utils.GetSortedKeys(m.tiers[tier])
}

// spectralBand matches Sentinel-2 band keys. Granules also carry AOT, WVP,
// SCL and TCI layers, which are not bands.
var spectralBand = regexp.MustCompile(`^B(0[1-9]|1[0-2]|8A)$`)

// ScanManifest maps a granule folder laid out as R10m/R20m/R60m, with files
// named <tile>_<datetime>_<band>_<resolution>.<ext>, to band paths.
func ScanManifest(dir string) (map[Tier]map[string]string, error) {
	paths := make(map[Tier]map[string]string)
	for tier, sub := range tierDirs {
		entries, err := os.ReadDir(filepath.Join(dir, sub))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to scan %s: %w", sub, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.Contains(e.Name(), ".aux") {
				continue
			}
			stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			parts := strings.Split(stem, "_")
			if len(parts) < 3 || !spectralBand.MatchString(parts[2]) {
				continue
			}
			if paths[tier] == nil {
				paths[tier] = make(map[string]string)
			}
			paths[tier][parts[2]] = filepath.Join(dir, sub, e.Name())
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no band files found under %s", dir)
	}
	return paths, nil
}
