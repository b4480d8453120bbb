package artifact

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DateLayout is the acquisition date format used as a directory name.
	DateLayout = "2006_01_02"

	rasterExt     = ".tiff"
	croppedDir    = "cropped"
	croppedSuffix = "_Cropped"
	tmpSuffix     = ".tmp"
)

type Kind string

const (
	KindImage          Kind = "images"
	KindClassification Kind = "classification"
)

// Key identifies one artifact. Algorithm, Param, Normalized and Sigma only
// apply to classification artifacts.
type Key struct {
	Project    string
	Date       string
	Cropped    bool
	Kind       Kind
	Product    string
	Algorithm  string
	Param      string
	Normalized bool
	Sigma      float64
}

func ImageKey(project, date, product string, cropped bool) Key {
	return Key{Project: project, Date: date, Cropped: cropped, Kind: KindImage, Product: product}
}

func (k Key) canonical() Key {
	if k.Kind == KindImage {
		k.Algorithm, k.Param, k.Normalized, k.Sigma = "", "", false, 0
	}
	return k
}

// AlgorithmToken is the leading file name token of a label raster. It carries
// every preprocessing option so differently prepared runs never share a file.
func (k Key) AlgorithmToken() string {
	token := k.Algorithm
	if k.Normalized {
		token += "-norm"
	}
	if k.Sigma > 0 {
		token += "-blur" + strconv.FormatFloat(k.Sigma, 'f', -1, 64)
	}
	return token
}

// Name is the file stem of the artifact.
func (k Key) Name() string {
	switch k.Kind {
	case KindClassification:
		return fmt.Sprintf("%s_%s_%s", k.AlgorithmToken(), k.Param, k.Product)
	case KindImage:
		if k.Cropped {
			return k.Product + croppedSuffix
		}
	}
	return k.Product
}

func (k Key) validate() error {
	if err := checkSegment("project", k.Project, false); err != nil {
		return err
	}
	if err := checkSegment("date", k.Date, false); err != nil {
		return err
	}
	if err := checkSegment("product", k.Product, true); err != nil {
		return err
	}
	switch k.Kind {
	case KindImage:
		return nil
	case KindClassification:
		if err := checkSegment("algorithm", k.Algorithm, true); err != nil {
			return err
		}
		if strings.Contains(k.Algorithm, "-") {
			return fmt.Errorf("artifact algorithm %q must not contain '-'", k.Algorithm)
		}
		if err := checkSegment("parameter", k.Param, true); err != nil {
			return err
		}
		if k.Sigma < 0 {
			return fmt.Errorf("invalid artifact sigma %v", k.Sigma)
		}
		return nil
	}
	return fmt.Errorf("unknown artifact kind %q", k.Kind)
}

func (k Key) relPath() (string, error) {
	if err := k.validate(); err != nil {
		return "", err
	}
	dir := filepath.Join(string(k.Kind), k.Date)
	if k.Cropped {
		dir = filepath.Join(dir, croppedDir)
	}
	return filepath.Join(dir, k.Name()+rasterExt), nil
}

func checkSegment(field, v string, token bool) error {
	if v == "" {
		return fmt.Errorf("artifact %s is empty", field)
	}
	if v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
		return fmt.Errorf("artifact %s %q is not a valid path segment", field, v)
	}
	if token && strings.Contains(v, "_") {
		return fmt.Errorf("artifact %s %q must not contain '_'", field, v)
	}
	if strings.HasPrefix(v, ".") {
		return fmt.Errorf("artifact %s %q must not start with '.'", field, v)
	}
	return nil
}

// ParsePath recovers the Key of an artifact from its path relative to the
// project directory. Temporary and foreign files are rejected.
func ParsePath(project, rel string) (Key, error) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	base := parts[len(parts)-1]
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, rasterExt) {
		return Key{}, fmt.Errorf("%s is not a raster artifact", rel)
	}
	stem := strings.TrimSuffix(base, rasterExt)

	k := Key{Project: project}
	switch {
	case len(parts) == 3:
	case len(parts) == 4 && parts[2] == croppedDir:
		k.Cropped = true
	default:
		return Key{}, fmt.Errorf("%s does not follow the artifact layout", rel)
	}
	k.Kind = Kind(parts[0])
	k.Date = parts[1]

	switch k.Kind {
	case KindImage:
		if k.Cropped {
			if !strings.HasSuffix(stem, croppedSuffix) {
				return Key{}, fmt.Errorf("%s is in the cropped folder without the %s suffix", rel, croppedSuffix)
			}
			stem = strings.TrimSuffix(stem, croppedSuffix)
		}
		k.Product = stem
	case KindClassification:
		tokens := strings.Split(stem, "_")
		if len(tokens) != 3 {
			return Key{}, fmt.Errorf("%s is not a label raster name", rel)
		}
		k.Param, k.Product = tokens[1], tokens[2]
		if err := k.parseAlgorithmToken(tokens[0]); err != nil {
			return Key{}, fmt.Errorf("%s: %w", rel, err)
		}
	default:
		return Key{}, fmt.Errorf("%s has unknown artifact kind %q", rel, k.Kind)
	}

	if err := k.validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

func (k *Key) parseAlgorithmToken(token string) error {
	parts := strings.Split(token, "-")
	k.Algorithm = parts[0]
	for _, p := range parts[1:] {
		switch {
		case p == "norm":
			k.Normalized = true
		case strings.HasPrefix(p, "blur"):
			sigma, err := strconv.ParseFloat(strings.TrimPrefix(p, "blur"), 64)
			if err != nil {
				return fmt.Errorf("invalid blur token %q: %w", p, err)
			}
			k.Sigma = sigma
		default:
			return fmt.Errorf("unknown algorithm option %q", p)
		}
	}
	return nil
}
