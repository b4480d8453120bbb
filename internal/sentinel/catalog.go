package sentinel

import (
	"github.com/forest-guardian/maxsatt-segmentation/internal/raster"
)

type FormulaKind int

const (
	Index FormulaKind = iota
	Composite
	AllBands
)

func (k FormulaKind) String() string {
	switch k {
	case Index:
		return "index"
	case Composite:
		return "composite"
	case AllBands:
		return "all-bands"
	}
	return "unknown"
}

type BandRef struct {
	Tier Tier
	Key  string
}

// Formula describes how one product is derived from bands. Index formulas take
// exactly two inputs (a, b) and produce (a-b)/(a+b). Composites stack their
// inputs in order. AllBands stacks every 10m band.
type Formula struct {
	Name   string
	Kind   FormulaKind
	Inputs []BandRef
}

func ref(tier Tier, key string) BandRef {
	return BandRef{Tier: tier, Key: key}
}

var catalog = []Formula{
	{Name: "RGB", Kind: Composite, Inputs: []BandRef{ref(R10m, "B04"), ref(R10m, "B03"), ref(R10m, "B02")}},
	{Name: "NDVI", Kind: Index, Inputs: []BandRef{ref(R10m, "B08"), ref(R10m, "B04")}},
	{Name: "NDBI", Kind: Index, Inputs: []BandRef{ref(R20m, "B11"), ref(R20m, "B8A")}},
	{Name: "NDMI", Kind: Index, Inputs: []BandRef{ref(R20m, "B8A"), ref(R20m, "B11")}},
	{Name: "NDRE", Kind: Index, Inputs: []BandRef{ref(R20m, "B8A"), ref(R20m, "B05")}},
	{Name: "AGRI", Kind: Composite, Inputs: []BandRef{ref(R10m, "B02"), ref(R20m, "B11"), ref(R10m, "B08")}},
	{Name: "BAT", Kind: Composite, Inputs: []BandRef{ref(R10m, "B04"), ref(R10m, "B03"), ref(R60m, "B01")}},
	{Name: "GEO", Kind: Composite, Inputs: []BandRef{ref(R10m, "B02"), ref(R20m, "B11"), ref(R20m, "B12")}},
	{Name: "SWI", Kind: Composite, Inputs: []BandRef{ref(R10m, "B04"), ref(R20m, "B8A"), ref(R20m, "B12")}},
	{Name: "ALLBANDS", Kind: AllBands},
}

// allBandsType is the storage type of every ALLBANDS channel.
const allBandsType = raster.UInt16

func Lookup(name string) (Formula, error) {
	for _, f := range catalog {
		if f.Name == name {
			return f, nil
		}
	}
	return Formula{}, &UnknownProductError{Name: name}
}

func Names() []string {
	names := make([]string, len(catalog))
	for i, f := range catalog {
		names[i] = f.Name
	}
	return names
}

// bands resolves the formula's inputs against a manifest.
func (f Formula) bands(m *Manifest) ([]*BandSource, error) {
	refs := f.Inputs
	if f.Kind == AllBands {
		keys := m.Keys(R10m)
		if len(keys) == 0 {
			return nil, &MissingBandError{Tier: R10m, Key: "*"}
		}
		refs = make([]BandRef, len(keys))
		for i, k := range keys {
			refs[i] = ref(R10m, k)
		}
	}

	sources := make([]*BandSource, 0, len(refs))
	for _, r := range refs {
		src, err := m.Lookup(r.Tier, r.Key)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// combine turns the read input bands into output channels and their type.
func (f Formula) combine(data [][]float64, first raster.DType) ([][]float64, raster.DType) {
	switch f.Kind {
	case Index:
		return [][]float64{calculateIndex(data[0], data[1])}, raster.Float64
	case AllBands:
		return castBands(data, allBandsType), allBandsType
	}
	return stackBands(data), first
}
