package crop

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Region is a region of interest already expressed in a raster CRS.
type Region struct {
	CRS      string
	Geometry orb.Geometry
}

func (r Region) validate() error {
	switch g := r.Geometry.(type) {
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) < 3 {
			return fmt.Errorf("region polygon has no exterior ring")
		}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return fmt.Errorf("region multipolygon is empty")
		}
	case orb.Bound:
		if g.IsEmpty() || g.Min[0] == g.Max[0] || g.Min[1] == g.Max[1] {
			return fmt.Errorf("region bound is empty")
		}
	case nil:
		return fmt.Errorf("region has no geometry")
	default:
		return fmt.Errorf("region geometry must be areal, got %s", g.GeoJSONType())
	}
	return nil
}

func (r Region) contains(p orb.Point) bool {
	switch g := r.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Bound:
		return g.Contains(p)
	}
	return false
}
