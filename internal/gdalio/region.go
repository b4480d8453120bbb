package gdalio

import (
	"errors"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/geojson"

	"github.com/forest-guardian/maxsatt-segmentation/internal/crop"
	"github.com/forest-guardian/maxsatt-segmentation/internal/utils"
)

// LoadRegion reads every feature of the first layer of a vector file
// (GeoJSON, KML, Shapefile...), reprojects them to targetCRS and merges them
// into one region.
func LoadRegion(path, targetCRS string) (crop.Region, error) {
	var (
		region crop.Region
		err    error
	)
	utils.ExecuteWithMutex(func() {
		region, err = loadRegion(path, targetCRS)
	})
	return region, err
}

func loadRegion(path, targetCRS string) (crop.Region, error) {
	register()
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return crop.Region{}, fmt.Errorf("failed to open region file %s: %w", path, err)
	}
	defer ds.Close()

	layers := ds.Layers()
	if len(layers) == 0 {
		return crop.Region{}, fmt.Errorf("region file %s has no layers", path)
	}

	target, err := godal.NewSpatialRef(targetCRS)
	if err != nil {
		return crop.Region{}, fmt.Errorf("invalid target CRS: %w", err)
	}
	defer target.Close()

	var merged *godal.Geometry
	defer func() {
		if merged != nil {
			merged.Close()
		}
	}()

	layer := layers[0]
	for {
		feat := layer.NextFeature()
		if feat == nil {
			break
		}
		geom, err := detach(feat)
		feat.Close()
		if err != nil {
			return crop.Region{}, err
		}
		if geom == nil {
			continue
		}
		if err := geom.Reproject(target); err != nil {
			geom.Close()
			return crop.Region{}, fmt.Errorf("failed to reproject region: %w", err)
		}
		if merged == nil {
			merged = geom
			continue
		}
		union, err := merged.Union(geom)
		geom.Close()
		if err != nil {
			return crop.Region{}, fmt.Errorf("failed to merge region features: %w", err)
		}
		merged.Close()
		merged = union
	}
	if merged == nil {
		return crop.Region{}, errors.New("region file has no geometry")
	}

	js, err := merged.GeoJSON()
	if err != nil {
		return crop.Region{}, fmt.Errorf("failed to export region to GeoJSON: %w", err)
	}
	g, err := geojson.UnmarshalGeometry([]byte(js))
	if err != nil {
		return crop.Region{}, fmt.Errorf("failed to decode region GeoJSON: %w", err)
	}
	return crop.Region{CRS: targetCRS, Geometry: g.Geometry()}, nil
}

// detach copies the feature geometry so it outlives the feature.
func detach(feat *godal.Feature) (*godal.Geometry, error) {
	ref := feat.Geometry()
	if ref == nil {
		return nil, nil
	}
	wkb, err := ref.WKB()
	if err != nil {
		return nil, fmt.Errorf("failed to encode region feature: %w", err)
	}
	return godal.NewGeometryFromWKB(wkb, ref.SpatialRef())
}
