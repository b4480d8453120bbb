package gdalio

import "github.com/airbusgeo/godal"

// SameCRS reports whether two CRS definitions (WKT, EPSG:n, PROJ strings)
// describe the same reference system.
func SameCRS(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	register()
	srA, err := godal.NewSpatialRef(a)
	if err != nil {
		return false
	}
	defer srA.Close()
	srB, err := godal.NewSpatialRef(b)
	if err != nil {
		return false
	}
	defer srB.Close()
	return srA.IsSame(srB)
}
