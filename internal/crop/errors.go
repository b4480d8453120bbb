package crop

import "fmt"

type CRSMismatchError struct {
	Product   string
	RasterCRS string
	RegionCRS string
}

func (e *CRSMismatchError) Error() string {
	return fmt.Sprintf("region CRS does not match product %s (raster %q, region %q)", e.Product, short(e.RasterCRS), short(e.RegionCRS))
}

type EmptyIntersectionError struct {
	Product string
}

func (e *EmptyIntersectionError) Error() string {
	return fmt.Sprintf("region does not intersect the extent of product %s", e.Product)
}

func short(s string) string {
	if len(s) > 48 {
		return s[:45] + "..."
	}
	return s
}
