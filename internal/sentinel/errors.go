package sentinel

import (
	"fmt"
	"strings"
)

type UnknownProductError struct {
	Name string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %q (available: %s)", e.Name, strings.Join(Names(), ", "))
}

type MissingBandError struct {
	Tier Tier
	Key  string
}

func (e *MissingBandError) Error() string {
	return fmt.Sprintf("band %s missing from the %s tier", e.Key, e.Tier)
}

// GeometryMismatchError reports inputs that do not share one pixel grid.
type GeometryMismatchError struct {
	Product string
	Band    string
	Reason  string
}

func (e *GeometryMismatchError) Error() string {
	return fmt.Sprintf("product %s: band %s %s", e.Product, e.Band, e.Reason)
}
