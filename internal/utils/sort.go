package utils

import (
	"cmp"
	"slices"
	"time"
)

func SortDates(dates []time.Time, asc bool) []time.Time {
	slices.SortFunc(dates, func(a, b time.Time) int {
		if asc {
			return a.Compare(b)
		}
		return b.Compare(a)
	})
	return dates
}

func GetSortedKeys[K cmp.Ordered, T any](m map[K]T) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ParseDates parses acquisition dates in the given layout and returns them sorted
// ascending, skipping values that do not match.
func ParseDates(values []string, layout string) []time.Time {
	dates := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return SortDates(dates, true)
}
