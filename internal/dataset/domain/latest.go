package domain

import (
	"sort"
	"strings"

	"github.com/restorehq/restore/internal/partition"
)

// LatestObject picks the newest CSV object by the timestamp in its name.
// Ties and names without a timestamp fall back to the path, descending, so
// the choice never depends on listing order.
func LatestObject(paths []string) (string, bool) {
	candidates := SortNewestFirst(paths)
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0], true
}

// SortNewestFirst returns the CSV paths ordered newest first.
func SortNewestFirst(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasSuffix(strings.ToLower(p), ".csv") {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := partition.ParseSalesTimestamp(out[i])
		tj, okJ := partition.ParseSalesTimestamp(out[j])
		switch {
		case okI && !okJ:
			return true
		case !okI && okJ:
			return false
		case okI && okJ && !ti.Equal(tj):
			return ti.After(tj)
		default:
			return out[i] > out[j]
		}
	})
	return out
}
