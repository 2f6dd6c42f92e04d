package metrics

import "sort"

// ErrorRow is one line of an error breakdown.
type ErrorRow struct {
	Type     string
	Count    int
	Examples []ErrorExample
}

// SortedErrors converts error buckets into rows sorted by descending count,
// then by type for stability.
func SortedErrors(buckets map[string]ErrorBucket) []ErrorRow {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]ErrorRow, 0, len(buckets))
	for typ, b := range buckets {
		rows = append(rows, ErrorRow{Type: typ, Count: b.Count, Examples: b.Examples})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Type < rows[j].Type
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// SortedPaths returns path metrics ordered by domain, then path.
func SortedPaths(paths map[string]PathMetric) []PathMetric {
	rows := make([]PathMetric, 0, len(paths))
	for _, p := range paths {
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Domain == rows[j].Domain {
			return rows[i].Path < rows[j].Path
		}
		return rows[i].Domain < rows[j].Domain
	})
	return rows
}

// SortedPathKeys returns the keys of errorsByPath in lexical order.
func SortedPathKeys(errorsByPath map[string][]PathError) []string {
	keys := make([]string, 0, len(errorsByPath))
	for k := range errorsByPath {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
