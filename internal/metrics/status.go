package metrics

import "sort"

// StatusCount is one row of a status summary.
type StatusCount struct {
	Label string `json:"label" yaml:"label"`
	Count uint64 `json:"count" yaml:"count"`
}

// SummarizeStatus converts a status->count map into rows sorted by
// descending count, then by label for stability.
func SummarizeStatus(counts map[string]uint64) []StatusCount {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]StatusCount, 0, len(counts))
	for label, count := range counts {
		rows = append(rows, StatusCount{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
