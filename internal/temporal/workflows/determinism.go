package workflows

import "sort"

// SortedMapKeys returns the keys of a map sorted in ascending order.
// Go maps iterate in random order, so workflow logic that iterates a map
// must sort keys first to execute identically on replay.
func SortedMapKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}

// DeduplicateSorted removes duplicates and returns the result sorted in
// ascending order. The input slice is not modified.
func DeduplicateSorted[T ~string](s []T) []T {
	if len(s) == 0 {
		return []T{}
	}
	seen := make(map[T]struct{}, len(s))
	result := make([]T, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	return result
}
