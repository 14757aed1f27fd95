package h

import (
	"sort"

	"github.com/thoas/go-funk"
)

func ContainsString(array []string, value string) bool {
	if len(array) == 0 || value == "" {
		return false
	}
	return funk.ContainsString(array, value)
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
