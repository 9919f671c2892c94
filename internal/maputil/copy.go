// Package maputil provides deep-copy and cleanup helpers for the
// map[string]interface{} documents shared by option trees and manifests.
package maputil

import "sort"

// DeepCopy copies maps and slices recursively. Other values are returned
// as-is, so value types such as references stay intact.
func DeepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return DeepCopyMap(val)
	case []interface{}:
		return DeepCopySlice(val)
	default:
		return v
	}
}

// DeepCopyMap performs a deep copy of a map[string]interface{}.
func DeepCopyMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}

	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = DeepCopy(v)
	}

	return dst
}

// DeepCopySlice performs a deep copy of a []interface{}.
func DeepCopySlice(src []interface{}) []interface{} {
	if src == nil {
		return nil
	}

	dst := make([]interface{}, len(src))
	for i, v := range src {
		dst[i] = DeepCopy(v)
	}

	return dst
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

// PruneNulls removes nil values from m recursively, in place. Empty maps are
// kept because some fields (emptyDir: {}) carry meaning when present.
func PruneNulls(m map[string]interface{}) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case map[string]interface{}:
			PruneNulls(val)
		case []interface{}:
			for _, item := range val {
				if nested, ok := item.(map[string]interface{}); ok {
					PruneNulls(nested)
				}
			}
		}
	}
}
