package metadata

import "sort"

// Store is the raw key/value view of an embedded metadata block. Keys use the
// hierarchical exiv2 path syntax, e.g. "Xmp.rmd.CropArea/stArea:x", with
// array items addressed as "Xmp.rmd.RecommendedFrames[1]".
type Store interface {
	Has(key string) bool
	Value(key string) (string, bool)
	Keys() []string
}

// MapStore is a Store backed by a plain map
type MapStore map[string]string

// Has reports whether key is present
func (m MapStore) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Value returns the raw text stored under key
func (m MapStore) Value(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Keys returns all keys in lexical order
func (m MapStore) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies every entry of other into m, overwriting existing keys
func (m MapStore) Merge(other MapStore) {
	for k, v := range other {
		m[k] = v
	}
}
