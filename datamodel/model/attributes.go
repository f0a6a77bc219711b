// Package model implements a self-describing hierarchical container for
// scientific data: named variables and nested groups, each carrying ordered
// key/value metadata.  Format adapters populate one root Group so that
// callers can treat every file format the same way once loaded.
package model

import (
	"iter"
	"reflect"
)

// AttributeBag is an ordered mapping from string keys to metadata values.
// Values are scalar numbers, strings, or small fixed-type slices.  Insertion
// order is preserved for reproducible display; it is not part of equality.
//
// The bag reserves no key names of its own.
type AttributeBag struct {
	keys   []string
	values map[string]any
}

// NewAttributes returns an empty bag.
func NewAttributes() *AttributeBag {
	return &AttributeBag{values: map[string]any{}}
}

// Set inserts or overwrites an entry.  A new key is appended at the end of
// the insertion order; overwriting keeps the key's original position.
func (ab *AttributeBag) Set(key string, value any) {
	if _, has := ab.values[key]; !has {
		ab.keys = append(ab.keys, key)
	}
	ab.values[key] = value
}

// Get returns the value for key, or ErrKeyNotFound.
func (ab *AttributeBag) Get(key string) (any, error) {
	val, has := ab.values[key]
	if !has {
		return nil, ErrKeyNotFound
	}
	return val, nil
}

// Lookup is the comma-ok form of Get.
func (ab *AttributeBag) Lookup(key string) (any, bool) {
	val, has := ab.values[key]
	return val, has
}

// Remove deletes an entry, or returns ErrKeyNotFound.
func (ab *AttributeBag) Remove(key string) error {
	if _, has := ab.values[key]; !has {
		return ErrKeyNotFound
	}
	delete(ab.values, key)
	for i, k := range ab.keys {
		if k == key {
			ab.keys = append(ab.keys[:i], ab.keys[i+1:]...)
			break
		}
	}
	return nil
}

// Keys returns the keys in insertion order.  The slice is a copy.
func (ab *AttributeBag) Keys() []string {
	keys := make([]string, len(ab.keys))
	copy(keys, ab.keys)
	return keys
}

// Items iterates over (key, value) pairs in insertion order.
func (ab *AttributeBag) Items() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range ab.keys {
			if !yield(k, ab.values[k]) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (ab *AttributeBag) Len() int {
	return len(ab.keys)
}

// Equal reports whether two bags hold the same keys with equal values.
// Insertion order is a display concern and does not participate.
func (ab *AttributeBag) Equal(other *AttributeBag) bool {
	if ab == nil || other == nil {
		return ab == other
	}
	if len(ab.keys) != len(other.keys) {
		return false
	}
	for k, v := range ab.values {
		ov, has := other.values[k]
		if !has || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}
