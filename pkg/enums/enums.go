// Package enums holds the string enums shared by models and Postgres.
package enums

import (
	"fmt"
	"slices"
)

// members is the closed set of values for one enum type.
type members[T ~string] struct {
	kind   string
	values []T
}

func enum[T ~string](kind string, values ...T) members[T] {
	return members[T]{kind: kind, values: values}
}

func (m members[T]) has(v T) bool {
	return slices.Contains(m.values, v)
}

// parse is case sensitive; values are stored exactly as Postgres spells them.
func (m members[T]) parse(raw string) (T, error) {
	if v := T(raw); m.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", m.kind, raw)
}
