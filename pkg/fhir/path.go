package fhir

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePath splits a dotted path expression into lookup keys. Numeric
// segments become list indices.
//
//	ParsePath("name.0.given") -> ["name", 0, "given"]
func ParsePath(path string) []any {
	segments := strings.Split(path, ".")
	keys := make([]any, 0, len(segments))

	for _, segment := range segments {
		if index, err := strconv.Atoi(segment); err == nil {
			keys = append(keys, index)
		} else {
			keys = append(keys, segment)
		}
	}

	return keys
}

// GetByPath walks nested maps and lists. Keys are strings for map lookups,
// ints for list indices, or map[string]any for matching a list element by
// field values:
//
//	GetByPath(bundle, []any{"link", map[string]any{"relation": "next"}, "url"}, nil)
//
// Returns def when the path does not resolve.
func GetByPath(data any, path []any, def any) any {
	current := data

	for _, key := range path {
		if current == nil {
			return def
		}

		switch typedKey := key.(type) {
		case string:
			mapped, ok := current.(map[string]any)
			if !ok {
				return def
			}

			value, ok := mapped[typedKey]
			if !ok {
				return def
			}

			current = value
		case int:
			list, ok := current.([]any)
			if !ok || typedKey < 0 || typedKey >= len(list) {
				return def
			}

			current = list[typedKey]
		case map[string]any:
			list, ok := current.([]any)
			if !ok {
				return def
			}

			current = matchListElement(list, typedKey)
			if current == nil {
				return def
			}
		default:
			return def
		}
	}

	if current == nil {
		return def
	}

	return current
}

// SetByPath assigns a value at a path produced by ParsePath. Every
// intermediate container must already exist; a path that does not resolve
// fails with ErrArgument.
func SetByPath(data any, path []any, value any) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrArgument)
	}

	parent := GetByPath(data, path[:len(path)-1], nil)
	if parent == nil {
		return fmt.Errorf("%w: path %v does not resolve", ErrArgument, path[:len(path)-1])
	}

	switch typedKey := path[len(path)-1].(type) {
	case string:
		mapped, ok := parent.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %v is not a map", ErrArgument, path[:len(path)-1])
		}

		mapped[typedKey] = value
	case int:
		list, ok := parent.([]any)
		if !ok || typedKey < 0 || typedKey >= len(list) {
			return fmt.Errorf("%w: index %d out of range at %v", ErrArgument, typedKey, path[:len(path)-1])
		}

		list[typedKey] = value
	default:
		return fmt.Errorf("%w: unsupported path key %v", ErrArgument, typedKey)
	}

	return nil
}

func matchListElement(list []any, criteria map[string]any) any {
	for _, item := range list {
		mapped, ok := item.(map[string]any)
		if !ok {
			continue
		}

		matched := true

		for key, expected := range criteria {
			if mapped[key] != expected {
				matched = false

				break
			}
		}

		if matched {
			return mapped
		}
	}

	return nil
}
