package fhir

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// FHIR wire formats for temporal search values.
const (
	dateTimeFormat = "2006-01-02T15:04:05Z"
	dateFormat     = "2006-01-02"
)

// Date marks a value that should be rendered date-only ("2006-01-02") instead
// of the full instant format used for time.Time.
type Date time.Time

// prefix operators are prepended to every value (e.g. "ge2019").
var prefixOperators = map[string]struct{}{
	"eq": {}, "ne": {}, "gt": {}, "ge": {}, "lt": {},
	"le": {}, "sa": {}, "eb": {}, "ap": {},
}

// modifiers are appended to the parameter name (e.g. "name:contains").
var modifiers = map[string]struct{}{
	"contains": {}, "exact": {}, "missing": {}, "not": {}, "below": {},
	"above": {}, "in": {}, "not_in": {}, "text": {}, "of_type": {},
}

// Raw carries literal key/value pairs into SQ, bypassing all key and value
// transformation. Values may be scalars or lists of scalars.
type Raw map[string]any

// transformParam normalizes underscores to hyphens in parameter name tokens.
// Reserved control parameters (leading `_`, e.g. _id, _has, _include) and
// literal path expressions (leading `.`) pass through untouched.
func transformParam(param string) string {
	if param == "" || param[0] == '_' || param[0] == '.' {
		return param
	}

	return strings.ReplaceAll(param, "_", "-")
}

// transformValue renders a scalar search value into its wire form.
func transformValue(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case bool:
		if typed {
			return "true", nil
		}

		return "false", nil
	case int:
		return strconv.Itoa(typed), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case time.Time:
		return typed.UTC().Format(dateTimeFormat), nil
	case Date:
		return time.Time(typed).Format(dateFormat), nil
	case *Resource:
		if typed.Reference() == "" {
			return "", fmt.Errorf("%w: can not use unsaved resource as a search value", ErrArgument)
		}

		return typed.Reference(), nil
	case *Reference:
		return typed.Reference(), nil
	case fmt.Stringer:
		return typed.String(), nil
	default:
		return fmt.Sprint(typed), nil
	}
}

// transformValues accepts a scalar or a list of scalars.
func transformValues(value any) ([]string, error) {
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...), nil
	case []any:
		values := make([]string, 0, len(typed))
		for _, item := range typed {
			rendered, err := transformValue(item)
			if err != nil {
				return nil, err
			}

			values = append(values, rendered)
		}

		return values, nil
	default:
		rendered, err := transformValue(value)
		if err != nil {
			return nil, err
		}

		return []string{rendered}, nil
	}
}

func isTypeHop(segment string) bool {
	if segment == "" {
		return false
	}

	return unicode.IsUpper(rune(segment[0]))
}

// buildParamName assembles the chained parameter name from `__`-split
// segments: the first as-is, later segments joined with `:` for resource-type
// hops (leading capital) and `.` for field hops.
func buildParamName(segments []string) string {
	var builder strings.Builder

	builder.WriteString(transformParam(segments[0]))

	for _, segment := range segments[1:] {
		if isTypeHop(segment) {
			builder.WriteByte(':')
			builder.WriteString(segment)
		} else {
			builder.WriteByte('.')
			builder.WriteString(transformParam(segment))
		}
	}

	return builder.String()
}

// sqPair translates a single key/value filter expression into parameter name
// and wire values.
func sqPair(key string, value any) (string, []string, error) {
	values, err := transformValues(value)
	if err != nil {
		return "", nil, err
	}

	segments := strings.Split(key, "__")

	operator := ""
	if len(segments) > 1 {
		// Membership in the operator/modifier sets wins over treating the
		// trailing segment as a chain hop.
		last := segments[len(segments)-1]

		_, isPrefix := prefixOperators[last]

		_, isModifier := modifiers[last]
		if isPrefix || isModifier {
			operator = last
			segments = segments[:len(segments)-1]
		}
	}

	param := buildParamName(segments)

	if operator != "" {
		if _, ok := prefixOperators[operator]; ok {
			prefixed := make([]string, len(values))
			for i, v := range values {
				prefixed[i] = operator + v
			}

			values = prefixed
		} else {
			param = param + ":" + transformParam(operator)
		}
	}

	return param, values, nil
}

// SQ builds a search-parameter multimap from filter expressions. Arguments
// are alternating key/value pairs, with any number of Raw maps mixed in:
//
//	SQ("patient__Patient__birth_date__ge", "2000", Raw{"_has:Person:link:id": "id"})
//
// Keys encode an optional chained parameter path and a trailing prefix
// operator or modifier via `__`-separated segments. Values may be scalars or
// lists of scalars; all values for the same final parameter name are appended
// in call order.
func SQ(args ...any) (Params, error) {
	params := NewParams()

	for i := 0; i < len(args); {
		if raw, ok := args[i].(Raw); ok {
			for key, value := range raw {
				values, err := transformValues(value)
				if err != nil {
					return nil, err
				}

				params.Add(key, values...)
			}

			i++

			continue
		}

		key, ok := args[i].(string)
		if !ok {
			return nil, fmt.Errorf("%w: filter key must be a string or a Raw map, got %T", ErrArgument, args[i])
		}

		if i+1 >= len(args) {
			return nil, fmt.Errorf("%w: filter key %q has no value", ErrArgument, key)
		}

		param, values, err := sqPair(key, args[i+1])
		if err != nil {
			return nil, err
		}

		params.Add(param, values...)

		i += 2
	}

	return params, nil
}
