package fhir

import (
	"net/url"
	"sort"
	"strings"
)

// Params is a search-parameter multimap: each key holds the ordered list of
// values produced for it. Builder methods on SearchSet never share a Params
// value between two sets; use Clone before modifying.
type Params map[string][]string

// NewParams creates an empty parameter multimap.
func NewParams() Params {
	return Params{}
}

// Add appends values to the key, preserving call order.
func (p Params) Add(key string, values ...string) Params {
	p[key] = append(p[key], values...)

	return p
}

// Set replaces all values for the key.
func (p Params) Set(key string, values ...string) Params {
	p[key] = append([]string(nil), values...)

	return p
}

// Clone returns a deep copy. A nil receiver clones to an empty map.
func (p Params) Clone() Params {
	cloned := make(Params, len(p))
	for key, values := range p {
		cloned[key] = append([]string(nil), values...)
	}

	return cloned
}

// Merge appends all values of other into p.
func (p Params) Merge(other Params) Params {
	for key, values := range other {
		p[key] = append(p[key], values...)
	}

	return p
}

// uniqueEverseen de-duplicates preserving first-seen order.
func uniqueEverseen(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}

		seen[value] = struct{}{}
		result = append(result, value)
	}

	return result
}

// queryUnescaper restores the characters FHIR search syntax relies on.
// `:` separates modifiers and chained parameters, `,` separates OR values;
// both are safe in a query string and servers expect them literal.
var queryUnescaper = strings.NewReplacer("%3A", ":", "%2C", ",")

func escapeQueryToken(token string) string {
	return queryUnescaper.Replace(url.QueryEscape(token))
}

// EncodeParams renders the multimap as a canonical query string: keys sorted,
// values de-duplicated first-seen-order-preserving, percent-encoded except for
// `:` and `,`. A nil or empty map encodes to the empty string.
func EncodeParams(params Params) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var builder strings.Builder

	for _, key := range keys {
		values := uniqueEverseen(params[key])
		for _, value := range values {
			if builder.Len() > 0 {
				builder.WriteByte('&')
			}

			builder.WriteString(escapeQueryToken(key))
			builder.WriteByte('=')
			builder.WriteString(escapeQueryToken(value))
		}
	}

	return builder.String()
}

// ParseQuery parses a raw query string back into a multimap. Inverse of
// EncodeParams up to value de-duplication.
func ParseQuery(rawQuery string) (Params, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}

	params := make(Params, len(values))
	for key, vals := range values {
		params[key] = vals
	}

	return params, nil
}

// parsePaginationURL splits a Bundle.link url into a request path and query
// params. Absolute urls are returned as-is with nil params: the transport
// checks them against the configured base url before following.
func parsePaginationURL(link string) (string, Params, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return "", nil, err
	}

	if parsed.IsAbs() {
		return link, nil, nil
	}

	params, err := ParseQuery(parsed.RawQuery)
	if err != nil {
		return "", nil, err
	}

	return parsed.Path, params, nil
}
