// Package jsonutil provides helpers for working with schemaless JSON
// documents parsed into map[string]any.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Flatten converts a parsed JSON document into a flat key -> string map.
// Nested objects contribute dotted keys ("a.b.c"); scalars and arrays are
// stringified in place. Null values are dropped.
func Flatten(doc map[string]any) map[string]string {
	values := make(map[string]string)
	flattenInto(doc, "", values)
	return values
}

func flattenInto(doc map[string]any, prefix string, values map[string]string) {
	for key, value := range doc {
		if prefix != "" {
			key = prefix + "." + key
		}
		switch v := value.(type) {
		case nil:
			// skip
		case map[string]any:
			flattenInto(v, key, values)
		default:
			values[key] = Stringify(v)
		}
	}
}

// Stringify renders a JSON scalar or array as a string. Numbers that are
// whole are rendered without a fractional part (json.Unmarshal hands every
// number over as float64).
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case json.Number:
		return v.String()
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Substitute replaces ${key} placeholders in template with entries from
// values. Placeholders with no matching key are left verbatim.
func Substitute(template string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-1]
		if v, ok := values[key]; ok {
			return v
		}
		return match
	})
}
