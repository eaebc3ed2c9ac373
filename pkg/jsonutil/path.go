package jsonutil

// Path walks a parsed JSON document along the given keys and returns the
// value found there, or nil when any step is missing or not an object.
func Path(doc map[string]any, path ...string) any {
	if len(path) == 0 {
		return doc
	}
	var current any = doc
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return current
}

// StringAt returns the scalar at path rendered as a string, or "" when the
// path is missing or holds an object or array.
func StringAt(doc map[string]any, path ...string) string {
	value := Path(doc, path...)
	switch value.(type) {
	case nil, map[string]any, []any:
		return ""
	}
	return Stringify(value)
}
