// Package jsonval implements the structural mutations of dynamic JSON values
// used by the storage engine: deep-set (overwrite at a path, creating
// intermediate objects) and deep-merge (recursive overlay of objects).
//
// Values follow the encoding/json conventions for interface{} decoding:
// map[string]any, []any, float64, string, bool, nil. The functions here
// mirror the semantics of the jsonb stored procedures installed by the
// Postgres backend, so the in-memory backend and the SQL engine stay
// observably identical.
package jsonval

// DeepSet returns target with value placed at the given segments. Missing
// intermediate keys are created as objects; intermediate values that are not
// objects (scalars, arrays, null) are replaced with fresh objects. With no
// segments the value itself is returned. The input maps are not mutated.
func DeepSet(target any, segments []string, value any) any {
	if len(segments) == 0 {
		return value
	}
	obj, ok := target.(map[string]any)
	if !ok {
		obj = nil
	}
	out := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	key := segments[0]
	if len(segments) == 1 {
		out[key] = value
	} else {
		out[key] = DeepSet(out[key], segments[1:], value)
	}
	return out
}

// DeepMerge recursively overlays b onto a. When both sides are objects their
// keys merge, recursing into shared keys; in every other case b wins. The
// inputs are not mutated.
func DeepMerge(a, b any) any {
	aObj, aOK := a.(map[string]any)
	bObj, bOK := b.(map[string]any)
	if !aOK || !bOK {
		return b
	}
	out := make(map[string]any, len(aObj)+len(bObj))
	for k, v := range aObj {
		out[k] = v
	}
	for k, v := range bObj {
		if existing, ok := out[k]; ok {
			out[k] = DeepMerge(existing, v)
		} else {
			out[k] = v
		}
	}
	return out
}

// Extract walks segments down v and returns the value found, or nil when any
// step is missing or a non-object is encountered before the last segment.
func Extract(v any, segments []string) any {
	for _, seg := range segments {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v, ok = obj[seg]
		if !ok {
			return nil
		}
	}
	return v
}
