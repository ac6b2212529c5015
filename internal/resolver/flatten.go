// flatten.go - Dotted-path view over an ordered response document

package resolver

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Entry is one scalar leaf of a flattened document.
type Entry struct {
	Path  string
	Value any

	normalized string
}

// Flatten walks doc in insertion order. Nested documents become dotted paths;
// array-valued branches are skipped entirely.
func Flatten(doc bson.D) []Entry {
	return flattenInto(nil, doc, "")
}

func flattenInto(out []Entry, doc bson.D, prefix string) []Entry {
	for _, e := range doc {
		path := e.Key
		if prefix != "" {
			path = prefix + "." + e.Key
		}

		switch v := e.Value.(type) {
		case bson.A:
			continue
		case bson.D:
			out = flattenInto(out, v, path)
		default:
			out = append(out, Entry{Path: path, Value: v, normalized: normalize(path)})
		}
	}
	return out
}

// lookup returns the first element with the given key.
func lookup(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// lookupPath follows a dotted path through nested documents.
func lookupPath(doc bson.D, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		d, ok := current.(bson.D)
		if !ok {
			return nil, false
		}
		v, found := lookup(d, part)
		if !found {
			return nil, false
		}
		current = v
	}
	return current, true
}

// plain converts bson containers and integer widths into the plain Go values
// stored in result rows.
func plain(v any) any {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}
