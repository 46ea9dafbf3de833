// Package document holds the in-memory mirror of a room value and the
// path-addressed primitives used to read and mutate it.
//
// Values follow encoding/json's generic shapes: map[string]any for objects,
// []any for arrays, and string, float64, json.Number, bool or nil for scalars.
package document

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/sdapctl/internal/pointer"
)

var ErrPathNotFound = errors.New("document: path not found")

// Get returns the value at path inside doc.
func Get(doc any, path pointer.Path) (any, error) {
	cur := doc
	for i, seg := range path {
		next, err := child(cur, seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s at segment %d", ErrPathNotFound, path, i)
		}
		cur = next
	}
	return cur, nil
}

// Set assigns value at path and returns the (possibly new) root. Every parent
// along path must already exist and be a container; nothing is created on the
// way down. An empty path replaces the root. On error doc is left untouched.
func Set(doc any, path pointer.Path, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	parent, err := Get(doc, path[:len(path)-1])
	if err != nil {
		return doc, err
	}
	last := path[len(path)-1]
	switch c := parent.(type) {
	case map[string]any:
		c[last] = value
		return doc, nil
	case []any:
		idx, ok := index(last, len(c)+1)
		if !ok {
			return doc, fmt.Errorf("%w: %s index out of range", ErrPathNotFound, path)
		}
		if idx < len(c) {
			c[idx] = value
			return doc, nil
		}
		// Appending changes the slice header, so the parent of the array has
		// to be rewritten as well.
		return Set(doc, path[:len(path)-1], append(c, value))
	default:
		return doc, fmt.Errorf("%w: %s parent is not a container", ErrPathNotFound, path)
	}
}

// Delete removes an object member. Array elements cannot be deleted; the
// protocol has no remove operation and rollback only ever drops keys.
func Delete(doc any, path pointer.Path) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: cannot delete root", ErrPathNotFound)
	}
	parent, err := Get(doc, path[:len(path)-1])
	if err != nil {
		return err
	}
	obj, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s parent is not an object", ErrPathNotFound, path)
	}
	last := path[len(path)-1]
	if _, ok := obj[last]; !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	delete(obj, last)
	return nil
}

// Has reports whether path resolves inside doc.
func Has(doc any, path pointer.Path) bool {
	_, err := Get(doc, path)
	return err == nil
}

func child(cur any, seg string) (any, error) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[seg]
		if !ok {
			return nil, ErrPathNotFound
		}
		return v, nil
	case []any:
		idx, ok := index(seg, len(c))
		if !ok {
			return nil, ErrPathNotFound
		}
		return c[idx], nil
	default:
		return nil, ErrPathNotFound
	}
}

// index parses seg as a canonical decimal array index below limit.
func index(seg string, limit int) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 || idx >= limit {
		return 0, false
	}
	return idx, true
}

// DeepCopy clones the container structure of v. Scalars are shared.
func DeepCopy(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			out[k] = DeepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, item := range c {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return v
	}
}
