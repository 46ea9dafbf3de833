// Package pointer converts between document paths and their JSON Pointer form.
//
// Segments are escaped with the JSON Pointer rules (~ as ~0, / as ~1) and then
// percent-encoded with the encodeURIComponent character set, so a pointer
// produced here survives being embedded in URLs and JSON object keys.
package pointer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrMalformedPointer = errors.New("pointer: malformed pointer")

// Pointer is the canonical string form of a Path.
type Pointer string

// Root addresses the whole document.
const Root Pointer = "/"

// Path is an ordered list of property names. The empty path is the root.
type Path []string

var (
	escaper   = strings.NewReplacer("~", "~0", "/", "~1")
	unescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// PathToPointer encodes path. The empty path maps to Root.
func PathToPointer(path Path) Pointer {
	if len(path) == 0 {
		return Root
	}
	var b strings.Builder
	for _, seg := range path {
		b.WriteByte('/')
		b.WriteString(encodeComponent(escaper.Replace(seg)))
	}
	return Pointer(b.String())
}

// PointerToPath decodes p. Root yields the empty path.
func PointerToPath(p Pointer) (Path, error) {
	raw := string(p)
	if !strings.HasPrefix(raw, "/") {
		return nil, fmt.Errorf("%w: %q does not start with /", ErrMalformedPointer, raw)
	}
	if raw == string(Root) {
		return Path{}, nil
	}
	parts := strings.Split(raw[1:], "/")
	out := make(Path, 0, len(parts))
	for i, part := range parts {
		seg, err := url.PathUnescape(part)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrMalformedPointer, i, err)
		}
		out = append(out, unescaper.Replace(seg))
	}
	return out, nil
}

// MustPointerToPath is PointerToPath for literals known to be well formed.
func MustPointerToPath(p Pointer) Path {
	path, err := PointerToPath(p)
	if err != nil {
		panic(err)
	}
	return path
}

func (p Path) Child(seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// Parent returns the path without its last segment. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	out := make(Path, len(p)-1)
	copy(out, p[:len(p)-1])
	return out
}

func (p Path) Pointer() Pointer {
	return PathToPointer(p)
}

func (p Path) String() string {
	return string(PathToPointer(p))
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// encodeComponent percent-encodes everything outside the encodeURIComponent
// unreserved set: A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
