package document

import (
	"github.com/danmuck/sdapctl/internal/pointer"
)

// Mirror owns the single authoritative local copy of a room value. It is not
// safe for concurrent use; the room engine serialises access.
type Mirror struct {
	root any
}

func NewMirror(initial any) *Mirror {
	return &Mirror{root: initial}
}

func (m *Mirror) Root() any {
	return m.root
}

func (m *Mirror) Get(path pointer.Path) (any, error) {
	return Get(m.root, path)
}

func (m *Mirror) Set(path pointer.Path, value any) error {
	root, err := Set(m.root, path, value)
	if err != nil {
		return err
	}
	m.root = root
	return nil
}

func (m *Mirror) Delete(path pointer.Path) error {
	return Delete(m.root, path)
}

// ReplaceRoot swaps the whole value. Paths resolved against the old root
// must not be reused afterwards.
func (m *Mirror) ReplaceRoot(v any) {
	m.root = v
}

// Clone returns an independent copy of the current value.
func (m *Mirror) Clone() any {
	return DeepCopy(m.root)
}
