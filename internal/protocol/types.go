package protocol

import (
	"fmt"
	"sort"

	"github.com/danmuck/sdapctl/internal/pointer"
)

// Kind is the wire "type" discriminator.
type Kind string

const (
	KindHello       Kind = "hello"
	KindCreate      Kind = "create"
	KindGet         Kind = "get"
	KindSchema      Kind = "schema"
	KindUpdate      Kind = "update"
	KindSubscribe   Kind = "subscribe"
	KindUnsubscribe Kind = "unsubscribe"
	KindChanges     Kind = "changes"
)

// Kinds lists every discriminator this client understands.
func Kinds() []Kind {
	return []Kind{KindHello, KindCreate, KindGet, KindSchema, KindUpdate, KindSubscribe, KindUnsubscribe, KindChanges}
}

// OpType names the action of one op. Only set is defined by the protocol.
type OpType string

const OpSet OpType = "set"

// Op is the action applied at one pointer.
type Op struct {
	Type  OpType `json:"type"`
	Value any    `json:"value"`
}

func Set(value any) Op {
	return Op{Type: OpSet, Value: value}
}

// Ops maps pointers to the op applied there.
type Ops map[pointer.Pointer]Op

// Pointers returns the keys of o in a stable order.
func (o Ops) Pointers() []pointer.Pointer {
	out := make([]pointer.Pointer, 0, len(o))
	for ptr := range o {
		out = append(out, ptr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (o Ops) Validate() error {
	if len(o) == 0 {
		return fmt.Errorf("%w: empty ops", ErrInvalidMessage)
	}
	for ptr, op := range o {
		if _, err := pointer.PointerToPath(ptr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if op.Type != OpSet {
			return fmt.Errorf("%w: %q at %s", ErrUnsupportedOp, op.Type, ptr)
		}
	}
	return nil
}

// IsSuccess reports whether an HTTP-style status code denotes success.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
