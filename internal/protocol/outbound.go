package protocol

import (
	"fmt"
	"strings"
)

// Outbound is a request the client sends. The set of implementations is
// closed to this package.
type Outbound interface {
	Kind() Kind
	Validate() error
	// Tag stamps the correlation id carried in the envelope.
	Tag(requestID string)
	ID() string
	outbound()
}

// Correlation is embedded by every envelope. Servers that support request
// ids echo the value on the matching response.
type Correlation struct {
	RequestID string `json:"requestId,omitempty"`
}

func (c *Correlation) Tag(requestID string) {
	c.RequestID = requestID
}

func (c Correlation) ID() string {
	return c.RequestID
}

type Hello struct {
	Correlation
	Username string `json:"username"`
}

type Create struct {
	Correlation
	Name   string `json:"name,omitempty"`
	Schema any    `json:"schema"`
	Value  any    `json:"value"`
}

type Get struct {
	Correlation
	Name string `json:"name"`
}

type GetSchema struct {
	Correlation
	Name string `json:"name"`
}

// UpdateSet is one entry of an update request.
type UpdateSet struct {
	Ops Ops `json:"ops"`
}

type Update struct {
	Correlation
	Name    string      `json:"name"`
	Updates []UpdateSet `json:"updates"`
}

type Subscribe struct {
	Correlation
	Name string `json:"name"`
}

type Unsubscribe struct {
	Correlation
	Name string `json:"name"`
}

func (*Hello) Kind() Kind       { return KindHello }
func (*Create) Kind() Kind      { return KindCreate }
func (*Get) Kind() Kind         { return KindGet }
func (*GetSchema) Kind() Kind   { return KindSchema }
func (*Update) Kind() Kind      { return KindUpdate }
func (*Subscribe) Kind() Kind   { return KindSubscribe }
func (*Unsubscribe) Kind() Kind { return KindUnsubscribe }

func (*Hello) outbound()       {}
func (*Create) outbound()      {}
func (*Get) outbound()         {}
func (*GetSchema) outbound()   {}
func (*Update) outbound()      {}
func (*Subscribe) outbound()   {}
func (*Unsubscribe) outbound() {}

func (m *Hello) Validate() error {
	if strings.TrimSpace(m.Username) == "" {
		return fmt.Errorf("%w: hello missing username", ErrInvalidMessage)
	}
	return nil
}

// Validate accepts an empty name; the server then picks one.
func (m *Create) Validate() error {
	if m.Schema == nil {
		return fmt.Errorf("%w: create missing schema", ErrInvalidMessage)
	}
	return nil
}

func (m *Get) Validate() error         { return requireName(KindGet, m.Name) }
func (m *GetSchema) Validate() error   { return requireName(KindSchema, m.Name) }
func (m *Subscribe) Validate() error   { return requireName(KindSubscribe, m.Name) }
func (m *Unsubscribe) Validate() error { return requireName(KindUnsubscribe, m.Name) }

func (m *Update) Validate() error {
	if err := requireName(KindUpdate, m.Name); err != nil {
		return err
	}
	if len(m.Updates) == 0 {
		return fmt.Errorf("%w: update without updates", ErrInvalidMessage)
	}
	for i, u := range m.Updates {
		if err := u.Ops.Validate(); err != nil {
			return fmt.Errorf("updates[%d]: %w", i, err)
		}
	}
	return nil
}

func requireName(kind Kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s missing name", ErrInvalidMessage, kind)
	}
	return nil
}

// NewSetUpdate builds an update carrying a single set op.
func NewSetUpdate(room string, ops Ops) *Update {
	return &Update{
		Name:    room,
		Updates: []UpdateSet{{Ops: ops}},
	}
}
