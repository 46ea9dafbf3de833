package protocol

import (
	"encoding/json"

	"github.com/danmuck/sdapctl/internal/history"
	"github.com/danmuck/sdapctl/internal/report"
)

// Inbound is a decoded server message. Consumers type-switch over the
// concrete pointer types below; Unknown covers forward-compatible kinds.
type Inbound interface {
	Kind() Kind
	ID() string
	inbound()
}

type Helloed struct {
	Correlation
	NewUsername string `json:"newUsername"`
}

// RoomValue is the room description returned by a successful create.
type RoomValue struct {
	Name   string `json:"name"`
	Schema any    `json:"schema"`
	Value  any    `json:"value"`
}

type Created struct {
	Correlation
	Status  int            `json:"status"`
	Created *RoomValue     `json:"created,omitempty"`
	Errors  []report.Entry `json:"errors,omitempty"`
}

// Succeeded is true for a 2xx status that carries a room description.
func (m *Created) Succeeded() bool {
	return IsSuccess(m.Status) && m.Created != nil
}

// Acquired answers a get request.
type Acquired struct {
	Correlation
	Name         string         `json:"name"`
	Value        any            `json:"value"`
	LastChangeID string         `json:"lastChangeId"`
	LastChangeAt history.Stamp  `json:"lastChangeAt"`
	Status       int            `json:"status,omitempty"`
	Errors       []report.Entry `json:"errors,omitempty"`
}

// Failed is true when the server reported a non-success status or errors.
func (m *Acquired) Failed() bool {
	return len(m.Errors) > 0 || (m.Status != 0 && !IsSuccess(m.Status))
}

// SchemaAcquired answers a schema request.
type SchemaAcquired struct {
	Correlation
	Name   string         `json:"name"`
	Schema any            `json:"schema"`
	Status int            `json:"status,omitempty"`
	Errors []report.Entry `json:"errors,omitempty"`
}

func (m *SchemaAcquired) Failed() bool {
	return len(m.Errors) > 0 || (m.Status != 0 && !IsSuccess(m.Status))
}

// UpdateResult is the server outcome of one entry of an update request.
type UpdateResult struct {
	ChangeID string         `json:"changeId"`
	Change   history.Stamp  `json:"change"`
	Errors   []report.Entry `json:"errors,omitempty"`
}

type Updated struct {
	Correlation
	Name    string         `json:"name"`
	Status  int            `json:"status"`
	Results []UpdateResult `json:"results"`
	Errors  []report.Entry `json:"errors,omitempty"`
}

// Succeeded is true for a 2xx status with no error entries anywhere.
func (m *Updated) Succeeded() bool {
	if !IsSuccess(m.Status) || len(m.Errors) > 0 {
		return false
	}
	for _, r := range m.Results {
		if len(r.Errors) > 0 {
			return false
		}
	}
	return true
}

// AllErrors flattens top-level and per-result error entries.
func (m *Updated) AllErrors() []report.Entry {
	out := make([]report.Entry, 0, len(m.Errors))
	out = append(out, m.Errors...)
	for _, r := range m.Results {
		out = append(out, r.Errors...)
	}
	return out
}

type Subscribed struct {
	Correlation
	Name    string `json:"name"`
	Success bool   `json:"success"`
}

type Unsubscribed struct {
	Correlation
	Name    string `json:"name"`
	Success bool   `json:"success"`
}

// ChangeEnvelope is one server-pushed change inside a changes batch.
type ChangeEnvelope struct {
	ChangeID string        `json:"changeId"`
	Change   history.Stamp `json:"change"`
	Ops      Ops           `json:"ops"`
}

// Changes is an unsolicited batch pushed to subscribers of a room.
type Changes struct {
	Correlation
	Name    string           `json:"name"`
	Changes []ChangeEnvelope `json:"changes"`
}

// Unknown carries a message whose type this client does not understand.
type Unknown struct {
	Correlation
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (*Helloed) Kind() Kind        { return KindHello }
func (*Created) Kind() Kind        { return KindCreate }
func (*Acquired) Kind() Kind       { return KindGet }
func (*SchemaAcquired) Kind() Kind { return KindSchema }
func (*Updated) Kind() Kind        { return KindUpdate }
func (*Subscribed) Kind() Kind     { return KindSubscribe }
func (*Unsubscribed) Kind() Kind   { return KindUnsubscribe }
func (*Changes) Kind() Kind        { return KindChanges }
func (m *Unknown) Kind() Kind      { return Kind(m.Type) }

func (*Helloed) inbound()        {}
func (*Created) inbound()        {}
func (*Acquired) inbound()       {}
func (*SchemaAcquired) inbound() {}
func (*Updated) inbound()        {}
func (*Subscribed) inbound()     {}
func (*Unsubscribed) inbound()   {}
func (*Changes) inbound()        {}
func (*Unknown) inbound()        {}
