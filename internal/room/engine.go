// Package room is the document synchronization engine: it owns the room
// session, the local mirror and the change history, turns local edits into
// update requests, and applies server responses and pushed changes.
//
// All entry points serialise on one mutex. Callbacks run after the mutex is
// released and receive copies, so they may call back into the engine.
//
// The engine assumes a single room in flight per connection. Responses are
// correlated by request id when the server echoes one, otherwise by room
// name and arrival order.
package room

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/sdapctl/internal/document"
	"github.com/danmuck/sdapctl/internal/history"
	"github.com/danmuck/sdapctl/internal/observability"
	"github.com/danmuck/sdapctl/internal/pointer"
	"github.com/danmuck/sdapctl/internal/protocol"
	"github.com/danmuck/sdapctl/internal/protocol/session"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Sender hands an outbound envelope to the transport. It must not block on
// the network.
type Sender interface {
	Send(msg protocol.Outbound) error
}

type RenderFunc func(doc any, schema any)

type ReportFunc func(report string)

// Config holds engine behaviour knobs.
type Config struct {
	Username        string
	HistoryCapacity int
	RejectPolicy    RejectPolicy
	DefaultSchema   any
}

func DefaultConfig() Config {
	return Config{
		Username:        "anonymous",
		HistoryCapacity: history.DefaultCapacity,
		RejectPolicy:    RejectKeep,
		DefaultSchema:   DefaultSchema(),
	}
}

// DefaultSchema accepts any value; it is what a room is created with when
// the caller supplies no schema.
func DefaultSchema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-04/schema#",
		"type":    "any",
	}
}

type Options struct {
	Config       Config
	Sender       Sender
	Initial      any
	Logger       zerolog.Logger
	OnRender     RenderFunc
	OnReport     ReportFunc
	NewRequestID func() string
}

type Engine struct {
	mu      sync.Mutex
	cfg     Config
	sender  Sender
	log     zerolog.Logger
	newID   func() string
	render  RenderFunc
	report  ReportFunc
	effects []func()

	mirror   *document.Mirror
	ring     *history.Ring
	session  Session
	outbox   *session.UpdateOutbox
	username string

	// prior is the session to restore when a pending create fails.
	prior         Session
	pendingCreate string
	// deferred holds change batches that arrived before the room value.
	deferred []*protocol.Changes
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Sender == nil {
		return nil, ErrSenderRequired
	}
	cfg := opts.Config
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Username) == "" {
		cfg.Username = def.Username
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = def.HistoryCapacity
	}
	policy, err := ParseRejectPolicy(string(cfg.RejectPolicy))
	if err != nil {
		return nil, err
	}
	cfg.RejectPolicy = policy
	if cfg.DefaultSchema == nil {
		cfg.DefaultSchema = def.DefaultSchema
	}
	newID := opts.NewRequestID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &Engine{
		cfg:    cfg,
		sender: opts.Sender,
		log:    opts.Logger.With().Str("component", "room").Logger(),
		newID:  newID,
		render: opts.OnRender,
		report: opts.OnReport,
		mirror: document.NewMirror(opts.Initial),
		ring:   history.New(cfg.HistoryCapacity),
		outbox: session.NewUpdateOutbox(),
	}, nil
}

// do runs fn under the engine lock and then fires queued callbacks.
func (e *Engine) do(fn func() error) error {
	e.mu.Lock()
	err := fn()
	effects := e.effects
	e.effects = nil
	e.mu.Unlock()
	for _, effect := range effects {
		effect()
	}
	return err
}

func (e *Engine) emitRender() {
	if e.render == nil {
		return
	}
	doc := e.mirror.Clone()
	schema := document.DeepCopy(e.session.Schema)
	render := e.render
	e.effects = append(e.effects, func() { render(doc, schema) })
}

func (e *Engine) emitReport(text string) {
	if e.report == nil || text == "" {
		return
	}
	report := e.report
	e.effects = append(e.effects, func() { report(text) })
}

// send tags msg with a fresh request id and hands it to the transport.
func (e *Engine) send(msg protocol.Outbound) (string, error) {
	id := e.newID()
	msg.Tag(id)
	if err := e.sender.Send(msg); err != nil {
		e.log.Warn().Str("type", string(msg.Kind())).Err(err).Msg("send failed")
		return id, fmt.Errorf("room: send %s: %w", msg.Kind(), err)
	}
	observability.RecordOutbound(string(msg.Kind()))
	e.log.Debug().Str("type", string(msg.Kind())).Str("request_id", id).Msg("sent")
	return id, nil
}

// Hello announces the client. The server answers with the username it
// assigned.
func (e *Engine) Hello() error {
	return e.do(func() error {
		_, err := e.send(&protocol.Hello{Username: e.cfg.Username})
		return err
	})
}

// Create asks the server for a new room holding value. An empty name lets
// the server pick one; a nil schema uses the configured default and a nil
// value sends the current mirror. The current room, if any, is unsubscribed
// first without waiting for the answer.
func (e *Engine) Create(name string, schema any, value any) error {
	return e.do(func() error {
		if schema == nil {
			schema = e.cfg.DefaultSchema
		}
		if value == nil {
			value = e.mirror.Root()
		}
		e.leaveCurrent()
		if e.session.State != StateCreating {
			e.prior = e.session
		}
		e.session.State = StateCreating
		e.session.Subscribed = false
		e.deferred = nil
		id, err := e.send(&protocol.Create{Name: strings.TrimSpace(name), Schema: schema, Value: value})
		if err != nil {
			e.session = e.prior
			e.session.Subscribed = false
			return err
		}
		e.pendingCreate = id
		e.log.Info().Str("room", name).Msg("creating room")
		return nil
	})
}

// Join attaches to an existing room. Schema, value and subscription are
// requested back to back; their answers may arrive in any order.
func (e *Engine) Join(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrRoomNameRequired
	}
	return e.do(func() error {
		e.leaveCurrent()
		e.session = Session{Name: name, State: StateAcquiring}
		e.deferred = nil
		e.pendingCreate = ""
		e.log.Info().Str("room", name).Msg("joining room")
		if _, err := e.send(&protocol.GetSchema{Name: name}); err != nil {
			return err
		}
		if _, err := e.send(&protocol.Get{Name: name}); err != nil {
			return err
		}
		_, err := e.send(&protocol.Subscribe{Name: name})
		return err
	})
}

// Resync re-attaches the current room on a fresh connection. Subscriptions
// and in-flight requests die with the old connection, so schema, value and
// subscription are requested again and pending updates are forgotten. A
// create still awaiting its answer falls back to the room it left.
func (e *Engine) Resync() error {
	return e.do(func() error {
		if e.session.State == StateCreating {
			e.session = e.prior
			e.pendingCreate = ""
		}
		if e.session.State != StateJoined && e.session.State != StateAcquiring {
			e.session.Subscribed = false
			return nil
		}
		e.log.Info().Str("room", e.session.Name).Msg("resyncing room")
		return e.reacquire()
	})
}

// reacquire fetches the current room from scratch. Pending updates are
// forgotten and changes arriving before the new value are buffered.
func (e *Engine) reacquire() error {
	name := e.session.Name
	e.outbox.DropRoom(name)
	e.session.State = StateAcquiring
	e.session.Subscribed = false
	e.deferred = nil
	if _, err := e.send(&protocol.GetSchema{Name: name}); err != nil {
		return err
	}
	if _, err := e.send(&protocol.Get{Name: name}); err != nil {
		return err
	}
	_, err := e.send(&protocol.Subscribe{Name: name})
	return err
}

// Leave unsubscribes from the current room. The mirror is kept as an
// offline copy.
func (e *Engine) Leave() error {
	return e.do(func() error {
		e.leaveCurrent()
		e.session = Session{}
		e.deferred = nil
		e.pendingCreate = ""
		return nil
	})
}

// leaveCurrent fires an unsubscribe for the attached room and forgets its
// pending updates.
func (e *Engine) leaveCurrent() {
	name := e.session.Name
	if name == "" || e.session.State == StateUnjoined || e.session.State == StateCreating {
		return
	}
	if n := e.outbox.DropRoom(name); n > 0 {
		e.log.Debug().Str("room", name).Int("pending", n).Msg("dropped pending updates")
	}
	if _, err := e.send(&protocol.Unsubscribe{Name: name}); err != nil {
		e.log.Warn().Str("room", name).Err(err).Msg("unsubscribe not sent")
	}
}

// ApplyLocalEdit sets value at path in the mirror right away and, when
// joined, publishes it as a single-op update. Edits made while not joined
// stay local and are never transmitted.
func (e *Engine) ApplyLocalEdit(path pointer.Path, value any) error {
	return e.do(func() error {
		prior := e.capturePrior(path)
		if err := e.mirror.Set(path, value); err != nil {
			return err
		}
		e.emitRender()
		if !e.session.Joined() {
			e.log.Debug().Str("pointer", path.String()).Msg("offline edit kept local")
			return nil
		}
		ptr := pointer.PathToPointer(path)
		update := protocol.NewSetUpdate(e.session.Name, protocol.Ops{ptr: protocol.Set(value)})
		id, err := e.send(update)
		if err != nil {
			return err
		}
		e.outbox.Upsert(session.PendingUpdate{
			RequestID: id,
			Room:      e.session.Name,
			Prior:     []session.PriorValue{prior},
			QueuedAt:  time.Now(),
		})
		return nil
	})
}

// OnFieldEdited is the UI entry point: raw is parsed as a JSON literal, or
// kept as a string, before being applied.
func (e *Engine) OnFieldEdited(path pointer.Path, raw string) error {
	return e.ApplyLocalEdit(path, ParseValue(raw))
}

func (e *Engine) capturePrior(path pointer.Path) session.PriorValue {
	prior := session.PriorValue{Pointer: pointer.PathToPointer(path)}
	if v, err := e.mirror.Get(path); err == nil {
		prior.Value = document.DeepCopy(v)
		prior.Existed = true
	}
	return prior
}

// Session returns a copy of the current room session.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	s.Schema = document.DeepCopy(s.Schema)
	return s
}

// Document returns a copy of the mirrored value.
func (e *Engine) Document() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mirror.Clone()
}

// Get reads one value from the mirror.
func (e *Engine) Get(path pointer.Path) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.mirror.Get(path)
	if err != nil {
		return nil, err
	}
	return document.DeepCopy(v), nil
}

// History returns recorded changes, most recent last.
func (e *Engine) History() []history.Change {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.Snapshot()
}

// LastChange reports the identity of the most recent change seen.
func (e *Engine) LastChange() (string, history.Stamp) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.LastChangeID(), e.ring.LastChangeAt()
}

// Username is the name the server assigned in its hello answer.
func (e *Engine) Username() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.username
}

// PendingUpdates lists updates still awaiting a server result.
func (e *Engine) PendingUpdates() []session.PendingUpdate {
	return e.outbox.List()
}
