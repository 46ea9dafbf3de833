package room

import (
	"errors"
	"fmt"

	"github.com/danmuck/sdapctl/internal/document"
	"github.com/danmuck/sdapctl/internal/history"
	"github.com/danmuck/sdapctl/internal/observability"
	"github.com/danmuck/sdapctl/internal/pointer"
	"github.com/danmuck/sdapctl/internal/protocol"
	"github.com/danmuck/sdapctl/internal/protocol/session"
	"github.com/danmuck/sdapctl/internal/report"
)

// HandleRaw decodes one inbound frame and dispatches it.
func (e *Engine) HandleRaw(data []byte) error {
	msg, err := protocol.Decode(data)
	if err != nil {
		e.log.Warn().Err(err).Msg("dropping undecodable message")
		return err
	}
	return e.Handle(msg)
}

// Handle applies one decoded server message. Stale and unknown messages are
// absorbed and yield nil; validation failures and ops that could not be
// applied are returned for the caller to log.
func (e *Engine) Handle(msg protocol.Inbound) error {
	observability.RecordInbound(string(msg.Kind()))
	return e.do(func() error {
		err := e.dispatch(msg)
		if errors.Is(err, ErrRoomMismatch) {
			return nil
		}
		return err
	})
}

func (e *Engine) dispatch(msg protocol.Inbound) error {
	switch m := msg.(type) {
	case *protocol.Helloed:
		e.username = m.NewUsername
		e.log.Info().Str("username", m.NewUsername).Msg("helloed")
		return nil
	case *protocol.Created:
		return e.onCreated(m)
	case *protocol.Acquired:
		return e.onAcquired(m)
	case *protocol.SchemaAcquired:
		return e.onSchemaAcquired(m)
	case *protocol.Updated:
		return e.onUpdateResult(m)
	case *protocol.Subscribed:
		return e.onSubscription(m.Name, m.Success, true)
	case *protocol.Unsubscribed:
		return e.onSubscription(m.Name, m.Success, false)
	case *protocol.Changes:
		return e.applyRemoteChangeBatch(m)
	case *protocol.Unknown:
		e.log.Debug().Str("type", m.Type).Msg("ignoring unknown message")
		return nil
	default:
		return fmt.Errorf("%w: %T", protocol.ErrUnknownMessage, msg)
	}
}

// ApplyRemoteChangeBatch applies a pushed changes batch. A batch for any
// room other than the joined one is ignored as a whole and reported as
// ErrRoomMismatch.
func (e *Engine) ApplyRemoteChangeBatch(batch *protocol.Changes) error {
	return e.do(func() error {
		return e.applyRemoteChangeBatch(batch)
	})
}

// OnUpdateResult applies the server result of an update request.
func (e *Engine) OnUpdateResult(result *protocol.Updated) error {
	return e.do(func() error {
		return e.onUpdateResult(result)
	})
}

func (e *Engine) stale(kind protocol.Kind, name string) error {
	observability.RecordStale(string(kind))
	e.log.Debug().
		Str("type", string(kind)).
		Str("room", name).
		Str("current", e.session.Name).
		Msg("ignoring message for another room")
	return fmt.Errorf("%w: %s for %q while in %q", ErrRoomMismatch, kind, name, e.session.Name)
}

func (e *Engine) onCreated(m *protocol.Created) error {
	if e.session.State != StateCreating {
		e.log.Debug().Msg("ignoring create answer with no create pending")
		return nil
	}
	if id := m.ID(); id != "" && id != e.pendingCreate {
		e.log.Debug().Str("request_id", id).Msg("ignoring answer to superseded create")
		return nil
	}
	e.pendingCreate = ""

	if !m.Succeeded() {
		e.session = e.prior
		e.session.Subscribed = false
		if e.session.State == StateJoined || e.session.State == StateAcquiring {
			// Changes for the prior room were not tracked while creating.
			if err := e.reacquire(); err != nil {
				e.log.Warn().Str("room", e.session.Name).Err(err).Msg("reacquire not sent")
			}
		}
		return e.rejected(protocol.KindCreate, "", m.Errors, m.Status)
	}

	created := m.Created
	e.session = Session{
		Name:   created.Name,
		Schema: created.Schema,
		State:  StateJoined,
	}
	e.prior = Session{}
	e.mirror.ReplaceRoot(created.Value)
	e.emitRender()
	e.log.Info().Str("room", created.Name).Msg("room created")
	_, err := e.send(&protocol.Subscribe{Name: created.Name})
	return err
}

func (e *Engine) onAcquired(m *protocol.Acquired) error {
	if !e.attachedTo(m.Name) {
		return e.stale(protocol.KindGet, m.Name)
	}
	if m.Failed() {
		name := e.session.Name
		e.session = Session{}
		e.deferred = nil
		return e.rejected(protocol.KindGet, name, m.Errors, m.Status)
	}
	e.mirror.ReplaceRoot(m.Value)
	e.ring.SetCursor(m.LastChangeID, m.LastChangeAt)
	e.session.State = StateJoined
	e.emitRender()
	e.log.Info().Str("room", m.Name).Str("last_change_id", m.LastChangeID).Msg("room acquired")

	deferred := skipContained(e.deferred, m.LastChangeID)
	e.deferred = nil
	var errs []error
	for _, batch := range deferred {
		if err := e.applyRemoteChangeBatch(batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// skipContained drops buffered changes up to and including lastID, which
// the acquired value already reflects. Without a match everything is kept.
func skipContained(batches []*protocol.Changes, lastID string) []*protocol.Changes {
	if lastID == "" {
		return batches
	}
	for bi := len(batches) - 1; bi >= 0; bi-- {
		changes := batches[bi].Changes
		for ci := len(changes) - 1; ci >= 0; ci-- {
			if changes[ci].ChangeID != lastID {
				continue
			}
			rest := make([]*protocol.Changes, 0, len(batches)-bi)
			if ci+1 < len(changes) {
				rest = append(rest, &protocol.Changes{
					Correlation: batches[bi].Correlation,
					Name:        batches[bi].Name,
					Changes:     changes[ci+1:],
				})
			}
			return append(rest, batches[bi+1:]...)
		}
	}
	return batches
}

func (e *Engine) onSchemaAcquired(m *protocol.SchemaAcquired) error {
	if !e.attachedTo(m.Name) {
		return e.stale(protocol.KindSchema, m.Name)
	}
	if m.Failed() {
		return e.rejected(protocol.KindSchema, m.Name, m.Errors, m.Status)
	}
	e.session.Schema = m.Schema
	if e.session.Joined() {
		e.emitRender()
	}
	return nil
}

func (e *Engine) onSubscription(name string, success bool, subscribe bool) error {
	if !e.attachedTo(name) {
		if subscribe {
			return e.stale(protocol.KindSubscribe, name)
		}
		e.log.Debug().Str("room", name).Bool("success", success).Msg("unsubscribed")
		return nil
	}
	if subscribe {
		e.session.Subscribed = success
	} else if success {
		e.session.Subscribed = false
	}
	e.log.Info().Str("room", name).Bool("subscribe", subscribe).Bool("success", success).Msg("subscription changed")
	return nil
}

// attachedTo reports whether name is the room being acquired or joined.
func (e *Engine) attachedTo(name string) bool {
	if e.session.State != StateJoined && e.session.State != StateAcquiring {
		return false
	}
	return name == e.session.Name
}

func (e *Engine) applyRemoteChangeBatch(batch *protocol.Changes) error {
	if batch == nil {
		return nil
	}
	if !e.attachedTo(batch.Name) {
		return e.stale(protocol.KindChanges, batch.Name)
	}
	if e.session.State == StateAcquiring {
		e.deferred = append(e.deferred, batch)
		e.log.Debug().Str("room", batch.Name).Int("deferred", len(e.deferred)).Msg("deferring changes until value arrives")
		return nil
	}

	var errs []error
	for _, change := range batch.Changes {
		for _, ptr := range change.Ops.Pointers() {
			if err := e.applyOp(ptr, change.Ops[ptr]); err != nil {
				errs = append(errs, fmt.Errorf("change %s: %w", change.ChangeID, err))
			}
		}
		e.record(history.Change{
			Origin:     history.OriginRemote,
			ChangeID:   change.ChangeID,
			ChangeTime: change.Change,
			Payload:    change.Ops,
		})
		e.emitRender()
	}
	return errors.Join(errs...)
}

func (e *Engine) applyOp(ptr pointer.Pointer, op protocol.Op) error {
	if op.Type != protocol.OpSet {
		observability.RecordOpFailure("unsupported_op")
		e.log.Warn().Str("pointer", string(ptr)).Str("op", string(op.Type)).Msg("skipping unsupported op")
		return fmt.Errorf("%w: %q at %s", protocol.ErrUnsupportedOp, op.Type, ptr)
	}
	path, err := pointer.PointerToPath(ptr)
	if err != nil {
		observability.RecordOpFailure("malformed_pointer")
		e.log.Warn().Str("pointer", string(ptr)).Err(err).Msg("skipping op")
		return err
	}
	if err := e.mirror.Set(path, op.Value); err != nil {
		observability.RecordOpFailure("path_not_found")
		e.log.Warn().Str("pointer", string(ptr)).Err(err).Msg("skipping op")
		return err
	}
	return nil
}

func (e *Engine) onUpdateResult(m *protocol.Updated) error {
	if m.Name != e.session.Name || e.session.State != StateJoined {
		return e.stale(protocol.KindUpdate, m.Name)
	}
	var (
		pending session.PendingUpdate
		found   bool
	)
	if id := m.ID(); id != "" {
		pending, found = e.outbox.Take(id)
	} else {
		pending, found = e.outbox.TakeOldest(m.Name)
	}

	if protocol.IsSuccess(m.Status) {
		for _, result := range m.Results {
			if len(result.Errors) > 0 {
				continue
			}
			e.record(history.Change{
				Origin:     history.OriginOwn,
				ChangeID:   result.ChangeID,
				ChangeTime: result.Change,
				Payload:    result,
			})
		}
	}
	if m.Succeeded() {
		return nil
	}

	if found && e.cfg.RejectPolicy == RejectRollback {
		e.rollback(pending.Prior)
	}
	return e.rejected(protocol.KindUpdate, m.Name, m.AllErrors(), m.Status)
}

// rollback restores values overwritten by a rejected optimistic edit, last
// write first.
func (e *Engine) rollback(prior []session.PriorValue) {
	for i := len(prior) - 1; i >= 0; i-- {
		p := prior[i]
		path, err := pointer.PointerToPath(p.Pointer)
		if err != nil {
			continue
		}
		if p.Existed {
			err = e.mirror.Set(path, document.DeepCopy(p.Value))
		} else {
			err = e.mirror.Delete(path)
		}
		if err != nil {
			e.log.Warn().Str("pointer", string(p.Pointer)).Err(err).Msg("rollback skipped")
			continue
		}
		e.log.Info().Str("pointer", string(p.Pointer)).Msg("rolled back rejected edit")
	}
	e.emitRender()
}

func (e *Engine) record(c history.Change) {
	e.ring.Record(c)
	observability.RecordChange(string(c.Origin))
}

// rejected surfaces a server rejection to the UI and as an error.
func (e *Engine) rejected(kind protocol.Kind, name string, entries []report.Entry, status int) error {
	if len(entries) == 0 {
		entries = []report.Entry{{Code: fmt.Sprint(status), Msg: "request rejected"}}
	}
	observability.RecordValidationFailure(string(kind))
	verr := &ValidationError{Kind: kind, Room: name, Entries: entries}
	e.emitReport(verr.Report())
	e.log.Warn().Str("type", string(kind)).Str("room", name).Int("status", status).Int("errors", len(entries)).Msg("request rejected")
	return verr
}
