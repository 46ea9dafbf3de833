package room

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/sdapctl/internal/protocol"
	"github.com/danmuck/sdapctl/internal/report"
)

var (
	ErrRoomMismatch        = errors.New("room: message addressed to another room")
	ErrValidationFailure   = errors.New("room: validation failure")
	ErrRoomNameRequired    = errors.New("room: room name required")
	ErrSenderRequired      = errors.New("room: sender required")
	ErrInvalidRejectPolicy = errors.New("room: invalid reject policy")
)

// State is the membership lifecycle of the engine's room session.
type State int

const (
	StateUnjoined State = iota
	StateCreating
	StateAcquiring
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateCreating:
		return "creating"
	case StateAcquiring:
		return "acquiring"
	case StateJoined:
		return "joined"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session describes the room the engine is attached to.
type Session struct {
	Name       string
	Schema     any
	State      State
	Subscribed bool
}

// Joined gates whether local edits are transmitted.
func (s Session) Joined() bool {
	return s.State == StateJoined
}

// RejectPolicy decides what happens to an optimistic edit the server rejects.
type RejectPolicy string

const (
	// RejectKeep leaves the rejected value in the mirror.
	RejectKeep RejectPolicy = "keep"
	// RejectRollback restores the values the request overwrote.
	RejectRollback RejectPolicy = "rollback"
)

func ParseRejectPolicy(raw string) (RejectPolicy, error) {
	switch p := RejectPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return RejectKeep, nil
	case RejectKeep, RejectRollback:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRejectPolicy, raw)
	}
}

// ValidationError carries the entries of a server schema rejection.
type ValidationError struct {
	Kind    protocol.Kind
	Room    string
	Entries []report.Entry
}

func (e *ValidationError) Error() string {
	if e.Room == "" {
		return fmt.Sprintf("room: %s rejected:\n%s", e.Kind, report.Format(e.Entries))
	}
	return fmt.Sprintf("room: %s %q rejected:\n%s", e.Kind, e.Room, report.Format(e.Entries))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailure
}

// Report is the display text handed to the UI.
func (e *ValidationError) Report() string {
	return report.Format(e.Entries)
}
