package history

// Ring is a fixed-capacity circular buffer of changes. It never blocks and is
// not safe for concurrent use on its own.
type Ring struct {
	slots []Change
	next  int
	count int

	lastID string
	lastAt Stamp
}

// New returns a ring holding at most capacity changes. Non-positive values
// fall back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{slots: make([]Change, capacity)}
}

// Record stores c at the write cursor, evicting the oldest change when full.
// The last change identity always follows the most recent Record.
func (r *Ring) Record(c Change) {
	r.slots[r.next] = c
	r.next = (r.next + 1) % len(r.slots)
	if r.count < len(r.slots) {
		r.count++
	}
	r.lastID = c.ChangeID
	r.lastAt = c.ChangeTime
}

// Snapshot returns retained changes oldest first, most recent last.
func (r *Ring) Snapshot() []Change {
	out := make([]Change, 0, r.count)
	start := (r.next - r.count + len(r.slots)) % len(r.slots)
	for i := 0; i < r.count; i++ {
		out = append(out, r.slots[(start+i)%len(r.slots)])
	}
	return out
}

// Last returns the most recently recorded change.
func (r *Ring) Last() (Change, bool) {
	if r.count == 0 {
		return Change{}, false
	}
	return r.slots[(r.next-1+len(r.slots))%len(r.slots)], true
}

// SetCursor adopts a last change identity reported by the server without
// recording a change, as happens when a room value is acquired.
func (r *Ring) SetCursor(id string, at Stamp) {
	r.lastID = id
	r.lastAt = at
}

func (r *Ring) LastChangeID() string { return r.lastID }
func (r *Ring) LastChangeAt() Stamp  { return r.lastAt }
func (r *Ring) Len() int             { return r.count }
func (r *Ring) Cap() int             { return len(r.slots) }

// Reset drops every retained change and the cursor.
func (r *Ring) Reset() {
	clear(r.slots)
	r.next = 0
	r.count = 0
	r.lastID = ""
	r.lastAt = ""
}
