package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/sdapctl/internal/pointer"
)

// PriorValue is the mirror value a pointer held before an optimistic edit.
type PriorValue struct {
	Pointer pointer.Pointer
	Value   any
	Existed bool
}

// PendingUpdate tracks one update request awaiting its server result.
type PendingUpdate struct {
	RequestID string
	Room      string
	Prior     []PriorValue
	Seq       uint64
	QueuedAt  time.Time
}

// UpdateOutbox stores pending updates by request id.
type UpdateOutbox struct {
	mu    sync.RWMutex
	seq   uint64
	items map[string]PendingUpdate
}

func NewUpdateOutbox() *UpdateOutbox {
	return &UpdateOutbox{
		items: make(map[string]PendingUpdate),
	}
}

// Upsert stores item, assigning it the next FIFO sequence number.
func (o *UpdateOutbox) Upsert(item PendingUpdate) {
	key := strings.TrimSpace(item.RequestID)
	if key == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	item.Seq = o.seq
	o.items[key] = item
}

func (o *UpdateOutbox) Get(requestID string) (PendingUpdate, bool) {
	key := strings.TrimSpace(requestID)
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[key]
	return item, ok
}

func (o *UpdateOutbox) Remove(requestID string) {
	key := strings.TrimSpace(requestID)
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, key)
}

// Take removes and returns the pending update with requestID.
func (o *UpdateOutbox) Take(requestID string) (PendingUpdate, bool) {
	key := strings.TrimSpace(requestID)
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if ok {
		delete(o.items, key)
	}
	return item, ok
}

// TakeOldest removes and returns the earliest queued update for room. It is
// the correlation fallback for servers that do not echo request ids.
func (o *UpdateOutbox) TakeOldest(room string) (PendingUpdate, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var (
		oldest PendingUpdate
		found  bool
	)
	for _, item := range o.items {
		if item.Room != room {
			continue
		}
		if !found || item.Seq < oldest.Seq {
			oldest = item
			found = true
		}
	}
	if found {
		delete(o.items, oldest.RequestID)
	}
	return oldest, found
}

// DropRoom forgets every pending update addressed to room.
func (o *UpdateOutbox) DropRoom(room string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for key, item := range o.items {
		if item.Room == room {
			delete(o.items, key)
			n++
		}
	}
	return n
}

func (o *UpdateOutbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

// List returns pending updates in queue order.
func (o *UpdateOutbox) List() []PendingUpdate {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingUpdate, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq < out[j].Seq
	})
	return out
}
