// Package timeline maintains the ordered, deduplicated view of one
// conversation's messages, including optimistic entries for sends whose
// server echo has not arrived yet.
package timeline

import (
	"sort"
	"sync"
	"time"

	"support-chat/internal/domain"

	"github.com/google/uuid"
)

type entry struct {
	msg     domain.Message
	pending bool
}

// Timeline is owned by exactly one conversation view.
type Timeline struct {
	mu      sync.Mutex
	entries map[string]entry
}

func New() *Timeline {
	return &Timeline{entries: make(map[string]entry)}
}

// Load replaces the timeline with a fetched conversation. Pending entries
// are kept: a fetch racing an in-flight send must not drop the optimistic
// message.
func (t *Timeline) Load(msgs []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := make(map[string]entry, len(msgs))
	for id, e := range t.entries {
		if e.pending {
			kept[id] = e
		}
	}
	for _, m := range msgs {
		kept[m.ID] = entry{msg: m}
	}
	t.entries = kept
}

// AppendPending adds an optimistic entry for a send in flight and returns its
// temporary id. The entry is reconciled by Confirm or rolled back by Discard.
func (t *Timeline) AppendPending(m domain.Message) string {
	pendingID := uuid.NewString()
	m.ID = pendingID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = domain.StatusSent
	}

	t.mu.Lock()
	t.entries[pendingID] = entry{msg: m, pending: true}
	t.mu.Unlock()
	return pendingID
}

// Confirm replaces the pending entry with the stored message. Reconciliation
// is by id match only: if the subscription echo already delivered the stored
// message, the pending entry is simply dropped.
func (t *Timeline) Confirm(pendingID string, stored domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, pendingID)
	if _, ok := t.entries[stored.ID]; ok {
		return
	}
	t.entries[stored.ID] = entry{msg: stored}
}

// Discard rolls back a pending entry after a failed send.
func (t *Timeline) Discard(pendingID string) {
	t.mu.Lock()
	delete(t.entries, pendingID)
	t.mu.Unlock()
}

// ApplyInsert adds a delivered message. Re-delivery of the same id is a
// no-op; the return value reports whether the message was new.
func (t *Timeline) ApplyInsert(m domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[m.ID]; ok {
		return false
	}
	t.entries[m.ID] = entry{msg: m}
	return true
}

// ApplyUpdate patches an existing message. Status moves only forward; an
// update carrying an older status keeps the current one.
func (t *Timeline) ApplyUpdate(m domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[m.ID]
	if !ok {
		return
	}
	e.msg.Content = m.Content
	e.msg.UpdatedAt = m.UpdatedAt
	if e.msg.Status.CanAdvanceTo(m.Status) {
		e.msg.Status = m.Status
	}
	t.entries[m.ID] = e
}

// Messages returns the conversation ordered by created_at. Arrival order is
// never trusted; ties break on id for a stable rendering.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	msgs := make([]domain.Message, 0, len(t.entries))
	for _, e := range t.entries {
		msgs = append(msgs, e.msg)
	}
	t.mu.Unlock()

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
