// Package conversations derives the admin console's conversation list from
// the message stream.
package conversations

import (
	"context"
	"sync"

	"support-chat/internal/domain"
	chat_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"
)

// PageSize is the fixed page size for the initial conversation fetch.
const PageSize = 10

// countedCap bounds the redelivery dedup set. Redeliveries arrive close to
// the original event, never thousands of messages later.
const countedCap = 2048

// Store is the slice of the message store the aggregator reads.
type Store interface {
	// ListConversationHeads returns the most recent message of each
	// conversation, most recent conversation first.
	ListConversationHeads(ctx context.Context, limit, offset int) ([]domain.Message, error)
	CountConversations(ctx context.Context) (int, error)
	CountUnread(ctx context.Context, actorID string) (int, error)
}

// ProfileLookup hydrates display names, best effort.
type ProfileLookup interface {
	GetByID(ctx context.Context, id string) (domain.Profile, error)
}

// Aggregator maintains the in-memory conversation map for one admin view.
// Only the current page is hydrated; the full conversation set is never
// assumed to fit in memory.
type Aggregator struct {
	store    Store
	profiles ProfileLookup
	log      *logger.Logger

	mu           sync.Mutex
	page         int
	totalPages   int
	order        []string
	byActor      map[string]*domain.Conversation
	counted      map[string]struct{}
	countedOrder []string
}

func New(store Store, profiles ProfileLookup, log *logger.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		profiles: profiles,
		log:      log,
		page:     1,
		byActor:  make(map[string]*domain.Conversation),
		counted:  make(map[string]struct{}),
	}
}

// LoadPage fetches one page of conversations. On failure the previous state
// is kept and a FetchError returned; the caller must surface it rather than
// render an empty list.
func (a *Aggregator) LoadPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	heads, err := a.store.ListConversationHeads(ctx, PageSize, (page-1)*PageSize)
	if err != nil {
		return &chat_errors.FetchError{Cause: err}
	}
	total, err := a.store.CountConversations(ctx)
	if err != nil {
		return &chat_errors.FetchError{Cause: err}
	}

	order := make([]string, 0, len(heads))
	byActor := make(map[string]*domain.Conversation, len(heads))
	for _, head := range heads {
		actorID := head.ActorID()
		if actorID == "" {
			continue
		}
		conv := &domain.Conversation{
			ActorID:       actorID,
			LastMessage:   head.Content,
			LastMessageAt: head.CreatedAt,
			CreatedAt:     head.CreatedAt,
		}
		if unread, err := a.store.CountUnread(ctx, actorID); err == nil {
			conv.UnreadCount = unread
		} else {
			a.log.Warnf("unread count for %s unavailable: %v", actorID, err)
		}
		conv.Username = a.displayName(ctx, head)
		order = append(order, actorID)
		byActor[actorID] = conv
	}

	a.mu.Lock()
	a.page = page
	a.order = order
	a.byActor = byActor
	a.counted = make(map[string]struct{})
	a.countedOrder = nil
	a.totalPages = (total + PageSize - 1) / PageSize
	if a.totalPages < 1 {
		a.totalPages = 1
	}
	a.mu.Unlock()
	return nil
}

// ApplyInsert folds one realtime insert into the list. A known conversation
// is updated and moved to the front; an unknown one is inserted at the front
// only while page 1 is showing. Applying the same message twice is a no-op
// for the unread count.
func (a *Aggregator) ApplyInsert(ctx context.Context, m domain.Message) {
	actorID := m.ActorID()
	if actorID == "" {
		return
	}
	username := ""
	a.mu.Lock()
	_, known := a.byActor[actorID]
	a.mu.Unlock()
	if !known {
		username = a.displayName(ctx, m)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seen := a.rememberCounted(m.ID)
	countsUnread := m.FromVisitor() && m.Status != domain.StatusRead && !seen

	if conv, ok := a.byActor[actorID]; ok {
		conv.LastMessage = m.Content
		conv.LastMessageAt = m.CreatedAt
		if countsUnread {
			conv.UnreadCount++
		}
		a.moveToFront(actorID)
		return
	}

	if a.page != 1 {
		return
	}
	conv := &domain.Conversation{
		ActorID:       actorID,
		LastMessage:   m.Content,
		LastMessageAt: m.CreatedAt,
		CreatedAt:     m.CreatedAt,
		Username:      username,
	}
	if countsUnread {
		conv.UnreadCount = 1
	}
	a.byActor[actorID] = conv
	a.order = append([]string{actorID}, a.order...)
}

// ApplyUpdate patches the matching entry in place, without reordering.
func (a *Aggregator) ApplyUpdate(m domain.Message) {
	actorID := m.ActorID()
	a.mu.Lock()
	defer a.mu.Unlock()

	conv, ok := a.byActor[actorID]
	if !ok {
		return
	}
	if !m.CreatedAt.Before(conv.LastMessageAt) {
		conv.LastMessage = m.Content
	}
}

// MarkConversationRead zeroes the unread projection for one conversation.
// Persisting the read statuses is the status pipeline's job.
func (a *Aggregator) MarkConversationRead(actorID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if conv, ok := a.byActor[actorID]; ok {
		conv.UnreadCount = 0
	}
}

// Conversations returns the current page in recency order.
func (a *Aggregator) Conversations() []domain.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.Conversation, 0, len(a.order))
	for _, actorID := range a.order {
		if conv, ok := a.byActor[actorID]; ok {
			out = append(out, *conv)
		}
	}
	return out
}

func (a *Aggregator) Page() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.page
}

func (a *Aggregator) TotalPages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.totalPages < 1 {
		return 1
	}
	return a.totalPages
}

// rememberCounted records a message id in the dedup set and reports whether
// it was already there. The set holds at most countedCap ids, oldest evicted
// first, so the process-lifetime feed subscription cannot grow it without
// bound. Caller holds a.mu.
func (a *Aggregator) rememberCounted(id string) bool {
	if _, seen := a.counted[id]; seen {
		return true
	}
	a.counted[id] = struct{}{}
	a.countedOrder = append(a.countedOrder, id)
	if len(a.countedOrder) > countedCap {
		evicted := a.countedOrder[0]
		a.countedOrder = a.countedOrder[1:]
		delete(a.counted, evicted)
	}
	return false
}

func (a *Aggregator) moveToFront(actorID string) {
	for i, id := range a.order {
		if id == actorID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.order = append([]string{actorID}, a.order...)
}

// displayName resolves a profile name for authenticated senders, best
// effort. Anonymous sessions have no profile.
func (a *Aggregator) displayName(ctx context.Context, m domain.Message) string {
	if m.IsAdmin || m.SenderID == nil {
		return ""
	}
	profile, err := a.profiles.GetByID(ctx, *m.SenderID)
	if err != nil {
		return ""
	}
	if profile.Username != "" {
		return profile.Username
	}
	return profile.Name
}
