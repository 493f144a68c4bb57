package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"support-chat/internal/domain"
	"support-chat/pkg/logger"
)

func strPtr(s string) *string { return &s }

// fakeChannel is a scriptable in-process channel. Events pushed with emit are
// delivered to registered handlers; fail tears the subscription down with a
// transport error.
type fakeChannel struct {
	name string
	// broken channels fail before confirming the subscription, as a dead
	// transport would.
	broken bool

	mu       sync.Mutex
	handlers []func(ChangeEvent)

	events chan ChangeEvent
	errs   chan error
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{
		name:   name,
		events: make(chan ChangeEvent, 16),
		errs:   make(chan error, 1),
	}
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) OnChange(handler func(ChangeEvent)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
}

func (c *fakeChannel) OnPresenceSync(func([]PresenceState)) {}

func (c *fakeChannel) Track(context.Context, PresenceState) error { return nil }

func (c *fakeChannel) Subscribe(ctx context.Context, status func(SubscribeStatus)) error {
	if c.broken {
		if status != nil {
			status(StatusChannelError)
		}
		return connErr{}
	}
	if status != nil {
		status(StatusSubscribed)
	}
	for {
		select {
		case <-ctx.Done():
			if status != nil {
				status(StatusClosed)
			}
			return nil
		case ev := <-c.events:
			c.mu.Lock()
			handlers := append(([]func(ChangeEvent))(nil), c.handlers...)
			c.mu.Unlock()
			for _, h := range handlers {
				h(ev)
			}
		case err := <-c.errs:
			if status != nil {
				status(StatusChannelError)
			}
			return err
		}
	}
}

func (c *fakeChannel) emit(ev ChangeEvent) { c.events <- ev }
func (c *fakeChannel) fail(err error)      { c.errs <- err }

type fakeService struct {
	mu       sync.Mutex
	channels []*fakeChannel
	broken   bool
	failNext int
}

func (s *fakeService) Channel(name string) Channel {
	ch := newFakeChannel(name)
	s.mu.Lock()
	if s.failNext > 0 {
		ch.broken = true
		s.failNext--
	} else {
		ch.broken = s.broken
	}
	s.channels = append(s.channels, ch)
	s.mu.Unlock()
	return ch
}

func (s *fakeService) breakTransport() {
	s.mu.Lock()
	s.broken = true
	s.mu.Unlock()
}

// failNextChannels breaks only the next n channels, so a reconnect attempt
// after them succeeds.
func (s *fakeService) failNextChannels(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

func (s *fakeService) RemoveChannel(ctx context.Context, ch Channel) error { return nil }

func (s *fakeService) latest() *fakeChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.channels) == 0 {
		return nil
	}
	return s.channels[len(s.channels)-1]
}

func (s *fakeService) channelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

type connErr struct{}

func (connErr) Error() string { return "transport failed" }

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testManager(svc ChannelService) *Manager {
	return NewManager(svc, logger.NewNop(), ManagerConfig{
		RetryBase:   5 * time.Millisecond,
		RetryCap:    20 * time.Millisecond,
		MaxAttempts: 3,
	})
}

func TestManager_DispatchesScopedEvents(t *testing.T) {
	svc := &fakeService{}
	mgr := testManager(svc)
	scope := domain.ScopeForActor("actor-1")

	var mu sync.Mutex
	var inserts []domain.Message
	var states []ConnectionState

	h := mgr.Open(scope, Handlers{
		OnInsert: func(m domain.Message) {
			mu.Lock()
			inserts = append(inserts, m)
			mu.Unlock()
		},
		OnStatusChange: func(st ConnectionState) {
			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		},
	})
	defer h.Close()

	waitFor(t, func() bool { return h.State() == StateConnected }, "connected state")

	ch := svc.latest()
	ch.emit(ChangeEvent{Type: EventInsert, Message: domain.Message{ID: "m1", SenderID: strPtr("actor-1")}})
	// Out of scope: must be filtered even though the transport delivered it.
	ch.emit(ChangeEvent{Type: EventInsert, Message: domain.Message{ID: "m2", SenderID: strPtr("actor-2")}})
	ch.emit(ChangeEvent{Type: EventInsert, Message: domain.Message{ID: "m3", IsAdmin: true, RecipientID: strPtr("actor-1")}})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(inserts) == 2
	}, "scoped events")

	mu.Lock()
	defer mu.Unlock()
	if inserts[0].ID != "m1" || inserts[1].ID != "m3" {
		t.Errorf("expected m1,m3 got %s,%s", inserts[0].ID, inserts[1].ID)
	}
	if len(states) == 0 || states[0] != StateConnecting {
		t.Error("expected the first state transition to be connecting")
	}
}

func TestManager_OneSubscriptionPerScope(t *testing.T) {
	svc := &fakeService{}
	mgr := testManager(svc)
	scope := domain.ScopeForActor("actor-1")

	h1 := mgr.Open(scope, Handlers{})
	waitFor(t, func() bool { return h1.State() == StateConnected }, "first subscription")

	h2 := mgr.Open(scope, Handlers{})
	defer h2.Close()
	waitFor(t, func() bool { return h2.State() == StateConnected }, "second subscription")

	if got := mgr.ActiveSubscriptions(scope); got != 1 {
		t.Errorf("expected exactly 1 live subscription, got %d", got)
	}
	// The reopen closed the first subscription; only one channel can still
	// receive events.
	if svc.channelCount() != 2 {
		t.Errorf("expected 2 channels created, got %d", svc.channelCount())
	}
}

func TestManager_ReconnectsWithBoundedAttempts(t *testing.T) {
	svc := &fakeService{}
	mgr := testManager(svc)
	scope := domain.ScopeForActor("actor-1")

	h := mgr.Open(scope, Handlers{})
	defer h.Close()
	waitFor(t, func() bool { return h.State() == StateConnected }, "initial connect")

	// Break the transport so every reconnect attempt fails before
	// subscribing, then fail the live channel to start the retry loop.
	svc.breakTransport()
	svc.latest().fail(connErr{})

	waitFor(t, func() bool { return mgr.ActiveSubscriptions(scope) == 0 }, "retry exhaustion")
	if got := svc.channelCount(); got != 4 {
		t.Errorf("expected 4 channels (1 live + 3 failed retries), got %d", got)
	}
	if h.State() != StateDisconnected {
		t.Errorf("expected disconnected after giving up, got %s", h.State())
	}
}

func TestManager_RecoversAfterTransientFailure(t *testing.T) {
	svc := &fakeService{}
	mgr := testManager(svc)
	scope := domain.ScopeForActor("actor-1")

	var mu sync.Mutex
	var inserts []string
	h := mgr.Open(scope, Handlers{
		OnInsert: func(m domain.Message) {
			mu.Lock()
			inserts = append(inserts, m.ID)
			mu.Unlock()
		},
	})
	defer h.Close()
	waitFor(t, func() bool { return h.State() == StateConnected }, "initial connect")

	// One failed reconnect attempt, then the transport heals.
	svc.failNextChannels(1)
	svc.latest().fail(connErr{})

	waitFor(t, func() bool {
		return svc.channelCount() == 3 && h.State() == StateConnected
	}, "reconnect")

	if got := mgr.ActiveSubscriptions(scope); got != 1 {
		t.Errorf("expected exactly 1 live subscription after reconnect, got %d", got)
	}

	// The recovered channel must dispatch; a duplicate subscription would
	// deliver this twice.
	svc.latest().emit(ChangeEvent{Type: EventInsert, Message: domain.Message{ID: "m1", SenderID: strPtr("actor-1")}})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(inserts) >= 1
	}, "dispatch after reconnect")

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(inserts) != 1 {
		t.Errorf("expected exactly 1 delivery, got %d", len(inserts))
	}
}

func TestManager_CloseStopsDispatch(t *testing.T) {
	svc := &fakeService{}
	mgr := testManager(svc)
	scope := domain.ScopeForActor("actor-1")

	var mu sync.Mutex
	count := 0
	h := mgr.Open(scope, Handlers{
		OnInsert: func(domain.Message) {
			mu.Lock()
			count++
			mu.Unlock()
		},
	})
	waitFor(t, func() bool { return h.State() == StateConnected }, "connect")

	h.Close()

	if got := mgr.ActiveSubscriptions(scope); got != 0 {
		t.Errorf("expected no live subscriptions after close, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected no dispatches, got %d", count)
	}
}

func TestManager_FeedReceivesEveryConversation(t *testing.T) {
	svc := &fakeService{}
	mgr := testManager(svc)

	var mu sync.Mutex
	var got []string
	h := mgr.OpenFeed(Handlers{
		OnInsert: func(m domain.Message) {
			mu.Lock()
			got = append(got, m.ID)
			mu.Unlock()
		},
	})
	defer h.Close()
	waitFor(t, func() bool { return h.State() == StateConnected }, "feed connect")

	ch := svc.latest()
	if ch.Name() != FeedChannelName {
		t.Fatalf("expected feed channel %q, got %q", FeedChannelName, ch.Name())
	}
	ch.emit(ChangeEvent{Type: EventInsert, Message: domain.Message{ID: "m1", SenderID: strPtr("actor-1")}})
	ch.emit(ChangeEvent{Type: EventInsert, Message: domain.Message{ID: "m2", SessionID: strPtr("actor-2")}})
	ch.emit(ChangeEvent{Type: EventInsert, Message: domain.Message{ID: "m3"}}) // no actor id

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "feed events")

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "m1" || got[1] != "m2" {
		t.Errorf("expected m1,m2 got %v", got)
	}
}
