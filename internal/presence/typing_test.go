package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"support-chat/internal/domain"
	"support-chat/internal/realtime"
	"support-chat/pkg/logger"
)

// fakeChannel records tracked states and lets the test inject presence syncs.
type fakeChannel struct {
	name string

	mu       sync.Mutex
	tracked  []realtime.PresenceState
	presence []func([]realtime.PresenceState)
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) OnChange(func(realtime.ChangeEvent)) {}

func (c *fakeChannel) OnPresenceSync(handler func([]realtime.PresenceState)) {
	c.mu.Lock()
	c.presence = append(c.presence, handler)
	c.mu.Unlock()
}

func (c *fakeChannel) Track(ctx context.Context, state realtime.PresenceState) error {
	c.mu.Lock()
	c.tracked = append(c.tracked, state)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Subscribe(ctx context.Context, status func(realtime.SubscribeStatus)) error {
	if status != nil {
		status(realtime.StatusSubscribed)
	}
	<-ctx.Done()
	return nil
}

func (c *fakeChannel) sync(states []realtime.PresenceState) {
	c.mu.Lock()
	handlers := append(([]func([]realtime.PresenceState))(nil), c.presence...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(states)
	}
}

func (c *fakeChannel) trackedStates() []realtime.PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.PresenceState(nil), c.tracked...)
}

type fakeService struct {
	mu      sync.Mutex
	last    *fakeChannel
	removed int
}

func (s *fakeService) Channel(name string) realtime.Channel {
	ch := &fakeChannel{name: name}
	s.mu.Lock()
	s.last = ch
	s.mu.Unlock()
	return ch
}

func (s *fakeService) RemoveChannel(ctx context.Context, ch realtime.Channel) error {
	s.mu.Lock()
	s.removed++
	s.mu.Unlock()
	return nil
}

func (s *fakeService) lastChannel() *fakeChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func newTestTracker(svc *fakeService, stopDelay time.Duration) *Tracker {
	id := domain.AnonymousIdentity("session-1")
	return NewTracker(svc, id, id.Scope(), logger.NewNop(), TrackerConfig{StopDelay: stopDelay})
}

func TestTracker_ChannelScopedPerConversation(t *testing.T) {
	scope := domain.ScopeForActor("actor-7")
	if got := ChannelName(scope); got != "typing:actor-7" {
		t.Errorf("expected 'typing:actor-7', got %q", got)
	}
}

func TestTracker_FirstKeystrokeAnnouncesImmediately(t *testing.T) {
	svc := &fakeService{}
	tr := newTestTracker(svc, time.Hour)
	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	tr.InputActivity(context.Background())
	tr.InputActivity(context.Background())
	tr.InputActivity(context.Background())

	tracked := svc.lastChannel().trackedStates()
	if len(tracked) != 1 {
		t.Fatalf("expected a single typing announcement for the burst, got %d", len(tracked))
	}
	if !tracked[0].IsTyping || tracked[0].ActorID != "session-1" {
		t.Errorf("unexpected tracked state: %+v", tracked[0])
	}
}

func TestTracker_StopAnnouncedAfterIdle(t *testing.T) {
	svc := &fakeService{}
	tr := newTestTracker(svc, 20*time.Millisecond)
	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	tr.InputActivity(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tracked := svc.lastChannel().trackedStates()
		if len(tracked) == 2 {
			if tracked[1].IsTyping {
				t.Fatal("trailing announcement should be not-typing")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the stop announcement")
}

func TestTracker_KeystrokeResetsStopTimer(t *testing.T) {
	svc := &fakeService{}
	tr := newTestTracker(svc, 60*time.Millisecond)
	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	tr.InputActivity(context.Background())
	time.Sleep(30 * time.Millisecond)
	tr.InputActivity(context.Background())
	time.Sleep(30 * time.Millisecond)

	// The timer was pushed back; still within the trailing window.
	tracked := svc.lastChannel().trackedStates()
	if len(tracked) != 1 {
		t.Errorf("expected no stop announcement yet, got %d tracked states", len(tracked))
	}
}

func TestTracker_TypistsExcludesSelfAndStale(t *testing.T) {
	svc := &fakeService{}
	tr := newTestTracker(svc, time.Hour)
	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	now := time.Now()
	svc.lastChannel().sync([]realtime.PresenceState{
		{ActorID: "session-1", IsTyping: true, LastTyped: now}, // self
		{ActorID: "admin-1", IsTyping: true, LastTyped: now},
		{ActorID: "admin-2", IsTyping: true, LastTyped: now.Add(-domain.TypingStaleAfter - time.Second)},
		{ActorID: "admin-3", IsTyping: false, LastTyped: now},
	})

	typists := tr.Typists(now)
	if len(typists) != 1 {
		t.Fatalf("expected 1 active typist, got %d", len(typists))
	}
	if typists[0].ActorID != "admin-1" {
		t.Errorf("expected 'admin-1', got %q", typists[0].ActorID)
	}
}

func TestTracker_OnChangeFiresOnSync(t *testing.T) {
	svc := &fakeService{}
	tr := newTestTracker(svc, time.Hour)

	var mu sync.Mutex
	var lastSet []domain.TypingIndicator
	calls := 0
	tr.OnChange(func(inds []domain.TypingIndicator) {
		mu.Lock()
		lastSet = inds
		calls++
		mu.Unlock()
	})
	tr.Start(context.Background())
	defer tr.Stop(context.Background())

	svc.lastChannel().sync([]realtime.PresenceState{
		{ActorID: "admin-1", IsTyping: true, LastTyped: time.Now()},
	})

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected 1 change callback, got %d", calls)
	}
	if len(lastSet) != 1 || lastSet[0].ActorID != "admin-1" {
		t.Errorf("unexpected typist set: %+v", lastSet)
	}
}

func TestTracker_StopAnnouncesNotTypingAndReleasesChannel(t *testing.T) {
	svc := &fakeService{}
	tr := newTestTracker(svc, time.Hour)
	tr.Start(context.Background())

	tr.InputActivity(context.Background())
	tr.Stop(context.Background())

	tracked := svc.lastChannel().trackedStates()
	last := tracked[len(tracked)-1]
	if last.IsTyping {
		t.Error("stop must announce not-typing")
	}

	svc.mu.Lock()
	removed := svc.removed
	svc.mu.Unlock()
	if removed != 1 {
		t.Errorf("expected the channel to be removed once, got %d", removed)
	}
}
