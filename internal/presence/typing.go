// Package presence tracks ephemeral typing state per conversation. Nothing
// here touches persistent storage.
package presence

import (
	"context"
	"sync"
	"time"

	"support-chat/internal/domain"
	"support-chat/internal/realtime"
	"support-chat/pkg/logger"
)

// ChannelName returns the typing channel for a conversation. Typing channels
// are scoped per conversation so state can never leak across conversations.
func ChannelName(scope domain.ConversationScope) string {
	return "typing:" + scope.ActorID
}

type TrackerConfig struct {
	// StopDelay is the trailing idle timeout before "stopped typing" is
	// announced, so the indicator does not flicker between keystrokes.
	StopDelay time.Duration
	// StaleAfter caps how old a received indicator may be before it is
	// treated as not-typing regardless of its flag.
	StaleAfter time.Duration
}

func (c TrackerConfig) withDefaults() TrackerConfig {
	if c.StopDelay <= 0 {
		c.StopDelay = 1500 * time.Millisecond
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = domain.TypingStaleAfter
	}
	return c
}

// Tracker broadcasts this actor's typing state and mirrors everyone else's.
type Tracker struct {
	svc      realtime.ChannelService
	identity domain.Identity
	scope    domain.ConversationScope
	cfg      TrackerConfig
	log      *logger.Logger

	mu         sync.Mutex
	ch         realtime.Channel
	cancel     context.CancelFunc
	typing     bool
	stopTimer  *time.Timer
	indicators map[string]domain.TypingIndicator
	onChange   func([]domain.TypingIndicator)
}

func NewTracker(svc realtime.ChannelService, id domain.Identity, scope domain.ConversationScope, log *logger.Logger, cfg TrackerConfig) *Tracker {
	return &Tracker{
		svc:        svc,
		identity:   id,
		scope:      scope,
		cfg:        cfg.withDefaults(),
		log:        log,
		indicators: make(map[string]domain.TypingIndicator),
	}
}

// OnChange registers the consumer notified whenever the set of typing actors
// changes. Register before Start.
func (t *Tracker) OnChange(fn func([]domain.TypingIndicator)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start opens the conversation's typing channel and begins mirroring presence
// state. The subscription lives until Stop or ctx cancellation.
func (t *Tracker) Start(ctx context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	ch := t.svc.Channel(ChannelName(t.scope))
	ch.OnPresenceSync(t.applySync)

	t.mu.Lock()
	t.ch = ch
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		if err := ch.Subscribe(subCtx, nil); err != nil {
			t.log.Warnf("typing channel %s closed: %v", ch.Name(), err)
		}
	}()
}

// InputActivity is called on every keystroke. The first keystroke after idle
// announces typing immediately; the stop announcement trails behind the last
// keystroke by StopDelay.
func (t *Tracker) InputActivity(ctx context.Context) {
	t.mu.Lock()
	announce := !t.typing
	t.typing = true
	if t.stopTimer != nil {
		t.stopTimer.Stop()
	}
	t.stopTimer = time.AfterFunc(t.cfg.StopDelay, t.announceStopped)
	t.mu.Unlock()

	if announce {
		t.track(ctx, true)
	}
}

func (t *Tracker) announceStopped() {
	t.mu.Lock()
	wasTyping := t.typing
	t.typing = false
	t.mu.Unlock()
	if wasTyping {
		t.track(context.Background(), false)
	}
}

// Stop tears the tracker down: announces stopped, cancels the pending idle
// timer, and releases the channel subscription.
func (t *Tracker) Stop(ctx context.Context) {
	t.mu.Lock()
	if t.stopTimer != nil {
		t.stopTimer.Stop()
		t.stopTimer = nil
	}
	wasTyping := t.typing
	t.typing = false
	cancel := t.cancel
	ch := t.ch
	t.cancel = nil
	t.ch = nil
	t.mu.Unlock()

	if wasTyping && ch != nil {
		t.trackOn(ctx, ch, false)
	}
	if cancel != nil {
		cancel()
	}
	if ch != nil {
		removeCtx, cancelRemove := context.WithTimeout(context.Background(), 5*time.Second)
		_ = t.svc.RemoveChannel(removeCtx, ch)
		cancelRemove()
	}
}

func (t *Tracker) track(ctx context.Context, isTyping bool) {
	t.mu.Lock()
	ch := t.ch
	t.mu.Unlock()
	if ch == nil {
		return
	}
	t.trackOn(ctx, ch, isTyping)
}

func (t *Tracker) trackOn(ctx context.Context, ch realtime.Channel, isTyping bool) {
	err := ch.Track(ctx, realtime.PresenceState{
		ActorID:   t.identity.ActorID(),
		IsTyping:  isTyping,
		LastTyped: time.Now(),
	})
	if err != nil {
		t.log.Warnf("typing broadcast failed: %v", err)
	}
}

func (t *Tracker) applySync(states []realtime.PresenceState) {
	t.mu.Lock()
	t.indicators = make(map[string]domain.TypingIndicator, len(states))
	for _, st := range states {
		t.indicators[st.ActorID] = domain.TypingIndicator{
			ActorID:   st.ActorID,
			IsTyping:  st.IsTyping,
			LastTyped: st.LastTyped,
		}
	}
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(t.Typists(time.Now()))
	}
}

// Typists returns the other actors currently typing. Indicators older than
// StaleAfter are excluded even when flagged typing, to tolerate missed stop
// broadcasts.
func (t *Tracker) Typists(now time.Time) []domain.TypingIndicator {
	t.mu.Lock()
	defer t.mu.Unlock()

	var active []domain.TypingIndicator
	for _, ind := range t.indicators {
		if ind.ActorID == t.identity.ActorID() {
			continue
		}
		if !ind.IsTyping || now.Sub(ind.LastTyped) > t.cfg.StaleAfter {
			continue
		}
		active = append(active, ind)
	}
	return active
}
