package realtime

import (
	"context"
	"sync"
	"time"

	"support-chat/internal/domain"
	"support-chat/pkg/logger"
	"support-chat/pkg/metrics"
)

type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// Handlers receive scope-filtered change events and connection transitions.
// Events may arrive more than once and out of created_at order; consumers
// deduplicate by id and re-sort before rendering.
type Handlers struct {
	OnInsert       func(domain.Message)
	OnUpdate       func(domain.Message)
	OnStatusChange func(ConnectionState)
}

type ManagerConfig struct {
	RetryBase   time.Duration
	RetryCap    time.Duration
	MaxAttempts int
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 5 * c.RetryBase
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Manager owns at most one logical subscription per conversation scope. It
// runs the connecting/connected/disconnected state machine and reconnects
// with capped exponential backoff.
type Manager struct {
	svc ChannelService
	log *logger.Logger
	cfg ManagerConfig

	mu   sync.Mutex
	subs map[string]*subscription
}

func NewManager(svc ChannelService, log *logger.Logger, cfg ManagerConfig) *Manager {
	return &Manager{
		svc:  svc,
		log:  log,
		cfg:  cfg.withDefaults(),
		subs: make(map[string]*subscription),
	}
}

// Open subscribes to one conversation's changes. A prior subscription for the
// same scope is closed first, so duplicate delivery cannot occur.
func (m *Manager) Open(scope domain.ConversationScope, h Handlers) *Handle {
	return m.open(scope.Key(), scope.Matches, h)
}

// OpenFeed subscribes to the all-conversations feed used by the admin list.
// Every message belongs to the feed, so the scope filter passes everything
// that carries a visitor-side actor id.
func (m *Manager) OpenFeed(h Handlers) *Handle {
	return m.open(FeedChannelName, func(msg domain.Message) bool {
		return msg.ActorID() != ""
	}, h)
}

func (m *Manager) open(key string, match func(domain.Message) bool, h Handlers) *Handle {
	m.mu.Lock()
	prev := m.subs[key]
	delete(m.subs, key)
	m.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		key:      key,
		match:    match,
		handlers: h,
		mgr:      m,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StateConnecting,
	}

	m.mu.Lock()
	m.subs[key] = sub
	m.mu.Unlock()

	go sub.run()
	return &Handle{sub: sub}
}

// ActiveSubscriptions reports how many live subscriptions exist for a scope.
// By construction it is 0 or 1.
func (m *Manager) ActiveSubscriptions(scope domain.ConversationScope) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[scope.Key()]; ok {
		return 1
	}
	return 0
}

func (m *Manager) forget(sub *subscription) {
	m.mu.Lock()
	if m.subs[sub.key] == sub {
		delete(m.subs, sub.key)
	}
	m.mu.Unlock()
}

// Handle releases or inspects one open subscription.
type Handle struct {
	sub *subscription
}

// Close tears the subscription down synchronously: after it returns, no
// handler fires and no retry timer is pending.
func (h *Handle) Close() {
	h.sub.close()
}

func (h *Handle) State() ConnectionState {
	return h.sub.currentState()
}

type subscription struct {
	key      string
	match    func(domain.Message) bool
	handlers Handlers
	mgr      *Manager
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	stateMu sync.Mutex
	state   ConnectionState
}

func (s *subscription) run() {
	defer close(s.done)
	defer s.mgr.forget(s)

	attempts := 0
	for {
		if s.ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting)

		ch := s.mgr.svc.Channel(s.key)
		ch.OnChange(s.dispatch)
		err := ch.Subscribe(s.ctx, func(st SubscribeStatus) {
			if st == StatusSubscribed {
				attempts = 0
				s.setState(StateConnected)
			}
		})

		// Confirm the old channel is gone before any reconnect, so a retry
		// can never race a still-live subscription.
		removeCtx, cancelRemove := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.mgr.svc.RemoveChannel(removeCtx, ch)
		cancelRemove()

		if s.ctx.Err() != nil {
			return
		}
		s.setState(StateDisconnected)
		if err == nil {
			return
		}

		attempts++
		if attempts > s.mgr.cfg.MaxAttempts {
			metrics.ReconnectsTotal.WithLabelValues("exhausted").Inc()
			s.mgr.log.Warnf("subscription %s: giving up after %d attempts; manual reopen required", s.key, attempts-1)
			return
		}
		metrics.ReconnectsTotal.WithLabelValues("scheduled").Inc()
		delay := s.backoff(attempts)
		s.mgr.log.Infof("subscription %s: reconnecting in %s (attempt %d/%d)", s.key, delay, attempts, s.mgr.cfg.MaxAttempts)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *subscription) backoff(attempt int) time.Duration {
	delay := s.mgr.cfg.RetryBase << (attempt - 1)
	if delay > s.mgr.cfg.RetryCap {
		delay = s.mgr.cfg.RetryCap
	}
	return delay
}

func (s *subscription) dispatch(ev ChangeEvent) {
	if s.ctx.Err() != nil {
		return
	}
	if !s.match(ev.Message) {
		return
	}
	switch ev.Type {
	case EventInsert:
		if s.handlers.OnInsert != nil {
			s.handlers.OnInsert(ev.Message)
		}
	case EventUpdate:
		if s.handlers.OnUpdate != nil {
			s.handlers.OnUpdate(ev.Message)
		}
	}
}

func (s *subscription) setState(st ConnectionState) {
	s.stateMu.Lock()
	changed := s.state != st
	s.state = st
	s.stateMu.Unlock()
	if changed && s.handlers.OnStatusChange != nil {
		s.handlers.OnStatusChange(st)
	}
}

func (s *subscription) currentState() ConnectionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *subscription) close() {
	s.cancel()
	<-s.done
}
