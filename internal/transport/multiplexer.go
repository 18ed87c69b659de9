package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/herald-mcp/internal/logging"
	"github.com/mwiater/herald-mcp/internal/tools"
)

var (
	// ErrUnknownSession is returned for ids that are absent or already closed.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionLimit is returned by Open when MaxSessions are already open.
	ErrSessionLimit = errors.New("session limit reached")
)

const defaultInboxSize = 32

// Handler processes one raw message for a session and returns the encoded
// reply, or nil when none is due. *mcp.Server satisfies it.
type Handler interface {
	Handle(ctx context.Context, raw []byte) []byte
}

// SessionObserver is notified when sessions open and close.
type SessionObserver interface {
	SessionOpened(ctx context.Context, id string)
	SessionClosed(ctx context.Context, id string, lifetime time.Duration)
}

// MultiplexerConfig tunes a Multiplexer. Zero values are usable.
type MultiplexerConfig struct {
	// MaxSessions caps concurrently open sessions; 0 means unlimited.
	MaxSessions int
	// InboxSize bounds messages queued per session before Submit blocks.
	InboxSize int
	Observer  SessionObserver
}

// Multiplexer owns the session table. Each session gets one worker goroutine,
// so messages within a session are handled in arrival order while separate
// sessions proceed in parallel.
type Multiplexer struct {
	handler Handler
	cfg     MultiplexerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMultiplexer creates a Multiplexer dispatching to handler.
func NewMultiplexer(handler Handler, cfg MultiplexerConfig) *Multiplexer {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	return &Multiplexer{
		handler:  handler,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session whose lifetime is bounded by ctx and starts its
// worker. The session is OPEN when Open returns.
func (m *Multiplexer) Open(ctx context.Context) (*Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		state:     StateConnecting,
		cancel:    cancel,
		inbox:     make(chan Message, m.cfg.InboxSize),
		replies:   make(chan Message, m.cfg.InboxSize),
	}
	s.ctx = tools.WithSessionID(sctx, s.ID)

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		cancel()
		return nil, ErrSessionLimit
	}
	s.state = StateOpen
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.cfg.Observer != nil {
		m.cfg.Observer.SessionOpened(s.ctx, s.ID)
	}
	go m.run(s)

	logging.LogEvent("session %s opened", s.ID)
	return s, nil
}

// Lookup returns the open session with id.
func (m *Multiplexer) Lookup(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of open sessions.
func (m *Multiplexer) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Submit queues msg on session id. It blocks while the session inbox is full.
func (m *Multiplexer) Submit(ctx context.Context, id string, msg Message) error {
	s, ok := m.Lookup(id)
	if !ok {
		return ErrUnknownSession
	}
	if s.ctx.Err() != nil {
		return ErrUnknownSession
	}

	s.pending.Add(1)
	select {
	case s.inbox <- msg:
		// Both cases may be ready when Close races the send; a closed
		// session never accepts.
		if s.ctx.Err() != nil {
			return ErrUnknownSession
		}
		return nil
	case <-s.ctx.Done():
		s.pending.Done()
		return ErrUnknownSession
	case <-ctx.Done():
		s.pending.Done()
		return ctx.Err()
	}
}

// Close transitions session id to CLOSED, removes it and cancels its
// context. Replies not yet delivered are discarded.
func (m *Multiplexer) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	s.setState(StateClosed)
	s.cancel()

	if m.cfg.Observer != nil {
		m.cfg.Observer.SessionClosed(context.WithoutCancel(s.ctx), s.ID, time.Since(s.CreatedAt))
	}
	logging.LogEvent("session %s closed", s.ID)
	return nil
}

// CloseAll closes every open session.
func (m *Multiplexer) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(id)
	}
}

// run is the session worker. It is the only sender on s.replies.
func (m *Multiplexer) run(s *Session) {
	defer close(s.replies)
	// A parent context ending is a close as well.
	defer func() { _ = m.Close(s.ID) }()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			if s.ctx.Err() != nil {
				s.pending.Done()
				return
			}
			m.process(s, msg)
		}
	}
}

func (m *Multiplexer) process(s *Session, msg Message) {
	defer s.pending.Done()

	reply := msg.Reply
	if reply == nil {
		reply = m.handler.Handle(s.ctx, msg.Data)
	}
	if reply == nil {
		return
	}
	select {
	case s.replies <- Message{Data: reply, Framing: msg.Framing}:
	case <-s.ctx.Done():
	}
}
