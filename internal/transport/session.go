package transport

import (
	"context"
	"sync"
	"time"

	"github.com/mwiater/herald-mcp/internal/mcp"
)

// State is a session lifecycle stage. Transitions only move forward:
// CONNECTING -> OPEN -> CLOSED.
type State string

const (
	StateConnecting State = "CONNECTING"
	StateOpen       State = "OPEN"
	StateClosed     State = "CLOSED"
)

// Message is one frame crossing a session boundary. Framing is carried so a
// reply goes back the way its request came in. A message with Reply set was
// rejected by the transport; the worker sends Reply in order instead of
// calling the handler.
type Message struct {
	Data    []byte
	Framing mcp.Framing
	Reply   []byte
}

// Session is one logical client conversation. Its context is cancelled on
// close, which aborts any backend call still running on its behalf.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu    sync.Mutex
	state State

	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan Message
	replies chan Message
	pending sync.WaitGroup
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Replies yields encoded responses in request order. The channel is closed
// once the session is closed and its worker has stopped.
func (s *Session) Replies() <-chan Message {
	return s.replies
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Drain blocks until every message submitted so far has been processed, or
// ctx ends. Callers must stop submitting before draining.
func (s *Session) Drain(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-s.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
