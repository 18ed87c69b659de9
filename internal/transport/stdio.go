package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mwiater/herald-mcp/internal/appconfig"
	"github.com/mwiater/herald-mcp/internal/logging"
	"github.com/mwiater/herald-mcp/internal/mcp"
)

// drainTimeout bounds how long queued calls may finish after input ends.
const drainTimeout = 30 * time.Second

// SingleSession serves exactly one implicit session over a reader/writer
// pair. The session opens when Serve starts and closes when the input ends.
type SingleSession struct {
	mux      *Multiplexer
	in       io.Reader
	out      io.Writer
	maxBytes int64
}

// NewSingleSession creates a stdio transport reading from in and writing to
// out. Frames over maxBytes are rejected with a JSON-RPC error; maxBytes <= 0
// means mcp.DefaultMaxMessageBytes.
func NewSingleSession(handler Handler, in io.Reader, out io.Writer, maxBytes int64, observer SessionObserver) *SingleSession {
	return &SingleSession{
		mux:      NewMultiplexer(handler, MultiplexerConfig{MaxSessions: 1, Observer: observer}),
		in:       in,
		out:      out,
		maxBytes: maxBytes,
	}
}

func (t *SingleSession) Name() string { return appconfig.TransportStdio }

// Serve reads frames until EOF or ctx ends. Calls already queued when the
// input closes are allowed to finish so their replies are written.
func (t *SingleSession) Serve(ctx context.Context) error {
	sess, err := t.mux.Open(ctx)
	if err != nil {
		return err
	}
	defer t.mux.CloseAll()

	writerDone := make(chan error, 1)
	go func() {
		w := bufio.NewWriter(t.out)
		var werr error
		for reply := range sess.Replies() {
			if werr != nil {
				continue
			}
			if werr = mcp.WriteMessage(w, reply.Data, reply.Framing); werr != nil {
				logging.LogEvent("stdio: write failed: %v", werr)
			}
		}
		writerDone <- werr
	}()

	// A blocked read on stdin cannot be interrupted, so the loop runs apart
	// from the shutdown path.
	readDone := make(chan error, 1)
	go func() { readDone <- t.readLoop(ctx, sess) }()
	var readErr error
	select {
	case readErr = <-readDone:
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	_ = sess.Drain(drainCtx)
	cancel()
	_ = t.mux.Close(sess.ID)
	werr := <-writerDone

	if readErr != nil {
		return readErr
	}
	return werr
}

func (t *SingleSession) readLoop(ctx context.Context, sess *Session) error {
	r := bufio.NewReader(t.in)
	for {
		data, framing, err := mcp.ReadMessage(r, t.maxBytes)
		msg := Message{Data: data, Framing: framing}
		if err != nil {
			var frameErr *mcp.FrameError
			switch {
			case errors.Is(err, io.EOF):
				logging.LogEvent("stdio: input closed")
				return nil
			case errors.As(err, &frameErr):
				logging.LogEvent("stdio: rejected frame: %v", frameErr)
				msg = Message{Framing: frameErr.Framing, Reply: frameErr.Reply()}
			default:
				return fmt.Errorf("stdio: read: %w", err)
			}
		}
		if err := t.mux.Submit(ctx, sess.ID, msg); err != nil {
			if errors.Is(err, ErrUnknownSession) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
