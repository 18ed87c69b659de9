package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/mwiater/herald-mcp/internal/appconfig"
	"github.com/mwiater/herald-mcp/internal/logging"
)

// HeartbeatInterval is the interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

const (
	healthPath      = "/healthz"
	shutdownTimeout = 10 * time.Second
)

// SSEConfig configures the Multiplexed transport.
type SSEConfig struct {
	// Addr is the host:port to listen on.
	Addr        string
	SSEPath     string
	MessagePath string
	MaxBody     int64
	MaxSessions int
	Heartbeat   time.Duration
	Observer    SessionObserver
}

// Multiplexed serves many concurrent sessions over HTTP.
//
// Endpoints:
//
//	GET  {SSEPath}                      opens a session and streams replies
//	POST {MessagePath}?sessionId=<id>   submits one JSON-RPC message (202)
//	GET  /healthz                       liveness plus open session count
//
// Every other path or method is 404. The first event on a stream is
// "endpoint", whose data is the message URL for that session; replies follow
// as "message" events, with a ": ping" comment every Heartbeat.
type Multiplexed struct {
	cfg SSEConfig
	mux *Multiplexer
}

// NewMultiplexed creates an SSE transport dispatching to handler.
func NewMultiplexed(handler Handler, cfg SSEConfig) *Multiplexed {
	if cfg.SSEPath == "" {
		cfg.SSEPath = "/sse"
	}
	if cfg.MessagePath == "" {
		cfg.MessagePath = "/message"
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 1 << 20
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = HeartbeatInterval
	}
	return &Multiplexed{
		cfg: cfg,
		mux: NewMultiplexer(handler, MultiplexerConfig{MaxSessions: cfg.MaxSessions, Observer: cfg.Observer}),
	}
}

func (t *Multiplexed) Name() string { return appconfig.TransportSSE }

// Sessions exposes the session table, mainly for shutdown and tests.
func (t *Multiplexed) Sessions() *Multiplexer { return t.mux }

// Addr is the host:port the transport listens on.
func (t *Multiplexed) Addr() string {
	return t.cfg.Addr
}

// Serve listens on Addr until ctx ends, then closes every session and shuts
// the HTTP server down.
func (t *Multiplexed) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.Addr())
	if err != nil {
		return fmt.Errorf("sse: listen %s: %w", t.Addr(), err)
	}
	return t.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (t *Multiplexed) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           t,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.LogEvent("sse: listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logging.LogEvent("sse: shutting down, closing %d session(s)", t.mux.Count())
		t.mux.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("sse: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		t.mux.CloseAll()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("sse: serve: %w", err)
		}
		return nil
	}
}

// ServeHTTP implements http.Handler.
func (t *Multiplexed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == t.cfg.SSEPath:
		t.stream(w, r)
	case r.Method == http.MethodPost && r.URL.Path == t.cfg.MessagePath:
		t.post(w, r)
	case r.Method == http.MethodGet && r.URL.Path == healthPath:
		t.health(w)
	default:
		http.NotFound(w, r)
	}
}

func (t *Multiplexed) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sess, err := t.mux.Open(r.Context())
	if err != nil {
		if errors.Is(err, ErrSessionLimit) {
			http.Error(w, "Too many sessions", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() { _ = t.mux.Close(sess.ID) }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := t.cfg.MessagePath + "?sessionId=" + url.QueryEscape(sess.ID)
	if err := writeSSEEvent(w, "endpoint", []byte(endpoint)); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(t.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-sess.Done():
			return

		case reply, ok := <-sess.Replies():
			if !ok {
				return
			}
			if err := writeSSEEvent(w, "message", reply.Data); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (t *Multiplexed) post(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if _, ok := t.mux.Lookup(id); !ok {
		http.Error(w, "Unknown session", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.cfg.MaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Could not read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "Could not parse message", http.StatusBadRequest)
		return
	}

	if err := t.mux.Submit(r.Context(), id, Message{Data: body}); err != nil {
		if errors.Is(err, ErrUnknownSession) {
			http.Error(w, "Unknown session", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

func (t *Multiplexed) health(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "sessions": t.mux.Count()})
}

func writeSSEEvent(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
