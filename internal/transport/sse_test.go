package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/herald-mcp/internal/mcp"
	"github.com/mwiater/herald-mcp/internal/tools"
)

func newMCPServer(t *testing.T) *mcp.Server {
	t.Helper()
	reg := tools.NewRegistry()
	err := reg.Register(tools.Definition{
		Name: "whoami",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"label": map[string]any{"type": "string"}},
		},
	}, func(ctx context.Context, args map[string]any) ([]tools.ContentPart, error) {
		label, _ := args["label"].(string)
		return tools.Text(label + "@" + tools.SessionID(ctx)), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return mcp.NewServer(reg, mcp.ServerInfo{Name: "herald", Version: "test"})
}

type sseEvent struct {
	Event string
	Data  string
}

// sseClient reads events from one open stream.
type sseClient struct {
	t      *testing.T
	resp   *http.Response
	reader *bufio.Reader
}

func openStream(t *testing.T, ctx context.Context, url string) *sseClient {
	t.Helper()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	c := &sseClient{t: t, resp: resp, reader: bufio.NewReader(resp.Body)}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return c
}

// next returns the next event, skipping heartbeat comments.
func (c *sseClient) next() sseEvent {
	c.t.Helper()
	var ev sseEvent
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.t.Fatalf("reading stream: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.Event != "" || ev.Data != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func startSSE(t *testing.T, cfg SSEConfig) (*Multiplexed, *httptest.Server) {
	t.Helper()
	tr := NewMultiplexed(newMCPServer(t), cfg)
	srv := httptest.NewServer(tr)
	t.Cleanup(srv.Close)
	t.Cleanup(tr.Sessions().CloseAll)
	return tr, srv
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func callEnvelope(id int, label string) string {
	return `{"jsonrpc":"2.0","id":` + strconv.Itoa(id) + `,"method":"tools/call","params":{"name":"whoami","arguments":{"label":"` + label + `"}}}`
}

func TestSSEEndToEnd(t *testing.T) {
	_, srv := startSSE(t, SSEConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream := openStream(t, ctx, srv.URL+"/sse")
	ev := stream.next()
	if ev.Event != "endpoint" || !strings.HasPrefix(ev.Data, "/message?sessionId=") {
		t.Fatalf("unexpected first event %+v", ev)
	}
	sessionID := strings.TrimPrefix(ev.Data, "/message?sessionId=")

	status, body := post(t, srv.URL+ev.Data, callEnvelope(7, "a"))
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", status, body)
	}

	msg := stream.next()
	if msg.Event != "message" {
		t.Fatalf("expected message event, got %+v", msg)
	}
	var resp struct {
		ID     int                 `json:"id"`
		Result mcp.ToolsCallResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(msg.Data), &resp); err != nil {
		t.Fatalf("message is not JSON: %v\n%s", err, msg.Data)
	}
	if resp.ID != 7 || resp.Result.Content[0].Text != "a@"+sessionID {
		t.Fatalf("unexpected reply %+v", resp)
	}
}

func TestSSESessionsDoNotCrossTalk(t *testing.T) {
	_, srv := startSSE(t, SSEConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := openStream(t, ctx, srv.URL+"/sse")
	b := openStream(t, ctx, srv.URL+"/sse")
	endpointA, endpointB := a.next().Data, b.next().Data
	if endpointA == endpointB {
		t.Fatal("sessions must get distinct ids")
	}

	post(t, srv.URL+endpointA, callEnvelope(1, "from-a"))
	post(t, srv.URL+endpointB, callEnvelope(1, "from-b"))

	if got := a.next().Data; !strings.Contains(got, "from-a@") || strings.Contains(got, "from-b") {
		t.Fatalf("session a got %s", got)
	}
	if got := b.next().Data; !strings.Contains(got, "from-b@") || strings.Contains(got, "from-a") {
		t.Fatalf("session b got %s", got)
	}
}

func TestSSEPostErrors(t *testing.T) {
	_, srv := startSSE(t, SSEConfig{MaxBody: 64})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream := openStream(t, ctx, srv.URL+"/sse")
	endpoint := srv.URL + stream.next().Data

	cases := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"unknown session", srv.URL + "/message?sessionId=nope", `{}`, http.StatusBadRequest},
		{"missing session", srv.URL + "/message", `{}`, http.StatusBadRequest},
		{"malformed json", endpoint, `{"jsonrpc":`, http.StatusBadRequest},
		{"body too large", endpoint, `{"pad":"` + strings.Repeat("x", 128) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := post(t, tc.url, tc.body)
			if status != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, status, body)
			}
		})
	}

	status, body := post(t, srv.URL+"/message?sessionId=nope", `{}`)
	if status != http.StatusBadRequest || !strings.Contains(body, "Unknown session") {
		t.Fatalf("unexpected unknown session reply %d %q", status, body)
	}
}

func TestSSEUnknownRoutes(t *testing.T) {
	_, srv := startSSE(t, SSEConfig{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/message"},
		{http.MethodPost, "/sse"},
		{http.MethodDelete, "/message"},
		{http.MethodGet, "/other"},
	} {
		req, _ := http.NewRequest(tc.method, srv.URL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestSSEHealthzAndSessionLimit(t *testing.T) {
	tr, srv := startSSE(t, SSEConfig{MaxSessions: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream := openStream(t, ctx, srv.URL+"/sse")
	stream.next()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var health struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health.Status != "ok" || health.Sessions != 1 {
		t.Fatalf("unexpected health %+v", health)
	}

	resp, err = http.Get(srv.URL + "/sse")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 over the limit, got %d", resp.StatusCode)
	}
	if tr.Sessions().Count() != 1 {
		t.Fatalf("rejected stream must not leave a session, got %d", tr.Sessions().Count())
	}
}

func TestSSEDisconnectClosesSession(t *testing.T) {
	tr, srv := startSSE(t, SSEConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	stream := openStream(t, ctx, srv.URL+"/sse")
	endpoint := stream.next().Data
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for tr.Sessions().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session survived client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, _ := post(t, srv.URL+endpoint, callEnvelope(1, "late"))
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for closed session, got %d", status)
	}
}

func TestSSEHeartbeat(t *testing.T) {
	_, srv := startSSE(t, SSEConfig{Heartbeat: 20 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream := openStream(t, ctx, srv.URL+"/sse")
	stream.next()
	for {
		line, err := stream.reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		if line == ": ping\n" {
			return
		}
	}
}
