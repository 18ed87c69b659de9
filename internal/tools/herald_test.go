package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/mwiater/herald-mcp/internal/herald"
)

// fakeHerald records the requests reaching a stand-in Herald backend.
type fakeHerald struct {
	mu       sync.Mutex
	requests []*recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Body   map[string]any
}

func newFakeHerald(t *testing.T) (*fakeHerald, *herald.Client) {
	t.Helper()
	f := &fakeHerald{routes: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		route := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if route == nil {
			http.NotFound(w, r)
			return
		}
		route(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, herald.New(herald.Config{BaseURL: srv.URL, Token: "tok"})
}

func (f *fakeHerald) handle(route string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeHerald) find(method, path string) *recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			return r
		}
	}
	return nil
}

func (f *fakeHerald) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newHeraldRegistry(t *testing.T) (*fakeHerald, *Registry) {
	t.Helper()
	f, client := newFakeHerald(t)
	r := NewRegistry()
	if err := RegisterHerald(r, client); err != nil {
		t.Fatalf("RegisterHerald error: %v", err)
	}
	return f, r
}

func TestRegisterHeraldExposesToolSurface(t *testing.T) {
	_, r := newHeraldRegistry(t)
	var names []string
	for _, def := range r.List() {
		names = append(names, def.Name)
	}
	want := []string{AuditName, HealthName, InventoryName, ProvisionSecretName, RotateName, RotateCacheName, SyncName}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unexpected tool names %v", names)
	}
}

// TestAuditForwardsFilterAndPayload covers the stack/hours audit scenario:
// only the provided filters reach the backend and the JSON comes back intact.
func TestAuditForwardsFilterAndPayload(t *testing.T) {
	f, r := newHeraldRegistry(t)
	payload := `{"entries":[{"ts":"2026-10-01T00:00:00Z","action":"materialize","stack":"prod","secret":"DB_PASSWORD","cache_hit":true,"duration_ms":4}],"count":1}`
	f.handle("GET /v1/audit", http.StatusOK, payload)

	content, err := r.Dispatch(context.Background(), AuditName, map[string]any{"stack": "prod", "hours": float64(24)})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	req := f.find(http.MethodGet, "/v1/audit")
	if req == nil {
		t.Fatal("audit request not received")
	}
	if got := req.Query["stack"]; len(got) != 1 || got[0] != "prod" {
		t.Fatalf("expected stack=prod, got %v", req.Query)
	}
	if got := req.Query["hours"]; len(got) != 1 || got[0] != "24" {
		t.Fatalf("expected hours=24, got %v", req.Query)
	}
	if _, ok := req.Query["secret"]; ok {
		t.Fatalf("secret should be absent, got %v", req.Query)
	}

	var got, want any
	if err := json.Unmarshal([]byte(content[0].Text), &got); err != nil {
		t.Fatalf("payload is not JSON: %v\n%s", err, content[0].Text)
	}
	_ = json.Unmarshal([]byte(payload), &want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("payload changed:\n got %v\nwant %v", got, want)
	}
}

// TestProvisionDefaultsAndGeneration covers provisioning with an empty field:
// category defaults to login, the field is flagged for generation, and the
// summary carries an op:// reference for it.
func TestProvisionDefaultsAndGeneration(t *testing.T) {
	f, r := newHeraldRegistry(t)
	f.handle("GET /v1/health", http.StatusOK, `{"status":"ok","providers":[],"uptime_seconds":1,"provisioner":"connect"}`)
	f.handle("POST /v1/provision", http.StatusOK, `{"item_id":"abc123","refs":{"password":"op://HomeLab/svc/password"}}`)

	content, err := r.Dispatch(context.Background(), ProvisionSecretName, map[string]any{
		"vault":  "HomeLab",
		"item":   "svc",
		"fields": map[string]any{"password": map[string]any{}},
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	req := f.find(http.MethodPost, "/v1/provision")
	if req == nil {
		t.Fatal("provision request not received")
	}
	if req.Body["category"] != herald.CategoryLogin {
		t.Fatalf("expected default category, got %v", req.Body["category"])
	}
	fields, _ := req.Body["fields"].(map[string]any)
	password, _ := fields["password"].(map[string]any)
	if password["generate"] != true {
		t.Fatalf("expected generate flag for empty password, got %v", fields)
	}
	if _, ok := password["value"]; ok {
		t.Fatalf("empty value should not be sent, got %v", password)
	}

	text := content[0].Text
	for _, want := range []string{"Item ID: abc123", "password=op://HomeLab/svc/password", "Connect server"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in summary:\n%s", want, text)
		}
	}
}

func TestProvisionKeepsExplicitValues(t *testing.T) {
	concealed := false
	req := provisionRequest(provisionArgs{
		Vault:    "HomeLab",
		Item:     "svc",
		Category: herald.CategoryAPICredentials,
		Fields: map[string]provisionFieldArgs{
			"username": {Value: "admin", Concealed: &concealed},
		},
	})
	if req.Category != herald.CategoryAPICredentials {
		t.Fatalf("explicit category overwritten: %s", req.Category)
	}
	f := req.Fields["username"]
	if f.Generate || f.Value != "admin" || f.Concealed == nil || *f.Concealed {
		t.Fatalf("unexpected field spec %+v", f)
	}
}

func TestProvisionRejectsUnknownCategory(t *testing.T) {
	f, r := newHeraldRegistry(t)
	_, err := r.Dispatch(context.Background(), ProvisionSecretName, map[string]any{
		"vault": "HomeLab", "item": "svc", "category": "ssh_key", "fields": map[string]any{},
	})
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
	if f.count() != 0 {
		t.Fatalf("backend should not be called, got %d requests", f.count())
	}
}

func TestRotateCacheRequiresStack(t *testing.T) {
	f, r := newHeraldRegistry(t)
	_, err := r.Dispatch(context.Background(), RotateCacheName, map[string]any{})
	var invalid *InvalidArgumentsError
	if !errors.As(err, &invalid) || invalid.Violations[0].Field != "stack" {
		t.Fatalf("expected missing stack violation, got %v", err)
	}
	if f.count() != 0 {
		t.Fatalf("backend should not be called, got %d requests", f.count())
	}
}

func TestGatewayFailureDoesNotPoisonLaterCalls(t *testing.T) {
	f, r := newHeraldRegistry(t)
	f.handle("DELETE /v1/cache/prod", http.StatusBadGateway, "upstream unavailable")

	_, err := r.Dispatch(context.Background(), RotateCacheName, map[string]any{"stack": "prod"})
	var gwErr *herald.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Status != http.StatusBadGateway {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("expected backend body in message, got %v", err)
	}

	f.handle("DELETE /v1/cache/prod", http.StatusOK, `{"purged":3}`)
	content, err := r.Dispatch(context.Background(), RotateCacheName, map[string]any{"stack": "prod"})
	if err != nil {
		t.Fatalf("second call should succeed, got %v", err)
	}
	if content[0].Text != "Cache cleared for stack: prod" {
		t.Fatalf("unexpected text %q", content[0].Text)
	}
}

func TestSyncSendsTemplate(t *testing.T) {
	f, r := newHeraldRegistry(t)
	f.handle("POST /v1/materialize/env", http.StatusOK, `{"written":"/srv/prod/.env","count":2}`)

	_, err := r.Dispatch(context.Background(), SyncName, map[string]any{
		"stack":        "prod",
		"env_content":  "A=op://V/I/a\nB=op://V/I/b",
		"bypass_cache": true,
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	req := f.find(http.MethodPost, "/v1/materialize/env")
	if req == nil || req.Body["stack"] != "prod" || req.Body["bypass_cache"] != true {
		t.Fatalf("unexpected materialize request %+v", req)
	}
	if _, ok := req.Body["out_path"]; ok {
		t.Fatalf("out_path should be omitted, got %v", req.Body)
	}

	if _, err := r.Dispatch(context.Background(), SyncName, map[string]any{"stack": "prod"}); !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("missing env_content should be rejected, got %v", err)
	}
}

func TestHealthSummary(t *testing.T) {
	f, r := newHeraldRegistry(t)
	f.handle("GET /v1/health", http.StatusOK, `{"status":"ok","uptime_seconds":42,"provisioner":"sdk","providers":[`+
		`{"name":"sa","type":"service_account","status":"degraded","error":"429","rate_limited_since":"2026-10-17T10:00:00Z"}]}`)

	content, err := r.Dispatch(context.Background(), HealthName, nil)
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	text := content[0].Text
	for _, want := range []string{
		"Status: ok",
		"Uptime: 42s",
		"Provisioner: SDK service account",
		"sa [Service Account (cloud API, rate-limited)] - degraded: 429",
		"rate-limited since 2026-10-17T10:00:00Z",
		`"provisioner": "sdk"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in:\n%s", want, text)
		}
	}
}

func TestRotateToleratesHealthFailure(t *testing.T) {
	f, r := newHeraldRegistry(t)
	f.handle("GET /v1/health", http.StatusInternalServerError, "boom")
	f.handle("POST /v1/rotate/item-9", http.StatusOK, `{"stacks":["prod"]}`)

	content, err := r.Dispatch(context.Background(), RotateName, map[string]any{"item_id": "item-9"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	text := content[0].Text
	if !strings.HasPrefix(text, "Rotation triggered") || !strings.Contains(text, "1Password web UI or CLI") {
		t.Fatalf("unexpected rotate text:\n%s", text)
	}
	if !strings.Contains(text, `"prod"`) {
		t.Fatalf("expected backend payload in:\n%s", text)
	}
}

func TestRotateHintsConnectServer(t *testing.T) {
	f, r := newHeraldRegistry(t)
	f.handle("GET /v1/health", http.StatusOK, `{"status":"ok","providers":[{"name":"op-connect","type":"connect_server","status":"ok"}]}`)
	f.handle("POST /v1/rotate/item-9", http.StatusOK, `{}`)

	content, err := r.Dispatch(context.Background(), RotateName, map[string]any{"item_id": "item-9"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if !strings.Contains(content[0].Text, "Connect REST API (op-connect)") {
		t.Fatalf("expected connect hint, got:\n%s", content[0].Text)
	}
}

func TestInventoryCancelledContext(t *testing.T) {
	f, r := newHeraldRegistry(t)
	f.handle("GET /v1/inventory", http.StatusOK, `{"stacks":{}}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Dispatch(ctx, InventoryName, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
