package herald

import (
	"encoding/json"
	"fmt"
)

// Provider type and provisioner values reported by /v1/health.
const (
	ProviderConnectServer  = "connect_server"
	ProviderServiceAccount = "service_account"
	ProvisionerConnect     = "connect"
	ProvisionerSDK         = "sdk"
)

// Item categories accepted by /v1/provision.
const (
	CategoryLogin          = "login"
	CategoryAPICredentials = "api_credentials"
	CategorySecureNote     = "secure_note"
)

// Categories lists every accepted item category.
var Categories = []string{CategoryLogin, CategoryAPICredentials, CategorySecureNote}

// HealthResponse is the decoded /v1/health body. Raw keeps the original bytes
// so callers can forward them untouched.
type HealthResponse struct {
	Status        string     `json:"status"`
	Providers     []Provider `json:"providers"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	Provisioner   string     `json:"provisioner,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Provider is one secret read provider, in priority order.
type Provider struct {
	Name             string   `json:"name"`
	Type             string   `json:"type,omitempty"`
	Status           string   `json:"status"`
	LatencyMS        *float64 `json:"latency_ms,omitempty"`
	Error            string   `json:"error,omitempty"`
	RateLimitedSince string   `json:"rate_limited_since,omitempty"`
}

// HealthyConnectServer returns the first Connect server provider reporting ok.
func (h *HealthResponse) HealthyConnectServer() (Provider, bool) {
	if h == nil {
		return Provider{}, false
	}
	for _, p := range h.Providers {
		if p.Type == ProviderConnectServer && p.Status == "ok" {
			return p, true
		}
	}
	return Provider{}, false
}

// AuditFilter narrows an audit query. Zero values are omitted.
type AuditFilter struct {
	Stack  string
	Secret string
	Hours  float64
}

// MaterializeRequest is the /v1/materialize/env body.
type MaterializeRequest struct {
	Stack       string `json:"stack"`
	EnvContent  string `json:"env_content"`
	OutPath     string `json:"out_path,omitempty"`
	BypassCache *bool  `json:"bypass_cache,omitempty"`
}

// FieldSpec describes one item field to provision. A field with no value asks
// Herald to generate one.
type FieldSpec struct {
	Value     string `json:"value,omitempty"`
	Concealed *bool  `json:"concealed,omitempty"`
	Generate  bool   `json:"generate,omitempty"`
}

// ProvisionRequest is the /v1/provision body.
type ProvisionRequest struct {
	Vault    string               `json:"vault"`
	Item     string               `json:"item"`
	Category string               `json:"category"`
	Fields   map[string]FieldSpec `json:"fields"`
}

// ProvisionResponse is the decoded /v1/provision body.
type ProvisionResponse struct {
	ItemID string            `json:"item_id"`
	Refs   map[string]string `json:"refs"`

	Raw json.RawMessage `json:"-"`
}

// Ref returns the op:// reference Herald reported for field, or builds the
// conventional one when the response omitted it.
func (r *ProvisionResponse) Ref(vault, item, field string) string {
	if r != nil {
		if ref, ok := r.Refs[field]; ok && ref != "" {
			return ref
		}
	}
	return fmt.Sprintf("op://%s/%s/%s", vault, item, field)
}
