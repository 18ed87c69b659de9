// internal/appconfig/appconfig.go
// Package appconfig manages loading and validating the server configuration.
package appconfig

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// TransportStdio serves a single implicit session over stdin/stdout.
	TransportStdio = "stdio"
	// TransportSSE serves multiplexed sessions over streaming HTTP.
	TransportSSE = "sse"

	defaultHost        = "0.0.0.0"
	defaultPort        = 8000
	defaultHeraldURL   = "http://herald:8765"
	defaultSSEPath     = "/sse"
	defaultMessagePath = "/message"
	// defaultMaxBody caps the size of a posted call envelope.
	defaultMaxBody = 1 << 20
	// defaultRequestTimeout bounds each outbound Herald request.
	defaultRequestTimeout = 30 * time.Second
)

// Config represents the fully resolved server configuration. It is built once
// at startup and passed explicitly to the components that need it.
type Config struct {
	Transport      string `mapstructure:"transport" json:"transport"`
	Host           string `mapstructure:"host" json:"host"`
	Port           int    `mapstructure:"port" json:"port"`
	HeraldURL      string `mapstructure:"heraldURL" json:"heraldURL"`
	HeraldToken    string `mapstructure:"heraldToken" json:"-"`
	SSEPath        string `mapstructure:"ssePath" json:"ssePath"`
	MessagePath    string `mapstructure:"messagePath" json:"messagePath"`
	MaxSessions    int    `mapstructure:"maxSessions" json:"maxSessions"`
	MaxBody        int64  `mapstructure:"maxBody" json:"maxBody"`
	TimeoutSeconds int    `mapstructure:"timeout" json:"timeout"`
	LogFile        string `mapstructure:"logFile" json:"logFile,omitempty"`
	Debug          bool   `mapstructure:"debug" json:"debug"`
	OTLPEndpoint   string `mapstructure:"otlpEndpoint" json:"otlpEndpoint,omitempty"`
	ConfigPath     string `mapstructure:"-" json:"-"`
}

// ConfigError reports a configuration value that prevents the server from
// starting. It is the only fatal error kind.
type ConfigError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	if e.Value == "" {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s=%q: %s", e.Key, e.Value, e.Reason)
}

// envBindings maps viper keys to the environment variables that feed them.
// The MCP_* and HERALD_* names match the container deployment.
var envBindings = map[string][]string{
	"transport":    {"MCP_TRANSPORT"},
	"host":         {"MCP_HOST"},
	"port":         {"MCP_PORT"},
	"heraldURL":    {"HERALD_URL"},
	"heraldToken":  {"HERALD_API_TOKEN"},
	"ssePath":      {"HERALD_MCP_SSE_PATH"},
	"messagePath":  {"HERALD_MCP_MESSAGE_PATH"},
	"maxSessions":  {"HERALD_MCP_MAX_SESSIONS"},
	"maxBody":      {"HERALD_MCP_MAX_BODY"},
	"timeout":      {"HERALD_MCP_TIMEOUT"},
	"logFile":      {"HERALD_MCP_LOG_FILE"},
	"debug":        {"HERALD_MCP_DEBUG"},
	"otlpEndpoint": {"HERALD_MCP_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// Defaults returns the configuration used when nothing overrides a key.
func Defaults() Config {
	return Config{
		Transport:      TransportStdio,
		Host:           defaultHost,
		Port:           defaultPort,
		HeraldURL:      defaultHeraldURL,
		SSEPath:        defaultSSEPath,
		MessagePath:    defaultMessagePath,
		MaxBody:        defaultMaxBody,
		TimeoutSeconds: int(defaultRequestTimeout.Seconds()),
	}
}

// Bind registers defaults and environment variable bindings on v.
func Bind(v *viper.Viper) error {
	d := Defaults()
	v.SetDefault("transport", d.Transport)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("heraldURL", d.HeraldURL)
	v.SetDefault("heraldToken", "")
	v.SetDefault("ssePath", d.SSEPath)
	v.SetDefault("messagePath", d.MessagePath)
	v.SetDefault("maxSessions", d.MaxSessions)
	v.SetDefault("maxBody", d.MaxBody)
	v.SetDefault("timeout", d.TimeoutSeconds)
	v.SetDefault("logFile", "")
	v.SetDefault("debug", false)
	v.SetDefault("otlpEndpoint", "")

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Load materializes the merged viper state (flags > env > file > defaults)
// into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Transport = strings.TrimSpace(c.Transport)
	if c.Transport == "" {
		c.Transport = TransportStdio
	}
	c.Host = strings.TrimSpace(c.Host)
	c.HeraldURL = strings.TrimRight(strings.TrimSpace(c.HeraldURL), "/")
	c.HeraldToken = strings.TrimSpace(c.HeraldToken)
	c.SSEPath = strings.TrimSpace(c.SSEPath)
	c.MessagePath = strings.TrimSpace(c.MessagePath)
}

// Validate checks every value the transport selector and gateway client rely
// on. It returns a *ConfigError describing the first problem found.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportSSE:
	default:
		return &ConfigError{Key: "transport", Value: c.Transport, Reason: "unrecognized transport (want stdio or sse)"}
	}

	u, err := url.Parse(c.HeraldURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Key: "heraldURL", Value: c.HeraldURL, Reason: "must be an absolute http(s) URL"}
	}
	if c.TimeoutSeconds < 0 {
		return &ConfigError{Key: "timeout", Value: strconv.Itoa(c.TimeoutSeconds), Reason: "must not be negative"}
	}

	if c.Transport != TransportSSE {
		return nil
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ConfigError{Key: "port", Value: strconv.Itoa(c.Port), Reason: "must be between 1 and 65535"}
	}
	if !strings.HasPrefix(c.SSEPath, "/") {
		return &ConfigError{Key: "ssePath", Value: c.SSEPath, Reason: "must start with /"}
	}
	if !strings.HasPrefix(c.MessagePath, "/") {
		return &ConfigError{Key: "messagePath", Value: c.MessagePath, Reason: "must start with /"}
	}
	if c.SSEPath == c.MessagePath {
		return &ConfigError{Key: "messagePath", Value: c.MessagePath, Reason: "must differ from ssePath"}
	}
	if c.MaxSessions < 0 {
		return &ConfigError{Key: "maxSessions", Value: strconv.Itoa(c.MaxSessions), Reason: "must not be negative"}
	}
	return nil
}

// RequestTimeout returns the timeout for outbound Herald requests, falling
// back to the default when unset.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ListenAddr returns the host:port the SSE listener binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MaxBodyBytes returns the posted message size limit.
func (c Config) MaxBodyBytes() int64 {
	if c.MaxBody <= 0 {
		return defaultMaxBody
	}
	return c.MaxBody
}

// LogFilePath returns the optional log file path.
func (c Config) LogFilePath() string {
	return strings.TrimSpace(c.LogFile)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.HeraldToken != "" {
		c.HeraldToken = "********"
	}
	return c
}
