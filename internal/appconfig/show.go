package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, cfg Config) {
	if cfg.ConfigPath == "" {
		fmt.Fprintln(out, "No config file loaded (using flags, environment and defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.ConfigPath)
	}

	cfg = cfg.Redacted()
	token := cfg.HeraldToken
	if token == "" {
		token = "(none)"
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Transport:       %s\n", cfg.Transport)
	if cfg.Transport == TransportSSE {
		fmt.Fprintf(out, "  Listen:          %s\n", cfg.ListenAddr())
		fmt.Fprintf(out, "  SSE Path:        %s\n", cfg.SSEPath)
		fmt.Fprintf(out, "  Message Path:    %s\n", cfg.MessagePath)
		if cfg.MaxSessions > 0 {
			fmt.Fprintf(out, "  Max Sessions:    %d\n", cfg.MaxSessions)
		} else {
			fmt.Fprintln(out, "  Max Sessions:    unlimited")
		}
		fmt.Fprintf(out, "  Max Body:        %d bytes\n", cfg.MaxBodyBytes())
	}
	fmt.Fprintf(out, "  Herald URL:      %s\n", cfg.HeraldURL)
	fmt.Fprintf(out, "  Herald Token:    %s\n", token)
	fmt.Fprintf(out, "  Request Timeout: %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	if path := cfg.LogFilePath(); path != "" {
		fmt.Fprintf(out, "  Log File:        %s\n", path)
	}
	if cfg.OTLPEndpoint != "" {
		fmt.Fprintf(out, "  OTLP Endpoint:   %s\n", cfg.OTLPEndpoint)
	}
}
