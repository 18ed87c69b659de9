package transport

import (
	"io"
	"os"
	"strings"

	"github.com/mwiater/herald-mcp/internal/appconfig"
)

// Options carries the process streams and hooks a transport may need.
type Options struct {
	Stdin    io.Reader
	Stdout   io.Writer
	Observer SessionObserver
}

// Select builds the transport named by cfg.Transport. Both transports take
// their message size limit from cfg.MaxBodyBytes(). An unrecognized name is
// a *appconfig.ConfigError and nothing is bound.
func Select(cfg appconfig.Config, handler Handler, opts Options) (Transport, error) {
	switch name := strings.TrimSpace(cfg.Transport); name {
	case appconfig.TransportStdio:
		in, out := opts.Stdin, opts.Stdout
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		return NewSingleSession(handler, in, out, cfg.MaxBodyBytes(), opts.Observer), nil
	case appconfig.TransportSSE:
		return NewMultiplexed(handler, SSEConfig{
			Addr:        cfg.ListenAddr(),
			SSEPath:     cfg.SSEPath,
			MessagePath: cfg.MessagePath,
			MaxBody:     cfg.MaxBodyBytes(),
			MaxSessions: cfg.MaxSessions,
			Observer:    opts.Observer,
		}), nil
	default:
		return nil, &appconfig.ConfigError{Key: "transport", Value: cfg.Transport, Reason: "unrecognized transport (want stdio or sse)"}
	}
}
