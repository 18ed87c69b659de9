package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/herald-mcp/internal/appconfig"
)

// Dispatch outcomes reported to an Observer.
const (
	OutcomeOK               = "ok"
	OutcomeUnknownTool      = "unknown_tool"
	OutcomeInvalidArguments = "invalid_arguments"
	OutcomeHandlerError     = "handler_error"
)

// DispatchObservation describes one completed dispatch.
type DispatchObservation struct {
	Tool      string
	SessionID string
	Outcome   string
	Duration  time.Duration
}

// Observer receives one observation per dispatch. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveDispatch(ctx context.Context, obs DispatchObservation)
}

type registration struct {
	def     Definition
	schema  *gojsonschema.Schema
	handler Handler
}

// Registry maps tool names to their schema and handler. Registration is the
// only place a schema and a handler are bound together.
//
// Contract:
// - Concurrency: safe for concurrent Register and Dispatch.
// - Dispatch invokes a handler at most once per call and never retries.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]registration
	observer Observer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registration)}
}

// SetObserver installs o; nil disables observation.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// Register adds def, replacing any tool with the same name. An empty name,
// a nil handler or a schema that does not compile is a *appconfig.ConfigError.
func (r *Registry) Register(def Definition, handler Handler) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return &appconfig.ConfigError{Key: "tool.name", Reason: "must not be empty"}
	}
	if handler == nil {
		return &appconfig.ConfigError{Key: "tool." + def.Name + ".handler", Reason: "must not be nil"}
	}
	if def.InputSchema == nil {
		def.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
	if err != nil {
		return &appconfig.ConfigError{Key: "tool." + def.Name + ".inputSchema", Reason: err.Error()}
	}

	r.mu.Lock()
	r.tools[def.Name] = registration{def: def, schema: schema, handler: handler}
	r.mu.Unlock()
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg.def, ok
}

// List returns every definition sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defs := make([]Definition, 0, len(r.tools))
	for _, reg := range r.tools {
		defs = append(defs, reg.def)
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch validates args against the named tool's schema and runs its
// handler. Errors are *UnknownToolError, *InvalidArgumentsError or
// *HandlerError; no handler runs for the first two.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) ([]ContentPart, error) {
	start := time.Now()
	content, err := r.dispatch(ctx, name, args)

	r.mu.RLock()
	observer := r.observer
	r.mu.RUnlock()
	if observer != nil {
		observer.ObserveDispatch(ctx, DispatchObservation{
			Tool:      name,
			SessionID: SessionID(ctx),
			Outcome:   outcomeOf(err),
			Duration:  time.Since(start),
		})
	}
	return content, err
}

func (r *Registry) dispatch(ctx context.Context, name string, args map[string]any) ([]ContentPart, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := validate(reg, args); err != nil {
		return nil, err
	}

	content, err := invoke(ctx, reg.handler, args)
	if err != nil {
		return nil, &HandlerError{Tool: name, Err: err}
	}
	if len(content) == 0 {
		return nil, &HandlerError{Tool: name, Err: errors.New("handler returned no content")}
	}
	return content, nil
}

func validate(reg registration, args map[string]any) error {
	result, err := reg.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &InvalidArgumentsError{
			Tool:       reg.def.Name,
			Violations: []Violation{{Field: "(root)", Constraint: "decode", Message: err.Error()}},
		}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		// Required errors are reported against the parent object.
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok && field != prop && !strings.HasSuffix(field, "."+prop) {
				if field == "(root)" {
					field = prop
				} else {
					field = field + "." + prop
				}
			}
		}
		violations = append(violations, Violation{
			Field:      field,
			Constraint: desc.Type(),
			Message:    desc.Description(),
		})
	}
	return &InvalidArgumentsError{Tool: reg.def.Name, Violations: violations}
}

// invoke isolates the caller from a panicking handler.
func invoke(ctx context.Context, handler Handler, args map[string]any) (content []ContentPart, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler(ctx, args)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrUnknownTool):
		return OutcomeUnknownTool
	case errors.Is(err, ErrInvalidArguments):
		return OutcomeInvalidArguments
	default:
		return OutcomeHandlerError
	}
}
