package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LoggingConfig controls ProductionLogger's output.
type LoggingConfig struct {
	Level  string // debug | info | warn | error
	Format string // "json" or "text"
	Output string // "stdout" or "stderr"
}

// ProductionLogger is the gateway's only Logger implementation: a small
// hand-rolled structured logger, following the teacher framework's own
// logging layer rather than adopting a third-party logging library (see
// DESIGN.md for why — the teacher itself never imports one).
type ProductionLogger struct {
	debug     bool
	component string
	format    string
	output    io.Writer
}

// NewProductionLogger builds a root logger for a named service.
func NewProductionLogger(cfg LoggingConfig, serviceName string) *ProductionLogger {
	out := io.Writer(os.Stdout)
	if cfg.Output == "stderr" {
		out = os.Stderr
	}
	return &ProductionLogger{
		debug:     strings.ToLower(cfg.Level) == "debug",
		component: serviceName,
		format:    cfg.Format,
		output:    out,
	}
}

// WithComponent returns a logger scoped to a component name, e.g.
// "router", "dispatcher/anthropic", "orchestrator/codegen".
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}
func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}
func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}
func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"component": p.component,
			"message":   msg,
		}
		if reqID, ok := requestIDFromContext(ctx); ok {
			entry["request_id"] = reqID
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	reqInfo := ""
	if reqID, ok := requestIDFromContext(ctx); ok {
		reqInfo = fmt.Sprintf("[req=%s] ", reqID)
	}
	fmt.Fprintf(p.output, "%s %s [%s] %s%s %v\n", timestamp, level, p.component, reqInfo, msg, fields)
}

type requestIDKey struct{}

// WithRequestID attaches a request ID to a context so every log line
// emitted downstream of a handler can be correlated to the originating
// request, matching spec.md §5's single-writer-per-session ordering
// expectation for observability.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}
