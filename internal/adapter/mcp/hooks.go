package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/aqueduct/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// inflight tracks a tool call between its before and after hooks, keyed by
// JSON-RPC request id.
type inflight struct {
	tool    string
	started time.Time
	span    trace.Span
}

// ToolCallHooks instruments every tool call with a structured log line, a
// duration metric, and, when a real tracer is configured, a span named after
// the tool. The after and error hooks share one bookkeeping map because a
// failed call fires only the error hook.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	var pending sync.Map // request id -> *inflight

	settle := func(id any) (inflight, bool) {
		v, ok := pending.LoadAndDelete(id)
		if !ok {
			return inflight{}, false
		}
		return *v.(*inflight), true
	}

	emit := func(ctx context.Context, call inflight, callErr error, resultIsErr bool) {
		elapsed := time.Since(call.started)

		level := slog.LevelInfo
		attrs := []slog.Attr{
			slog.String("mcp.tool", call.tool),
			slog.Duration("duration", elapsed),
			slog.Bool("error", callErr != nil || resultIsErr),
		}
		if callErr != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.String("error.message", callErr.Error()))
		} else if resultIsErr {
			level = slog.LevelError
		}
		logger.LogAttrs(ctx, level, "tool call", attrs...)

		if inst != nil {
			inst.RecordToolDuration(ctx, float64(elapsed.Milliseconds()))
		}

		if call.span != nil {
			switch {
			case callErr != nil:
				call.span.RecordError(callErr)
				call.span.SetStatus(codes.Error, callErr.Error())
			case resultIsErr:
				call.span.RecordError(fmt.Errorf("tool %s returned error", call.tool))
				call.span.SetStatus(codes.Error, "tool returned error")
			}
			call.span.End()
		}
	}

	hooks := &server.Hooks{}

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		call := &inflight{tool: req.Params.Name, started: time.Now()}
		if tracer != nil {
			_, call.span = tracer.Start(ctx, "aqueduct.tool."+req.Params.Name,
				trace.WithAttributes(
					attribute.String("aqueduct.tool", req.Params.Name),
					attribute.String("rpc.method", "tools/call"),
				),
			)
		}
		pending.Store(id, call)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		call, ok := settle(id)
		if !ok {
			return
		}
		r, isResult := result.(*mcp.CallToolResult)
		emit(ctx, call, nil, isResult && r.IsError)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		// Fires for every failed request; only tool calls are tracked here.
		call, ok := settle(id)
		if !ok {
			return
		}
		emit(ctx, call, err, false)
	})

	return hooks
}
