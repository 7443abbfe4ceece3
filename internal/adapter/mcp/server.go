package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/aqueduct/internal/core/port"
	"github.com/guillermoBallester/aqueduct/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, assistant *service.AssistantService, explorer port.SchemaExplorer, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, assistant, explorer)

	return s
}
