package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/guillermoBallester/aqueduct/internal/core/port"
	"github.com/guillermoBallester/aqueduct/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "aqueduct"

// Tool descriptions
const (
	descAsk = "Ask a natural-language question about the data. " +
		"The question is converted into a read-only SQL query, validated against safety rules, " +
		"executed under a read-only transaction with a row limit and timeout, and the rows are returned. " +
		"If the schema cannot answer the question, can_answer is false in the response."

	descAskParam = "The business question to answer, in plain language"

	descQuery = "Execute a read-only SQL query against the database and return results. " +
		"The query passes the same safety validation as generated SQL: single SELECT statement only, " +
		"no restricted tables, and a server-enforced row limit and timeout. " +
		"Prefer explicit column names over SELECT *."

	descQueryParam = "SQL query to execute (single SELECT statement only)"

	descListTables = "List all accessible tables and views with schema, type, estimated row count and column count. " +
		"Restricted tables are not listed. Use this to understand the database landscape before asking questions."

	descDescribeTable = "Describe a table's structure: columns with types, nullability, defaults and comments, " +
		"primary key, and foreign keys with referenced tables. " +
		"Use foreign keys to find JOIN paths before writing queries."

	descDescribeTableParam = "Name of the table to describe"
)

func RegisterTools(s *server.MCPServer, assistant *service.AssistantService, explorer port.SchemaExplorer) {
	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription(descAsk),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description(descAskParam),
			),
		),
		askHandler(assistant),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription(descQuery),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descQueryParam),
			),
		),
		queryHandler(assistant),
	)

	s.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(descListTables),
		),
		listTablesHandler(explorer),
	)

	s.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(descDescribeTable),
			mcp.WithString("table_name",
				mcp.Required(),
				mcp.Description(descDescribeTableParam),
			),
			mcp.WithString("schema",
				mcp.Description("Schema name (optional, resolves automatically if omitted)"),
			),
		),
		describeTableHandler(explorer),
	)
}

func askHandler(assistant *service.AssistantService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, ok := request.GetArguments()["question"].(string)
		if !ok || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		ctx = service.WithToolName(ctx, "ask")
		result, err := assistant.Ask(ctx, question)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to answer question: %v", err)), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func queryHandler(assistant *service.AssistantService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "query")
		result, err := assistant.Query(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to execute query: %v", err)), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func listTablesHandler(explorer port.SchemaExplorer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := explorer.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
		}

		data, err := json.Marshal(tables)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func describeTableHandler(explorer port.SchemaExplorer) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, _ := request.GetArguments()["schema"].(string)

		detail, err := explorer.DescribeTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to describe table: %v", err)), nil
		}

		data, err := json.Marshal(detail)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}
