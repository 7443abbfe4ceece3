package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guillermoBallester/aqueduct/internal/adapter/mcp"
	"github.com/guillermoBallester/aqueduct/internal/adapter/ollama"
	"github.com/guillermoBallester/aqueduct/internal/adapter/postgres"
	"github.com/guillermoBallester/aqueduct/internal/adapter/rules"
	"github.com/guillermoBallester/aqueduct/internal/audit"
	"github.com/guillermoBallester/aqueduct/internal/config"
	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"github.com/guillermoBallester/aqueduct/internal/core/port"
	"github.com/guillermoBallester/aqueduct/internal/core/service"
	"github.com/guillermoBallester/aqueduct/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags maps CLI flags onto config overrides. Zero values mean "not set"
// and leave the env/default value in place.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("aqueduct", flag.ContinueOnError)

	databaseURL := fs.String("database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	ollamaURL := fs.String("ollama-url", "", "Ollama base URL (overrides OLLAMA_BASE_URL)")
	ollamaModel := fs.String("ollama-model", "", "Ollama model name (overrides OLLAMA_MODEL)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	rulesFile := fs.String("rules-file", "", "path to rules YAML file")
	defaultLimit := fs.Int("default-row-limit", 0, "LIMIT appended to queries without one")
	maxLimit := fs.Int("max-row-limit", 0, "cap for explicit LIMIT clauses")
	queryTimeout := fs.Duration("query-timeout", 0, "statement timeout (e.g. 30s)")
	auditLog := fs.String("audit-log", "", "path to NDJSON audit log file")
	noAuditTable := fs.Bool("no-audit-table", false, "disable the query_logs audit table")
	otel := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")

	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections")
	poolMinConns := fs.Int("pool-min-conns", -1, "minimum pool connections")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime")

	var o config.Overrides
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	setString := func(dst **string, v *string) {
		if *v != "" {
			*dst = v
		}
	}
	setString(&o.DatabaseURL, databaseURL)
	setString(&o.OllamaBaseURL, ollamaURL)
	setString(&o.OllamaModel, ollamaModel)
	setString(&o.LogLevel, logLevel)
	setString(&o.RulesFile, rulesFile)
	if *defaultLimit > 0 {
		o.DefaultRowLimit = defaultLimit
	}
	if *maxLimit > 0 {
		o.MaxRowLimit = maxLimit
	}
	if *queryTimeout > 0 {
		o.QueryTimeout = queryTimeout
	}
	o.AuditLog = *auditLog
	if *noAuditTable {
		f := false
		o.AuditTable = &f
	}
	o.OTelEnabled = *otel

	if *poolMaxConns > 0 {
		n := int32(*poolMaxConns)
		o.PoolMaxConns = &n
	}
	if *poolMinConns >= 0 {
		n := int32(*poolMinConns)
		o.PoolMinConns = &n
	}
	if *poolMaxConnLifetime > 0 {
		o.PoolMaxConnLifetime = poolMaxConnLifetime
	}

	return o, nil
}

func run() error {
	overrides, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting aqueduct",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.Int("default_row_limit", cfg.DefaultRowLimit),
		slog.Int("max_row_limit", cfg.MaxRowLimit),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.String("ollama_model", cfg.OllamaModel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	ruleSet, masks, err := buildRules(cfg)
	if err != nil {
		return err
	}

	// Observability (optional).
	tracer := telemetry.Tracer(cfg.OTelEnabled)
	var inst port.Instrumentation = port.NoopInstrumentation{}
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "aqueduct", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error.message", err.Error()))
			}
		}()
		inst = telemetry.NewInstruments()
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolSettings{
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database pool connected", slog.String("db.system", "postgresql"))

	// Adapters
	explorer := postgres.NewExplorer(pool, cfg.Schemas, ruleSet)
	guard := postgres.NewGuard(pool, cfg.QueryTimeout)
	generator := ollama.NewClient(cfg.OllamaBaseURL, cfg.OllamaModel)

	auditor, err := buildAuditor(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer func() { _ = auditor.Close() }()

	// Domain
	validator := domain.NewRuleValidator(ruleSet)

	// Services
	assistant := service.NewAssistantService(generator, validator, guard, explorer, auditor, logger, masks, tracer, inst)

	// MCP server with tool handlers, over stdio.
	mcpServer := mcp.NewServer(version, assistant, explorer, logger, tracer, inst)
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildRules composes the rule set: built-in defaults, then env/flag limits
// and blocklist additions, then the rules file (most specific) on top.
func buildRules(cfg *config.Config) (domain.RuleSet, map[string]domain.MaskType, error) {
	rs := domain.DefaultRules()
	rs.DefaultRowLimit = cfg.DefaultRowLimit
	rs.MaxRowLimit = cfg.MaxRowLimit
	rs = rs.Extend(cfg.ExtraBlockedWords, cfg.ExtraBlockedTables)

	if cfg.RulesFile == "" {
		return rs, nil, nil
	}
	rs, masks, err := rules.Load(cfg.RulesFile, rs)
	if err != nil {
		return domain.RuleSet{}, nil, fmt.Errorf("loading rules file: %w", err)
	}
	return rs, masks, nil
}

// buildAuditor assembles the configured audit sinks.
func buildAuditor(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (port.QueryAuditor, error) {
	var sinks audit.MultiAuditor

	if cfg.AuditTable {
		sqlAuditor, err := postgres.NewSQLAuditor(ctx, pool, logger)
		if err != nil {
			return nil, fmt.Errorf("creating audit table: %w", err)
		}
		sinks = append(sinks, sqlAuditor)
	}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		sinks = append(sinks, fileAuditor)
	}
	if len(sinks) == 0 {
		return audit.NoopAuditor{}, nil
	}
	return sinks, nil
}
