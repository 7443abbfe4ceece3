package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database connection.
	DatabaseURL  string
	QueryTimeout time.Duration

	// Generation oracle.
	OllamaBaseURL string
	OllamaModel   string

	// Safety rules.
	DefaultRowLimit    int
	MaxRowLimit        int
	ExtraBlockedTables []string // appended to the built-in blocklist
	ExtraBlockedWords  []string // appended to the built-in keyword blocklist
	RulesFile          string   // optional path to rules YAML

	// Schema filtering.
	Schemas []string // empty means all non-system schemas

	// Logging.
	LogLevel slog.Level

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool

	// Audit sinks.
	AuditLog   string // path to NDJSON audit log file ("" disables)
	AuditTable bool   // persist audit records into query_logs
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL     *string
	OllamaBaseURL   *string
	OllamaModel     *string
	LogLevel        *string
	DefaultRowLimit *int
	MaxRowLimit     *int
	QueryTimeout    *time.Duration
	RulesFile       *string
	OTelEnabled     bool
	AuditLog        string
	AuditTable      *bool

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI
// overrides, then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		QueryTimeout:        30 * time.Second,
		OllamaBaseURL:       "http://localhost:11434",
		OllamaModel:         "llama3.1",
		DefaultRowLimit:     500,
		MaxRowLimit:         5000,
		AuditTable:          true,
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.OllamaModel = v
	}

	if v := os.Getenv("DEFAULT_ROW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid DEFAULT_ROW_LIMIT value %q: must be a positive integer", v)
		}
		cfg.DefaultRowLimit = n
	}
	if v := os.Getenv("MAX_ROW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_ROW_LIMIT value %q: must be a positive integer", v)
		}
		cfg.MaxRowLimit = n
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	cfg.ExtraBlockedTables = splitList(os.Getenv("BLOCKED_TABLES"))
	cfg.ExtraBlockedWords = splitList(os.Getenv("BLOCKED_KEYWORDS"))
	cfg.Schemas = splitList(os.Getenv("SCHEMAS"))
	cfg.RulesFile = os.Getenv("RULES_FILE")
	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	if v := os.Getenv("AUDIT_TABLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUDIT_TABLE value %q: %w", v, err)
		}
		cfg.AuditTable = b
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	return loadPoolEnvVars(cfg)
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.OllamaBaseURL != nil {
		cfg.OllamaBaseURL = *o.OllamaBaseURL
	}
	if o.OllamaModel != nil {
		cfg.OllamaModel = *o.OllamaModel
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.DefaultRowLimit != nil {
		if *o.DefaultRowLimit <= 0 {
			return fmt.Errorf("invalid --default-row-limit value: must be a positive integer")
		}
		cfg.DefaultRowLimit = *o.DefaultRowLimit
	}
	if o.MaxRowLimit != nil {
		if *o.MaxRowLimit <= 0 {
			return fmt.Errorf("invalid --max-row-limit value: must be a positive integer")
		}
		cfg.MaxRowLimit = *o.MaxRowLimit
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.RulesFile != nil {
		cfg.RulesFile = *o.RulesFile
	}
	if o.AuditTable != nil {
		cfg.AuditTable = *o.AuditTable
	}
	if o.AuditLog != "" {
		cfg.AuditLog = o.AuditLog
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}
	if cfg.DefaultRowLimit > cfg.MaxRowLimit {
		return fmt.Errorf("DEFAULT_ROW_LIMIT (%d) must not exceed MAX_ROW_LIMIT (%d)", cfg.DefaultRowLimit, cfg.MaxRowLimit)
	}
	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive, got %s", cfg.QueryTimeout)
	}
	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}
	return nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
