package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the chat server.
type Config struct {
	// Core listener
	Port           uint16
	MaxConnections uint32
	// MaxChatrooms is advisory: it is parsed, logged, and surfaced on the
	// record, but nothing enforces it. Only the connection cap is enforced.
	MaxChatrooms uint32

	// Behavior toggles
	Verbose        bool
	LoggingEnabled bool

	// Admin HTTP surface (metrics + health probes)
	AdminAddr string

	// Optional event bus
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Optional tracing
	OtelCollectorAddr string
}

const (
	DefaultPort           = 7575
	DefaultMaxConnections = 100
	DefaultMaxChatrooms   = 100
	DefaultAdminAddr      = ":8080"
)

// FromEnv validates all environment variables and returns a Config object.
// Returns an error listing every invalid variable rather than stopping at
// the first one.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Optional: CHAT_PORT (defaults to 7575)
	cfg.Port = DefaultPort
	if v := os.Getenv("CHAT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("CHAT_PORT must be a valid port number between 1 and 65535 (got '%s')", v))
		} else {
			cfg.Port = uint16(port)
		}
	}

	// Optional: MAX_CONNECTIONS (defaults to 100)
	cfg.MaxConnections = DefaultMaxConnections
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			errs = append(errs, fmt.Sprintf("MAX_CONNECTIONS must be a positive integer (got '%s')", v))
		} else {
			cfg.MaxConnections = uint32(n)
		}
	}

	// Optional: MAX_CHATROOMS (defaults to 100, advisory)
	cfg.MaxChatrooms = DefaultMaxChatrooms
	if v := os.Getenv("MAX_CHATROOMS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Sprintf("MAX_CHATROOMS must be a non-negative integer (got '%s')", v))
		} else {
			cfg.MaxChatrooms = uint32(n)
		}
	}

	cfg.Verbose = os.Getenv("VERBOSE") == "true"
	cfg.LoggingEnabled = os.Getenv("LOGGING_ENABLED") != "false"

	// Optional: ADMIN_ADDR (defaults to :8080, empty string disables)
	cfg.AdminAddr = DefaultAdminAddr
	if v, ok := os.LookupEnv("ADMIN_ADDR"); ok {
		if v != "" && !isValidListenAddr(v) {
			errs = append(errs, fmt.Sprintf("ADMIN_ADDR must be in format '[host]:port' (got '%s')", v))
		} else {
			cfg.AdminAddr = v
		}
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// isValidListenAddr is isValidHostPort with an optional host part, e.g. ":8080".
func isValidListenAddr(addr string) bool {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return false
	}

	port, err := strconv.Atoi(addr[idx+1:])
	return err == nil && port >= 1 && port <= 65535
}

// logValidatedConfig logs the validated configuration with secrets redacted.
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"max_connections", cfg.MaxConnections,
		"max_chatrooms", cfg.MaxChatrooms,
		"verbose", cfg.Verbose,
		"logging_enabled", cfg.LoggingEnabled,
		"admin_addr", cfg.AdminAddr,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"redis_password", redactSecret(cfg.RedisPassword),
		"otel_collector_addr", cfg.OtelCollectorAddr,
	)
}

// redactSecret redacts a secret by showing only the first characters.
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***"
}
