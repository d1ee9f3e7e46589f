package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CHAT_PORT", "MAX_CONNECTIONS", "MAX_CHATROOMS", "VERBOSE",
		"LOGGING_ENABLED", "ADMIN_ADDR", "REDIS_ENABLED", "REDIS_ADDR",
		"REDIS_PASSWORD", "OTEL_COLLECTOR_ADDR",
	} {
		t.Setenv(key, "")
	}
	// t.Setenv("X", "") leaves the variable set-but-empty, which FromEnv
	// treats the same as unset for every field except ADMIN_ADDR.
	t.Setenv("ADMIN_ADDR", DefaultAdminAddr)
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, uint16(DefaultPort), cfg.Port)
	assert.Equal(t, uint32(DefaultMaxConnections), cfg.MaxConnections)
	assert.Equal(t, uint32(DefaultMaxChatrooms), cfg.MaxChatrooms)
	assert.False(t, cfg.Verbose)
	assert.True(t, cfg.LoggingEnabled)
	assert.Equal(t, DefaultAdminAddr, cfg.AdminAddr)
	assert.False(t, cfg.RedisEnabled)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_PORT", "9000")
	t.Setenv("MAX_CONNECTIONS", "25")
	t.Setenv("MAX_CHATROOMS", "10")
	t.Setenv("VERBOSE", "true")
	t.Setenv("LOGGING_ENABLED", "false")
	t.Setenv("ADMIN_ADDR", "127.0.0.1:9090")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, uint16(9000), cfg.Port)
	assert.Equal(t, uint32(25), cfg.MaxConnections)
	assert.Equal(t, uint32(10), cfg.MaxChatrooms)
	assert.True(t, cfg.Verbose)
	assert.False(t, cfg.LoggingEnabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.AdminAddr)
}

func TestFromEnv_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_PORT", "99999")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAT_PORT")
}

func TestFromEnv_InvalidMaxConnections(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONNECTIONS", "0")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONNECTIONS")
}

func TestFromEnv_AccumulatesErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_PORT", "not-a-port")
	t.Setenv("MAX_CONNECTIONS", "-1")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHAT_PORT")
	assert.Contains(t, err.Error(), "MAX_CONNECTIONS")
}

func TestFromEnv_RedisDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestFromEnv_RedisInvalidAddr(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "not-an-addr")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestFromEnv_AdminDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_ADDR", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.AdminAddr)
}

func TestIsValidHostPort(t *testing.T) {
	assert.True(t, isValidHostPort("localhost:6379"))
	assert.False(t, isValidHostPort("localhost"))
	assert.False(t, isValidHostPort(":6379"))
	assert.False(t, isValidHostPort("localhost:0"))
	assert.False(t, isValidHostPort("localhost:abc"))
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "", redactSecret(""))
	assert.Equal(t, "***", redactSecret("short"))
	assert.Equal(t, "supe***", redactSecret("supersecretpassword"))
}
