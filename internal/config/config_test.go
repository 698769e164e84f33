package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"record-mcp/internal/tools"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("TEST_SN_PASSWORD", "s3cret")
	path := writeFile(t, "gateway.yaml", `
server:
  addr: ":8080"
remote:
  instance: dev12345.service-now.com
  username: admin
  password: ${TEST_SN_PASSWORD}
  timeout: 30s
cache:
  ttl: 1m
tables:
  - name: incident
    label: Incidents
    group: ITSM
shortcuts:
  - name: create_incident
    table: incident
    required: [short_description]
    properties:
      short_description:
        type: string
        description: Brief description
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DefaultServerName, cfg.Server.Name)
	assert.Equal(t, DefaultServerVersion, cfg.Server.Version)
	assert.Equal(t, "s3cret", cfg.Remote.Password)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "https://dev12345.service-now.com", cfg.Remote.URL())
	require.Len(t, cfg.Tables, 1)
	assert.Equal(t, "Incidents", cfg.Tables[0].Label)
	require.Len(t, cfg.Shortcuts, 1)
	assert.Equal(t, "incident", cfg.Shortcuts[0].Table)
	assert.Equal(t, []string{"short_description"}, cfg.Shortcuts[0].Required)
	assert.Equal(t, "string", cfg.Shortcuts[0].Properties["short_description"].Type)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "gateway.toml", `
[remote]
base_url = "http://localhost:8000/"
bearer_token = "tok"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Remote.URL())
	assert.Equal(t, "tok", cfg.Remote.BearerToken)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Zero(t, cfg.Remote.Timeout)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("SN_INSTANCE", "acme.service-now.com")
	t.Setenv("PORT", "9999")
	t.Setenv("MCP_TOKEN", "shared")
	t.Setenv("CACHE_TTL", "5s")
	t.Setenv("SN_CANCEL_ON_DISCONNECT", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "shared", cfg.Server.Token)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
	assert.True(t, cfg.Remote.CancelOnDisconnect)
	assert.Equal(t, "https://acme.service-now.com", cfg.Remote.URL())
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("SN_USERNAME", "from-env")
	path := writeFile(t, "gateway.yaml", "remote:\n  instance: a.example.com\n  username: from-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.Username)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeFile(t, "bad.yaml", "remote: [unterminated"))
	assert.ErrorContains(t, err, "parsing config file")

	_, err = Load(writeFile(t, "dur.yaml", "remote:\n  instance: x\n  timeout: soon\n"))
	assert.ErrorContains(t, err, "remote.timeout")

	_, err = Load(writeFile(t, "empty.yaml", "server:\n  addr: \":1\"\n"))
	assert.ErrorContains(t, err, "remote.instance or remote.base_url is required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := defaults()
		c.Remote.Instance = "x.example.com"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"short jwt secret", func(c *Config) { c.Server.JWTSecret = "short" }, "jwt_secret"},
		{"shortcut without table", func(c *Config) { c.Shortcuts = []tools.Shortcut{{Name: "x"}} }, "shortcuts[0]"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }, "cache.ttl"},
		{"no addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
