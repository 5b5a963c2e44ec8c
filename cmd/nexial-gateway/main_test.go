// ABOUTME: Tests for gateway CLI helpers
// ABOUTME: Flag parsing, generated config and the colour log handler

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexial/nexial-gateway/internal/config"
)

func TestFlagValue(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"separate", []string{"--username", "alice"}, "alice", false},
		{"equals", []string{"--username=alice"}, "alice", false},
		{"short", []string{"-u", "alice"}, "alice", false},
		{"missing value", []string{"--username"}, "", true},
		{"absent", []string{"--password", "x"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := flagValue(tt.args, "--username", "-u")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderConfigRoundTrips(t *testing.T) {
	t.Setenv("NEXIAL_DB_PATH", "")
	content := renderConfig(initAnswers{
		HTTPAddr:       "localhost:9000",
		Origins:        splitList("http://localhost:3000, https://app.example.com"),
		DatabasePath:   "/tmp/nexial.db",
		JWTSecret:      "0123456789abcdef0123456789abcdef",
		AssistantToken: "",
		LogLevel:       "debug",
		LogFormat:      "json",
	})

	cfg, err := config.Parse([]byte(content), false)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/tmp/nexial.db", cfg.Database.Path)
	assert.False(t, cfg.Assistant.Enabled())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestOpenStoreHonorsDatabaseOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "gateway.yaml")
	content := renderConfig(initAnswers{
		HTTPAddr:     "localhost:9000",
		DatabasePath: filepath.Join(dir, "configured.db"),
		JWTSecret:    "0123456789abcdef0123456789abcdef",
		LogLevel:     "info",
		LogFormat:    "text",
	})
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	override := filepath.Join(dir, "override.db")
	t.Setenv("NEXIAL_CONFIG", configPath)
	t.Setenv("NEXIAL_DB_PATH", override)

	cfg, s, err := openStore()
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, override, cfg.Database.Path)
	assert.FileExists(t, override)
	assert.NoFileExists(t, filepath.Join(dir, "configured.db"))
}

func TestGenerateSecretIsLongEnough(t *testing.T) {
	secret, err := generateSecret()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(secret), 32)
}

func TestProbeAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8000", probeAddr("0.0.0.0:8000"))
	assert.Equal(t, "127.0.0.1:8000", probeAddr(":8000"))
	assert.Equal(t, "example.com:80", probeAddr("example.com:80"))
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo)).With("component", "gateway")

	logger.Debug("hidden")
	logger.WithGroup("req").Info("served", "status", 200)
	logger.Error("broke", "error", "boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "INF served component=gateway req.status=200")
	assert.Contains(t, lines[1], "ERR broke component=gateway error=boom")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
