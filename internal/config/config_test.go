// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  api_url: "https://chat.example.com/api"
  socket_url: "wss://chat.example.com/chat"
  namespace: "/dm"
  rate_limit: 2.5

auth:
  token_file: "/tmp/token"

channel:
  reconnect_min: "250ms"
  reconnect_max: "10s"
  handshake_timeout: "3s"
  dedupe_window: "0s"

history:
  page_size: 25
  max_pending: 10

journal:
  enabled: true
  path: "/tmp/journal.db"
  retention: "48h"

logging:
  level: "debug"
  format: "json"
  file: "/tmp/chatsync.log"

metrics:
  enabled: true
  addr: ":9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.APIURL != "https://chat.example.com/api" {
		t.Errorf("Server.APIURL = %q", cfg.Server.APIURL)
	}
	if cfg.Server.SocketURL != "wss://chat.example.com/chat" {
		t.Errorf("Server.SocketURL = %q", cfg.Server.SocketURL)
	}
	if cfg.Server.Namespace != "/dm" {
		t.Errorf("Server.Namespace = %q, want %q", cfg.Server.Namespace, "/dm")
	}
	if cfg.Server.RateLimit != 2.5 {
		t.Errorf("Server.RateLimit = %v, want 2.5", cfg.Server.RateLimit)
	}
	if cfg.Auth.TokenFile != "/tmp/token" {
		t.Errorf("Auth.TokenFile = %q", cfg.Auth.TokenFile)
	}

	durations := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"ReconnectMin", cfg.Channel.ReconnectMin, 250 * time.Millisecond},
		{"ReconnectMax", cfg.Channel.ReconnectMax, 10 * time.Second},
		{"HandshakeTimeout", cfg.Channel.HandshakeTimeout, 3 * time.Second},
		{"DedupeWindow", cfg.Channel.DedupeWindow, 0},
		{"Retention", cfg.Journal.Retention, 48 * time.Hour},
	}
	for _, d := range durations {
		if d.got != d.want {
			t.Errorf("%s = %v, want %v", d.name, d.got, d.want)
		}
	}

	if cfg.History.PageSize != 25 || cfg.History.MaxPending != 10 {
		t.Errorf("History = %+v", cfg.History)
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/tmp/journal.db" {
		t.Errorf("Journal = %+v", cfg.Journal)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || cfg.Logging.File != "/tmp/chatsync.log" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9000" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
api_url = "http://127.0.0.1:4000/api"
socket_url = "http://127.0.0.1:4000/chat"

[channel]
reconnect_max = "5s"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.APIURL != "http://127.0.0.1:4000/api" {
		t.Errorf("Server.APIURL = %q", cfg.Server.APIURL)
	}
	if cfg.Channel.ReconnectMax != 5*time.Second {
		t.Errorf("Channel.ReconnectMax = %v, want 5s", cfg.Channel.ReconnectMax)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHAT_HOST", "chat.internal")
	t.Setenv("TEST_CHAT_TOKEN", "secret-token")

	path := writeConfig(t, "config.yaml", `
server:
  api_url: "https://${TEST_CHAT_HOST}/api"
  socket_url: "https://${TEST_CHAT_HOST}/chat"
auth:
  token: "${TEST_CHAT_TOKEN}"
  token_file: "${TEST_CHAT_UNSET_VAR}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.APIURL != "https://chat.internal/api" {
		t.Errorf("Server.APIURL = %q", cfg.Server.APIURL)
	}
	if cfg.Auth.Token != "secret-token" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "secret-token")
	}
	if cfg.Auth.TokenFile != "" {
		t.Errorf("unset variable should expand to empty, got %q", cfg.Auth.TokenFile)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	path := writeConfig(t, "config.yaml", "logging:\n  format: text\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.APIURL != DefaultAPIURL || cfg.Server.SocketURL != DefaultSocketURL {
		t.Errorf("Server defaults not applied: %+v", cfg.Server)
	}
	if cfg.Channel.ReconnectMin != DefaultReconnectMin || cfg.Channel.ReconnectMax != DefaultReconnectMax {
		t.Errorf("reconnect defaults not applied: %+v", cfg.Channel)
	}
	if cfg.Channel.DedupeWindow != DefaultDedupeWindow {
		t.Errorf("Channel.DedupeWindow = %v, want %v", cfg.Channel.DedupeWindow, DefaultDedupeWindow)
	}
	if cfg.History.PageSize != DefaultPageSize {
		t.Errorf("History.PageSize = %d, want %d", cfg.History.PageSize, DefaultPageSize)
	}
	if cfg.Journal.Path != filepath.Join("/data", "coven-chat", "journal.db") {
		t.Errorf("Journal.Path = %q", cfg.Journal.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.History.PageSize != DefaultPageSize {
		t.Errorf("expected defaults, got %+v", cfg.History)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid yaml", "server: [unclosed", "parsing config file"},
		{"bad duration", "channel:\n  reconnect_min: \"soon\"\n", "reconnect_min"},
		{"negative duration", "channel:\n  handshake_timeout: \"-1s\"\n", "handshake_timeout"},
		{"bad scheme", "server:\n  api_url: \"ftp://chat/api\"\n", "server.api_url"},
		{"missing host", "server:\n  socket_url: \"http:///chat\"\n", "server.socket_url"},
		{"min above max", "channel:\n  reconnect_min: \"1m\"\n  reconnect_max: \"1s\"\n", "exceeds"},
		{"negative page size", "history:\n  page_size: -1\n", "page_size"},
		{"bad level", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad format", "logging:\n  format: \"xml\"\n", "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestPath_Priority(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/chatsync.yaml")
	if got := Path(); got != "/etc/chatsync.yaml" {
		t.Errorf("Path() = %q, want env override", got)
	}

	t.Setenv(EnvConfig, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := Path(); got != filepath.Join("/xdg", "coven-chat", "config.yaml") {
		t.Errorf("Path() = %q", got)
	}
}
