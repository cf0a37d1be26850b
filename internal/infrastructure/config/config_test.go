package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
client:
  hosts: ["10.0.0.5", "broker.lan"]
  port: 9000
  retries: 5
  retry_interval: 2s
  encoding: windows-1252
  framing: line
liveness:
  interval: 500ms
server:
  port: 9001
database:
  enabled: true
  path: "/tmp/tcplink-test.db"
mqtt:
  broker:
    host: "mqtt.lan"
  qos: 0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Client.Hosts) != 2 || cfg.Client.Hosts[1] != "broker.lan" {
		t.Errorf("Client.Hosts = %v", cfg.Client.Hosts)
	}
	if cfg.Client.Port != 9000 || cfg.Client.Retries != 5 {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if cfg.Client.RetryInterval != 2*time.Second {
		t.Errorf("Client.RetryInterval = %v, want 2s", cfg.Client.RetryInterval)
	}
	if cfg.Liveness.Interval != 500*time.Millisecond {
		t.Errorf("Liveness.Interval = %v, want 500ms", cfg.Liveness.Interval)
	}
	if cfg.Client.Framing != "line" || cfg.Client.Encoding != "windows-1252" {
		t.Errorf("Client framing/encoding = %q/%q", cfg.Client.Framing, cfg.Client.Encoding)
	}
	if cfg.MQTT.Broker.Host != "mqtt.lan" || cfg.MQTT.QoS != 0 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}

	// Unset values keep their defaults.
	if cfg.Client.KeepAlive != 15*time.Second {
		t.Errorf("Client.KeepAlive = %v, want default 15s", cfg.Client.KeepAlive)
	}
	if cfg.ServerAddress() != "0.0.0.0:9001" {
		t.Errorf("ServerAddress() = %q", cfg.ServerAddress())
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Client.Retries != 3 || cfg.Client.RetryInterval != 5*time.Second {
		t.Errorf("defaults = %+v", cfg.Client)
	}
	if cfg.Liveness.Interval != time.Second {
		t.Errorf("Liveness.Interval = %v", cfg.Liveness.Interval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationCollectsAllErrors(t *testing.T) {
	path := writeConfig(t, `
client:
  hosts: []
  port: 0
  framing: length
server:
  enabled: true
  port: 0
mqtt:
  qos: 3
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"client.hosts", "client.port", "client.framing", "server.port", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TCPLINK_CLIENT_HOSTS", "10.0.0.1, 10.0.0.2")
	t.Setenv("TCPLINK_CLIENT_PORT", "7000")
	t.Setenv("TCPLINK_CLIENT_RETRY_INTERVAL", "250ms")
	t.Setenv("TCPLINK_CLIENT_AUTO_RECONNECT", "false")
	t.Setenv("TCPLINK_MQTT_PASSWORD", "secret")
	t.Setenv("TCPLINK_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Client.Hosts) != 2 || cfg.Client.Hosts[0] != "10.0.0.1" || cfg.Client.Hosts[1] != "10.0.0.2" {
		t.Errorf("Client.Hosts = %v", cfg.Client.Hosts)
	}
	if cfg.Client.Port != 7000 {
		t.Errorf("Client.Port = %d", cfg.Client.Port)
	}
	if cfg.Client.RetryInterval != 250*time.Millisecond {
		t.Errorf("Client.RetryInterval = %v", cfg.Client.RetryInterval)
	}
	if cfg.Client.AutoReconnect {
		t.Error("Client.AutoReconnect = true, want false")
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Error("MQTT password not overridden")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestEnvOverrides_BadValues(t *testing.T) {
	t.Setenv("TCPLINK_CLIENT_PORT", "eighty")
	t.Setenv("TCPLINK_LIVENESS_INTERVAL", "soon")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected error for bad overrides")
	}
	if !strings.Contains(err.Error(), "TCPLINK_CLIENT_PORT") || !strings.Contains(err.Error(), "TCPLINK_LIVENESS_INTERVAL") {
		t.Errorf("error = %v", err)
	}
}

func TestValidate_API(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled ignores fields", func(c *Config) { c.API.Port = 0 }, ""},
		{"enabled defaults", func(c *Config) { c.API.Enabled = true }, ""},
		{"bad port", func(c *Config) { c.API.Enabled = true; c.API.Port = 70000 }, "api.port"},
		{"bad metrics path", func(c *Config) { c.API.Enabled = true; c.API.MetricsPath = "metrics" }, "api.metrics_path"},
		{"short secret", func(c *Config) { c.API.Enabled = true; c.API.Auth.JWTSecret = "short" }, "api.auth.jwt_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}

	if got := Default().APIAddress(); got != "127.0.0.1:9108" {
		t.Errorf("APIAddress() = %q", got)
	}
}
