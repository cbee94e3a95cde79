// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	wferrors "github.com/tombee/wfdebug/pkg/errors"
)

// isolateEnv points the default config file at an empty directory and
// clears every variable Load reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{
		"WFDEBUG_RUNNER_ADDRESS", "WFDEBUG_RUNNER_PORT", "WFDEBUG_REQUEST_TIMEOUT",
		"WFDEBUG_METRICS_ADDR", "WFDEBUG_DEBUG", "WFDEBUG_LOG_LEVEL",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE", "WFDEBUG_TRACING_EXPORTER",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Runner.Address != "127.0.0.1" {
		t.Errorf("expected runner address 127.0.0.1, got %q", cfg.Runner.Address)
	}
	if cfg.Runner.Port != 41085 {
		t.Errorf("expected runner port 41085, got %d", cfg.Runner.Port)
	}
	if cfg.Runner.RequestTimeout != 2*time.Second {
		t.Errorf("expected request timeout 2s, got %v", cfg.Runner.RequestTimeout)
	}
	if cfg.Runner.ConnectTimeout != 10*time.Second {
		t.Errorf("expected connect timeout 10s, got %v", cfg.Runner.ConnectTimeout)
	}
	if cfg.GitHub.Ref != "refs/heads/main" {
		t.Errorf("expected github ref refs/heads/main, got %q", cfg.GitHub.Ref)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("expected info/json logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantKey string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "empty address", modify: func(c *Config) { c.Runner.Address = "" }, wantKey: "runner.address"},
		{name: "port too low", modify: func(c *Config) { c.Runner.Port = 0 }, wantKey: "runner.port"},
		{name: "port too high", modify: func(c *Config) { c.Runner.Port = 65536 }, wantKey: "runner.port"},
		{name: "zero request timeout", modify: func(c *Config) { c.Runner.RequestTimeout = 0 }, wantKey: "runner.request_timeout"},
		{name: "zero connect timeout", modify: func(c *Config) { c.Runner.ConnectTimeout = 0 }, wantKey: "runner.connect_timeout"},
		{name: "negative sessions", modify: func(c *Config) { c.Server.MaxSessions = -1 }, wantKey: "server.max_sessions"},
		{name: "bad listen", modify: func(c *Config) { c.Server.Listen = "4711" }, wantKey: "server.listen"},
		{name: "good listen", modify: func(c *Config) { c.Server.Listen = "127.0.0.1:4711" }},
		{name: "bad metrics addr", modify: func(c *Config) { c.Metrics.Addr = "metrics" }, wantKey: "metrics.addr"},
		{name: "good metrics addr", modify: func(c *Config) { c.Metrics.Addr = ":9090" }},
		{name: "unknown level", modify: func(c *Config) { c.Log.Level = "loud" }, wantKey: "log.level"},
		{name: "trace level", modify: func(c *Config) { c.Log.Level = "trace" }},
		{name: "unknown format", modify: func(c *Config) { c.Log.Format = "xml" }, wantKey: "log.format"},
		{name: "unknown exporter ignored while disabled", modify: func(c *Config) { c.Tracing.Exporter = "zipkin" }},
		{name: "unknown exporter", modify: func(c *Config) { c.Tracing.Enabled, c.Tracing.Exporter = true, "zipkin" }, wantKey: "tracing"},
		{name: "bad sample rate", modify: func(c *Config) { c.Tracing.Enabled, c.Tracing.SampleRate = true, 2 }, wantKey: "tracing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var cfgErr *wferrors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("expected key %q, got %q", tt.wantKey, cfgErr.Key)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, t.TempDir(), `
runner:
  address: 10.0.0.5
  port: 5000
  request_timeout: 500ms
server:
  listen: 127.0.0.1:4711
  max_sessions: 2
  watch: true
github:
  repository: acme/site
metrics:
  addr: ":9090"
tracing:
  enabled: true
  exporter: otlp-grpc
  endpoint: collector:4317
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runner.Addr() != "10.0.0.5:5000" {
		t.Errorf("expected runner 10.0.0.5:5000, got %s", cfg.Runner.Addr())
	}
	if cfg.Runner.RequestTimeout != 500*time.Millisecond {
		t.Errorf("expected request timeout 500ms, got %v", cfg.Runner.RequestTimeout)
	}
	if cfg.Runner.ConnectTimeout != 10*time.Second {
		t.Errorf("expected default connect timeout, got %v", cfg.Runner.ConnectTimeout)
	}
	if !cfg.Server.Watch || cfg.Server.MaxSessions != 2 {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	gh := cfg.GitHub.Context()
	if gh.Repository != "acme/site" || gh.Ref != "refs/heads/main" {
		t.Errorf("unexpected github context %+v", gh)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("expected metrics addr :9090, got %q", cfg.Metrics.Addr)
	}
	tc := cfg.TracingConfig("1.0.0")
	if !tc.Enabled || tc.Exporter != "otlp-grpc" || tc.Endpoint != "collector:4317" {
		t.Errorf("unexpected tracing config %+v", tc)
	}
	if tc.SampleRate != 1 || tc.ServiceName != "wfdebug" || tc.ServiceVersion != "1.0.0" {
		t.Errorf("expected defaults to fill the tracing config, got %+v", tc)
	}
}

func TestLoad_DefaultPath(t *testing.T) {
	isolateEnv(t)
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(dir, "wfdebug") {
		t.Errorf("expected config dir to end in wfdebug, got %s", dir)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without a file failed: %v", err)
	}
	if cfg.Runner.Port != 41085 {
		t.Errorf("expected default port, got %d", cfg.Runner.Port)
	}

	writeConfig(t, dir, "runner:\n  port: 6000\n")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runner.Port != 6000 {
		t.Errorf("expected port from default file, got %d", cfg.Runner.Port)
	}
}

func TestLoad_Errors(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		env     map[string]string
		wantKey string
	}{
		{name: "missing explicit file", path: filepath.Join(dir, "nope.yaml"), wantKey: "config_file"},
		{name: "invalid yaml", path: writeConfig(t, filepath.Join(dir, "bad"), "runner: [\n"), wantKey: "config_file"},
		{name: "invalid value", path: writeConfig(t, filepath.Join(dir, "port"), "runner:\n  port: 99999\n"), wantKey: "runner.port"},
		{name: "bad env port", env: map[string]string{"WFDEBUG_RUNNER_PORT": "abc"}, wantKey: "WFDEBUG_RUNNER_PORT"},
		{name: "bad env timeout", env: map[string]string{"WFDEBUG_REQUEST_TIMEOUT": "soon"}, wantKey: "WFDEBUG_REQUEST_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.path)
			var cfgErr *wferrors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("expected key %q, got %q", tt.wantKey, cfgErr.Key)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, t.TempDir(), "runner:\n  address: 10.0.0.5\n  port: 5000\n")

	t.Setenv("WFDEBUG_RUNNER_ADDRESS", "192.168.1.2")
	t.Setenv("WFDEBUG_RUNNER_PORT", "7000")
	t.Setenv("WFDEBUG_REQUEST_TIMEOUT", "3s")
	t.Setenv("WFDEBUG_METRICS_ADDR", "127.0.0.1:9100")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("WFDEBUG_TRACING_EXPORTER", "stdout")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runner.Addr() != "192.168.1.2:7000" {
		t.Errorf("expected env runner address, got %s", cfg.Runner.Addr())
	}
	if cfg.Runner.RequestTimeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", cfg.Runner.RequestTimeout)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9100" {
		t.Errorf("expected env metrics addr, got %q", cfg.Metrics.Addr)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "text" {
		t.Errorf("expected warn/text logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != "stdout" {
		t.Errorf("expected env to enable stdout tracing, got %+v", cfg.Tracing)
	}

	t.Setenv("WFDEBUG_DEBUG", "1")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.AddSource {
		t.Errorf("expected WFDEBUG_DEBUG to force debug logging, got %+v", cfg.Log)
	}
	lc := cfg.LoggerConfig()
	if lc.Level != "debug" || string(lc.Format) != "text" {
		t.Errorf("unexpected logger config %+v", lc)
	}
}
