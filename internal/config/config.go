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

// Package config loads wfdebug settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/wfdebug/internal/jobrequest"
	"github.com/tombee/wfdebug/internal/log"
	"github.com/tombee/wfdebug/internal/runnerconn"
	"github.com/tombee/wfdebug/internal/tracing"
	wferrors "github.com/tombee/wfdebug/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all wfdebug settings.
type Config struct {
	Runner  RunnerConfig  `yaml:"runner"`
	Server  ServerConfig  `yaml:"server"`
	GitHub  GitHubConfig  `yaml:"github"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// RunnerConfig locates the runner's debug listener.
type RunnerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	// RequestTimeout bounds each runner request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ConnectTimeout bounds the handshake after connecting.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Addr returns the runner address as host:port.
func (r RunnerConfig) Addr() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

// ServerConfig controls how editor connections are accepted.
type ServerConfig struct {
	// Listen is a TCP address for editor connections. Empty serves a
	// single session on stdio.
	Listen string `yaml:"listen"`

	// MaxSessions limits concurrent editor sessions. Zero means no limit.
	MaxSessions int `yaml:"max_sessions"`

	// Watch reloads workflow files when they change on disk.
	Watch bool `yaml:"watch"`
}

// GitHubConfig is sent as the github context of every job.
type GitHubConfig struct {
	Ref        string `yaml:"ref"`
	Repository string `yaml:"repository"`
	Event      string `yaml:"event"`
}

// Context converts the settings to the job message form.
func (g GitHubConfig) Context() jobrequest.GitHubContext {
	return jobrequest.GitHubContext{Ref: g.Ref, Repository: g.Repository, Event: g.Event}
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr serves /metrics when set.
	Addr string `yaml:"addr"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"`
	Endpoint   string  `yaml:"endpoint"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	gh := jobrequest.DefaultGitHubContext()
	return &Config{
		Runner: RunnerConfig{
			Address:        "127.0.0.1",
			Port:           41085,
			RequestTimeout: runnerconn.DefaultRequestTimeout,
			ConnectTimeout: runnerconn.DefaultConnectTimeout,
		},
		GitHub: GitHubConfig{Ref: gh.Ref, Repository: gh.Repository, Event: gh.Event},
		Log: LogConfig{
			Level:  "info",
			Format: string(log.FormatJSON),
		},
		Tracing: TracingConfig{
			Exporter:   tracing.ExporterStdout,
			SampleRate: 1,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at configPath
// and the environment, in increasing precedence. An empty configPath uses
// the default config file when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	path, explicit := configPath, configPath != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		err := cfg.loadFromFile(path)
		switch {
		case err == nil:
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, &wferrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Runner.Address == "" {
		c.Runner.Address = def.Runner.Address
	}
	if c.Runner.Port == 0 {
		c.Runner.Port = def.Runner.Port
	}
	if c.Runner.RequestTimeout == 0 {
		c.Runner.RequestTimeout = def.Runner.RequestTimeout
	}
	if c.Runner.ConnectTimeout == 0 {
		c.Runner.ConnectTimeout = def.Runner.ConnectTimeout
	}
	if c.GitHub.Ref == "" {
		c.GitHub.Ref = def.GitHub.Ref
	}
	if c.GitHub.Repository == "" {
		c.GitHub.Repository = def.GitHub.Repository
	}
	if c.GitHub.Event == "" {
		c.GitHub.Event = def.GitHub.Event
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies environment overrides. Malformed numeric values are
// reported rather than ignored.
func (c *Config) loadFromEnv() error {
	if val := os.Getenv("WFDEBUG_RUNNER_ADDRESS"); val != "" {
		c.Runner.Address = val
	}
	if val := os.Getenv("WFDEBUG_RUNNER_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return &wferrors.ConfigError{Key: "WFDEBUG_RUNNER_PORT", Reason: "not a number", Cause: err}
		}
		c.Runner.Port = port
	}
	if val := os.Getenv("WFDEBUG_REQUEST_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return &wferrors.ConfigError{Key: "WFDEBUG_REQUEST_TIMEOUT", Reason: "not a duration", Cause: err}
		}
		c.Runner.RequestTimeout = d
	}
	if val := os.Getenv("WFDEBUG_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
	if val := os.Getenv("WFDEBUG_TRACING_EXPORTER"); val != "" {
		c.Tracing.Enabled = true
		c.Tracing.Exporter = val
	}

	debug := os.Getenv("WFDEBUG_DEBUG")
	if debug == "true" || debug == "1" {
		c.Log.Level = "debug"
		c.Log.AddSource = true
	} else if val := os.Getenv("WFDEBUG_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
	return nil
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Runner.Address == "" {
		return &wferrors.ConfigError{Key: "runner.address", Reason: "must not be empty"}
	}
	if c.Runner.Port <= 0 || c.Runner.Port > 65535 {
		return &wferrors.ConfigError{Key: "runner.port", Reason: fmt.Sprintf("port %d is out of range", c.Runner.Port)}
	}
	if c.Runner.RequestTimeout <= 0 {
		return &wferrors.ConfigError{Key: "runner.request_timeout", Reason: "must be positive"}
	}
	if c.Runner.ConnectTimeout <= 0 {
		return &wferrors.ConfigError{Key: "runner.connect_timeout", Reason: "must be positive"}
	}
	if c.Server.MaxSessions < 0 {
		return &wferrors.ConfigError{Key: "server.max_sessions", Reason: "must not be negative"}
	}
	if c.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
			return &wferrors.ConfigError{Key: "server.listen", Reason: "not a host:port address", Cause: err}
		}
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return &wferrors.ConfigError{Key: "metrics.addr", Reason: "not a host:port address", Cause: err}
		}
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return &wferrors.ConfigError{Key: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch log.Format(c.Log.Format) {
	case log.FormatJSON, log.FormatText:
	default:
		return &wferrors.ConfigError{Key: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	if err := c.TracingConfig("").Validate(); err != nil {
		return &wferrors.ConfigError{Key: "tracing", Reason: err.Error()}
	}
	return nil
}

// TracingConfig returns the settings for tracing.Setup.
func (c *Config) TracingConfig(version string) tracing.Config {
	return tracing.Config{
		Enabled:        c.Tracing.Enabled,
		Exporter:       c.Tracing.Exporter,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
		ServiceName:    "wfdebug",
		ServiceVersion: version,
	}
}

// LoggerConfig returns the logging settings for log.New.
func (c *Config) LoggerConfig() *log.Config {
	return &log.Config{
		Level:     c.Log.Level,
		Format:    log.Format(c.Log.Format),
		Output:    os.Stderr,
		AddSource: c.Log.AddSource,
	}
}
