// Package config loads the daemon's daemon.yaml manifest through yaml.v3
// struct tags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Daemon is the single configuration surface for backend-manager daemon
// mode: socket location, session limits, and subprocess behavior.
type Daemon struct {
	SocketPath       string            `yaml:"socketPath,omitempty"       json:"socketPath,omitempty"`
	PidFile          string            `yaml:"pidFile,omitempty"          json:"pidFile,omitempty"`
	IdleTimeout      Duration          `yaml:"idleTimeout,omitempty"      json:"idleTimeout,omitempty"`
	MaxSessions      int               `yaml:"maxSessions,omitempty"      json:"maxSessions,omitempty"`
	BackendPath      string            `yaml:"backendPath,omitempty"      json:"backendPath,omitempty"`
	LaunchTimeout    Duration          `yaml:"launchTimeout,omitempty"    json:"launchTimeout,omitempty"`
	ScriptTimeout    Duration          `yaml:"scriptTimeout,omitempty"    json:"scriptTimeout,omitempty"`
	Interpreters     map[string]string `yaml:"interpreters,omitempty"     json:"interpreters,omitempty"`
	PythonAPIPath    string            `yaml:"pythonApiPath,omitempty"    json:"pythonApiPath,omitempty"`
	ScriptSessionTTL Duration          `yaml:"scriptSessionTtl,omitempty" json:"scriptSessionTtl,omitempty"`
}

// Default returns the built-in defaults before any file or environment
// overrides are applied.
func Default() Daemon {
	return Daemon{
		SocketPath:       defaultSocketPath(),
		PidFile:          defaultPidFile(),
		IdleTimeout:      Duration{Minutes: 5},
		MaxSessions:      16,
		BackendPath:      "ct-db-backend",
		LaunchTimeout:    Duration{Seconds: 10},
		ScriptTimeout:    Duration{Seconds: 120},
		Interpreters:     map[string]string{"python": "python3"},
		PythonAPIPath:    defaultPythonAPIPath(),
		ScriptSessionTTL: Duration{Minutes: 5},
	}
}

// Duration is a yaml-friendly duration: exactly one of its fields is
// expected to be set in the manifest (e.g. `idleTimeout: {minutes: 30}`).
type Duration struct {
	Seconds int `yaml:"seconds,omitempty" json:"seconds,omitempty"`
	Minutes int `yaml:"minutes,omitempty" json:"minutes,omitempty"`
}

// AsSeconds flattens the duration to a second count.
func (d Duration) AsSeconds() int { return d.Seconds + d.Minutes*60 }

// Load reads path (if non-empty and present) over the defaults, then
// applies CODETRACER_DAEMON_SOCK / CODETRACER_DB_BACKEND_CMD environment
// overrides. A missing path is not an error: the defaults (plus
// environment) are returned as-is.
func Load(path string) (Daemon, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Daemon) {
	if v := os.Getenv("CODETRACER_DAEMON_SOCK"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("CODETRACER_DB_BACKEND_CMD"); v != "" {
		cfg.BackendPath = v
	}
	if v := os.Getenv("CODETRACER_PYTHON_API_PATH"); v != "" {
		cfg.PythonAPIPath = v
	}
}

func defaultSocketPath() string {
	dir := os.TempDir()
	return filepath.Join(dir, "ct_daemon.sock")
}

func defaultPidFile() string {
	dir := os.TempDir()
	return filepath.Join(dir, "ct_daemon.pid")
}

// defaultPythonAPIPath is the relative path python/codetracer_api, so it
// resolves against the daemon process's working directory. It applies
// when neither a config file nor CODETRACER_PYTHON_API_PATH names one
// explicitly.
func defaultPythonAPIPath() string {
	return filepath.Join("python", "codetracer_api")
}
