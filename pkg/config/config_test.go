package config

import "testing"

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CODETRACER_DAEMON_SOCK", "/tmp/custom.sock")
	t.Setenv("CODETRACER_DB_BACKEND_CMD", "/usr/local/bin/ct-db-backend")
	t.Setenv("CODETRACER_PYTHON_API_PATH", "/opt/codetracer/python-api")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/tmp/custom.sock" {
		t.Errorf("SocketPath = %q, want override from CODETRACER_DAEMON_SOCK", cfg.SocketPath)
	}
	if cfg.BackendPath != "/usr/local/bin/ct-db-backend" {
		t.Errorf("BackendPath = %q, want override from CODETRACER_DB_BACKEND_CMD", cfg.BackendPath)
	}
	if cfg.PythonAPIPath != "/opt/codetracer/python-api" {
		t.Errorf("PythonAPIPath = %q, want override from CODETRACER_PYTHON_API_PATH", cfg.PythonAPIPath)
	}
}

func TestLoad_DefaultsWithoutEnv(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.BackendPath != want.BackendPath {
		t.Errorf("BackendPath = %q, want default %q", cfg.BackendPath, want.BackendPath)
	}
}
