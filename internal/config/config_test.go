package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Session.HeartbeatInterval != 5*time.Second {
		t.Errorf("heartbeat interval = %v, want 5s", cfg.Session.HeartbeatInterval)
	}
	if cfg.Session.ClientTimeout != 10*time.Second {
		t.Errorf("client timeout = %v, want 10s", cfg.Session.ClientTimeout)
	}
	if cfg.Synthesis.Command != "espeak" || cfg.Concat.Command != "ffmpeg" {
		t.Errorf("unexpected tool commands: %q / %q", cfg.Synthesis.Command, cfg.Concat.Command)
	}
	if cfg.Synthesis.Parallelism != 1 {
		t.Errorf("parallelism = %d, want 1", cfg.Synthesis.Parallelism)
	}
	if !cfg.Jobs.CancelOnDisconnect {
		t.Error("expected cancel_on_disconnect to default to true")
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("backend = %q, want local", cfg.Storage.Backend)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SYNTH_COMMAND", "espeak-ng -v es")
	t.Setenv("SYNTH_PARALLELISM", "3")
	t.Setenv("JOB_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Synthesis.Command != "espeak-ng -v es" {
		t.Errorf("command = %q", cfg.Synthesis.Command)
	}
	if cfg.Synthesis.Parallelism != 3 {
		t.Errorf("parallelism = %d, want 3", cfg.Synthesis.Parallelism)
	}
	if cfg.Jobs.Timeout != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", cfg.Jobs.Timeout)
	}
}

func TestLoad_SecretFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	secretPath := filepath.Join(dir, "jwt_secret")
	if err := os.WriteFile(secretPath, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_SECRET_FILE", secretPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWT.Secret != "from-file" {
		t.Errorf("secret = %q, want from-file", cfg.JWT.Secret)
	}
}
