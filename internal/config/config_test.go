package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := New()
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Policy.ParallelLimit != 3 {
		t.Errorf("parallel limit = %d, want 3", cfg.Policy.ParallelLimit)
	}
	if cfg.MaxWallClock() != 30*time.Minute {
		t.Errorf("max wall clock = %s, want 30m", cfg.MaxWallClock())
	}
	if cfg.Autonomy.MaxCycles != 5 {
		t.Errorf("autonomy max cycles = %d, want 5", cfg.Autonomy.MaxCycles)
	}
	if cfg.Journal.SubjectBase != "sentinel.events" {
		t.Errorf("subject base = %q", cfg.Journal.SubjectBase)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.toml")
	content := `
[logging]
level = "debug"

[policy]
allowed_permissions = ["read", "analyze"]
max_wall_clock = "5m"
max_cycles = 12

[execution]
mode = "with_checkins"
checkin_interval = "10s"
auto_approve = true

[autonomy]
max_cycles = 2
deadline = "1h"

[journal]
nats_url = "nats://localhost:4222"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Policy.AllowedPermissions) != 2 {
		t.Errorf("allowed permissions = %v", cfg.Policy.AllowedPermissions)
	}
	if cfg.MaxWallClock() != 5*time.Minute {
		t.Errorf("max wall clock = %s, want 5m", cfg.MaxWallClock())
	}
	if cfg.Policy.MaxCycles != 12 {
		t.Errorf("policy max cycles = %d, want 12", cfg.Policy.MaxCycles)
	}
	if cfg.Execution.Mode != "with_checkins" || !cfg.Execution.AutoApprove {
		t.Errorf("execution = %+v", cfg.Execution)
	}
	if cfg.CheckinInterval() != 10*time.Second {
		t.Errorf("checkin interval = %s, want 10s", cfg.CheckinInterval())
	}
	if cfg.AutonomyDeadline() != time.Hour {
		t.Errorf("deadline = %s, want 1h", cfg.AutonomyDeadline())
	}
	if cfg.Journal.NATSURL != "nats://localhost:4222" {
		t.Errorf("nats url = %q", cfg.Journal.NATSURL)
	}
	// Untouched sections keep defaults.
	if cfg.Governance.MaxGoals != 25 {
		t.Errorf("governance max goals = %d, want 25", cfg.Governance.MaxGoals)
	}
}

func TestDirectoryResolution(t *testing.T) {
	cfg := New()
	cfg.Storage.Path = "/var/lib/sentinel"
	if got := cfg.ProjectsDir(); got != "/var/lib/sentinel/projects" {
		t.Errorf("projects dir = %q", got)
	}
	if got := cfg.JournalDir(); got != "/var/lib/sentinel/runs" {
		t.Errorf("journal dir = %q", got)
	}
	cfg.Journal.Dir = "/tmp/runs"
	if got := cfg.JournalDir(); got != "/tmp/runs" {
		t.Errorf("explicit journal dir = %q", got)
	}
}

func TestBadDurationFallsBackToZero(t *testing.T) {
	cfg := New()
	cfg.Autonomy.Deadline = "not-a-duration"
	if cfg.AutonomyDeadline() != 0 {
		t.Errorf("deadline = %s, want 0", cfg.AutonomyDeadline())
	}
}
