package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// starterConfig is written by `sentinel config init`. Values match the
// compiled-in defaults so the file can be trimmed to just the overrides.
const starterConfig = `[agent]
id = ""
workspace = "."

[logging]
level = "info"

[storage]
path = "~/.local/sentinel"
persist_memory = true

[policy]
allowed_permissions = ["read", "analyze", "search", "generate"]
parallel_limit = 3
max_wall_clock = "30m"
max_cycles = 50
max_consecutive_failures = 5

[governance]
max_goals = 25
max_dependency_depth = 10
max_refinement_rounds = 5
max_project_age = "720h"

[planner]
memory_context_limit = 6

[simulation]
# profiles_path = "profiles.yaml"
watch_profiles = false

[execution]
mode = "until_complete"
checkin_interval = "30s"
auto_approve = false

[autonomy]
max_cycles = 5
max_failed_cycles = 3
# deadline = "10m"

[journal]
# nats_url = "nats://localhost:4222"
subject_base = "sentinel.events"

[telemetry]
enabled = false
service_name = "sentinel"
`

// Run writes a starter config file.
func (c *ConfigInitCmd) Run(g *Globals) error {
	if !c.Force {
		if _, err := os.Stat(c.Path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", c.Path)
		}
	}
	if err := os.WriteFile(c.Path, []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("wrote %s\n", c.Path)
	return nil
}

// Run prints the effective configuration as TOML.
func (c *ConfigShowCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return err
	}
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}
