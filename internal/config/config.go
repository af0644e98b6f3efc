// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full orchestrator configuration.
type Config struct {
	Agent      AgentConfig      `toml:"agent"`
	Logging    LoggingConfig    `toml:"logging"`
	Storage    StorageConfig    `toml:"storage"`
	Policy     PolicyConfig     `toml:"policy"`
	Governance GovernanceConfig `toml:"governance"`
	Planner    PlannerConfig    `toml:"planner"`
	Simulation SimulationConfig `toml:"simulation"`
	Execution  ExecutionConfig  `toml:"execution"`
	Autonomy   AutonomyConfig   `toml:"autonomy"`
	Journal    JournalConfig    `toml:"journal"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

// AgentConfig identifies the agent instance.
type AgentConfig struct {
	ID        string `toml:"id"`
	Workspace string `toml:"workspace"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `toml:"level"` // debug|info|warn|error
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	Path          string `toml:"path"`           // Base directory for all persistent data
	PersistMemory bool   `toml:"persist_memory"` // true = bbolt facts + bleve index, false = in-memory only
	ProjectsDir   string `toml:"projects_dir"`   // Project JSON records (default <path>/projects)
}

// PolicyConfig sets safety preferences and runtime ceilings.
type PolicyConfig struct {
	AllowedPermissions     []string `toml:"allowed_permissions"`
	DeterministicFirst     *bool    `toml:"deterministic_first"`
	ParallelLimit          int      `toml:"parallel_limit"`
	MaxWallClock           string   `toml:"max_wall_clock"` // duration, e.g. "30m"
	MaxCycles              int      `toml:"max_cycles"`
	MaxConsecutiveFailures int      `toml:"max_consecutive_failures"`
}

// GovernanceConfig sets long-horizon project ceilings.
type GovernanceConfig struct {
	MaxGoals            int    `toml:"max_goals"`
	MaxDependencyDepth  int    `toml:"max_dependency_depth"`
	MaxRefinementRounds int    `toml:"max_refinement_rounds"`
	MaxProjectAge       string `toml:"max_project_age"` // duration, e.g. "720h"
}

// PlannerConfig tunes plan construction.
type PlannerConfig struct {
	MemoryContextLimit int `toml:"memory_context_limit"` // recalled memories per plan (default 6)
}

// SimulationConfig locates semantic tool profiles.
type SimulationConfig struct {
	ProfilesPath string `toml:"profiles_path"` // YAML profile file; empty = builtin defaults
	WatchProfile bool   `toml:"watch_profiles"`
}

// ExecutionConfig sets run-mode defaults.
type ExecutionConfig struct {
	Mode            string `toml:"mode"`             // until_complete|for_time|until_node|for_cycles|until_condition|with_checkins
	CheckinInterval string `toml:"checkin_interval"` // duration for with_checkins
	AutoApprove     bool   `toml:"auto_approve"`     // skip the interactive approval prompt
}

// AutonomyConfig bounds the autonomy loop.
type AutonomyConfig struct {
	MaxCycles       int    `toml:"max_cycles"`
	MaxFailedCycles int    `toml:"max_failed_cycles"`
	Deadline        string `toml:"deadline"` // duration, empty = unbounded
}

// JournalConfig controls run journaling and event publishing.
type JournalConfig struct {
	Dir         string `toml:"dir"`          // JSONL run files (default <storage>/runs)
	NATSURL     string `toml:"nats_url"`     // empty = no publisher
	SubjectBase string `toml:"subject_base"` // default "sentinel.events"
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	Debug       bool   `toml:"debug"`
}

// New creates a config with defaults.
func New() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{
			Path:          "~/.local/sentinel",
			PersistMemory: true,
		},
		Policy: PolicyConfig{
			ParallelLimit: 3,
			MaxWallClock:  "30m",
		},
		Governance: GovernanceConfig{
			MaxGoals:            25,
			MaxDependencyDepth:  10,
			MaxRefinementRounds: 5,
			MaxProjectAge:       "720h",
		},
		Planner: PlannerConfig{MemoryContextLimit: 6},
		Execution: ExecutionConfig{
			Mode:            "until_complete",
			CheckinInterval: "30s",
		},
		Autonomy: AutonomyConfig{
			MaxCycles:       5,
			MaxFailedCycles: 3,
		},
		Journal: JournalConfig{SubjectBase: "sentinel.events"},
		Telemetry: TelemetryConfig{
			ServiceName: "sentinel",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads sentinel.toml from the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadFile(filepath.Join(cwd, "sentinel.toml"))
}

// StoragePath expands a leading ~ in the storage path.
func (c *Config) StoragePath() string {
	return expandHome(c.Storage.Path)
}

// ProjectsDir resolves the project storage directory.
func (c *Config) ProjectsDir() string {
	if c.Storage.ProjectsDir != "" {
		return expandHome(c.Storage.ProjectsDir)
	}
	return filepath.Join(c.StoragePath(), "projects")
}

// JournalDir resolves the run journal directory.
func (c *Config) JournalDir() string {
	if c.Journal.Dir != "" {
		return expandHome(c.Journal.Dir)
	}
	return filepath.Join(c.StoragePath(), "runs")
}

// MaxWallClock parses the policy wall-clock ceiling. Zero when unset or
// unparseable.
func (c *Config) MaxWallClock() time.Duration {
	return parseDuration(c.Policy.MaxWallClock)
}

// MaxProjectAge parses the governance project-age ceiling.
func (c *Config) MaxProjectAge() time.Duration {
	return parseDuration(c.Governance.MaxProjectAge)
}

// CheckinInterval parses the execution check-in interval.
func (c *Config) CheckinInterval() time.Duration {
	return parseDuration(c.Execution.CheckinInterval)
}

// AutonomyDeadline parses the loop deadline. Zero means unbounded.
func (c *Config) AutonomyDeadline() time.Duration {
	return parseDuration(c.Autonomy.Deadline)
}

func parseDuration(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
