// Package main defines the CLI structure using kong.
package main

// Globals are flags shared by every command.
type Globals struct {
	Config      string `help:"Config file path (default: ./sentinel.toml when present)"`
	LogLevel    string `help:"Log level: debug|info|warn|error" default:""`
	Journal     string `help:"Run journal directory (overrides config)"`
	AutoApprove bool   `help:"Skip the interactive approval prompt"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Run      RunCmd      `cmd:"" help:"Run the autonomy loop over a goal"`
	Plan     PlanCmd     `cmd:"" help:"Build and print a plan without executing it"`
	Simulate SimulateCmd `cmd:"" help:"Dry-run a goal's plan in the simulation sandbox"`
	Validate ValidateCmd `cmd:"" help:"Validate a plan file structurally"`
	Replay   ReplayCmd   `cmd:"" help:"Replay a recorded run journal"`
	Project  ProjectCmd  `cmd:"" help:"Manage long-horizon projects"`
	Memory   MemoryCmd   `cmd:"" help:"Inspect the memory store"`
	Config   ConfigCmd   `cmd:"" help:"Manage configuration"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd executes the autonomy loop.
type RunCmd struct {
	Goal            string `arg:"" optional:"" help:"Goal to pursue (omit with --resume)"`
	Resume          string `help:"Resume an interrupted run by ID from its last checkpoint"`
	Mode            string `help:"Execution mode: until_complete|for_time|until_node|for_cycles|until_condition|with_checkins"`
	MaxCycles       int    `help:"Maximum autonomy cycles (overrides config)"`
	MaxFailedCycles int    `help:"Maximum consecutive failed cycles (overrides config)"`
	Deadline        string `help:"Overall deadline, e.g. 10m (overrides config)"`
	Duration        string `help:"Execution budget for for_time mode, e.g. 30s"`
	TargetNode      string `help:"Stop node for until_node mode"`
	Cycles          int    `help:"Node budget for for_cycles mode"`
	CheckinInterval string `help:"Check-in interval for with_checkins mode"`
}

// PlanCmd prints a plan.
type PlanCmd struct {
	Goal string `arg:"" help:"Goal to plan for"`
}

// SimulateCmd dry-runs a plan.
type SimulateCmd struct {
	Goal string `arg:"" help:"Goal to simulate"`
}

// ValidateCmd structurally validates a plan file.
type ValidateCmd struct {
	File   string   `arg:"" help:"JSON plan file (array of task nodes)"`
	Inputs []string `name:"input" short:"i" help:"Artifact supplied from outside the plan (repeatable)"`
}

// ProjectCmd groups project governance subcommands.
type ProjectCmd struct {
	Create ProjectCreateCmd `cmd:"" help:"Create a project"`
	Status ProjectStatusCmd `cmd:"" help:"Show project overview and progress"`
	List   ProjectListCmd   `cmd:"" help:"List projects"`
}

// ProjectCreateCmd creates a project with optional initial goals.
type ProjectCreateCmd struct {
	Name        string   `arg:"" help:"Project name"`
	Description string   `help:"Project description"`
	Goal        []string `help:"Initial goal text (repeatable)"`
}

// ProjectStatusCmd reports on one project.
type ProjectStatusCmd struct {
	ID string `arg:"" help:"Project ID"`
}

// ProjectListCmd lists stored projects.
type ProjectListCmd struct{}

// ReplayCmd renders a recorded run journal.
type ReplayCmd struct {
	RunID   string `arg:"" help:"Run ID to replay"`
	Verbose bool   `short:"v" help:"Include event arguments and metadata"`
	Plain   bool   `help:"Print to stdout instead of the interactive viewer"`
	Follow  bool   `short:"f" help:"Re-render as the run file grows"`
	Stats   bool   `help:"Print statistics only"`
}

// MemoryCmd groups memory inspection subcommands.
type MemoryCmd struct {
	Search MemorySearchCmd `cmd:"" help:"Full-text search across stored text"`
	Recent MemoryRecentCmd `cmd:"" help:"Show recent facts from a namespace"`
}

// MemorySearchCmd runs a full-text query.
type MemorySearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `default:"10" help:"Maximum hits"`
}

// MemoryRecentCmd lists recent facts.
type MemoryRecentCmd struct {
	Namespace string `arg:"" help:"Fact namespace, e.g. goals or world_model"`
	Limit     int    `default:"10" help:"Maximum facts"`
}

// ConfigCmd groups configuration subcommands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a starter sentinel.toml"`
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
}

// ConfigInitCmd writes a starter config file.
type ConfigInitCmd struct {
	Path  string `default:"sentinel.toml" help:"Where to write the config"`
	Force bool   `help:"Overwrite an existing file"`
}

// ConfigShowCmd prints the effective configuration.
type ConfigShowCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}
