package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/sentinel/internal/autonomy"
	"github.com/openclaw/sentinel/internal/checkpoint"
	"github.com/openclaw/sentinel/internal/config"
	"github.com/openclaw/sentinel/internal/controller"
	"github.com/openclaw/sentinel/internal/dialog"
	"github.com/openclaw/sentinel/internal/journal"
	"github.com/openclaw/sentinel/internal/logging"
	"github.com/openclaw/sentinel/internal/memory"
	"github.com/openclaw/sentinel/internal/planner"
	"github.com/openclaw/sentinel/internal/policy"
	"github.com/openclaw/sentinel/internal/project"
	"github.com/openclaw/sentinel/internal/reflection"
	"github.com/openclaw/sentinel/internal/simulation"
	"github.com/openclaw/sentinel/internal/telemetry"
	"github.com/openclaw/sentinel/internal/tools"
	"github.com/openclaw/sentinel/internal/world"
)

// runtime holds every wired component for one CLI invocation.
type runtime struct {
	cfg         *config.Config
	log         *logging.Logger
	store       memory.Store
	catalog     *tools.Catalog
	policy      *policy.Engine
	sandbox     *simulation.Sandbox
	planner     *planner.Planner
	dialog      *dialog.Manager
	gate        *dialog.ApprovalGate
	ctrl        *controller.Controller
	reflector   *reflection.Engine
	loop        *autonomy.Loop
	projects    *project.Engine
	journals    *journal.Manager
	publisher   journal.Publisher
	watcher     *simulation.ProfileWatcher
	checkpoints *checkpoint.Store
}

// buildRuntime loads config and wires the full component graph.
func buildRuntime(g *Globals) (*runtime, error) {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return nil, err
	}

	log := logging.New()
	log.SetLevel(logLevel(g.LogLevel, cfg.Logging.Level))

	if cfg.Telemetry.Enabled {
		telemetry.Init(cfg.Telemetry.ServiceName, cfg.Telemetry.Debug)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	catalog := tools.NewCatalog()
	workspace := cfg.Agent.Workspace
	if workspace == "" {
		workspace = "."
	}
	if err := tools.RegisterBuiltins(catalog, workspace); err != nil {
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}

	engine := policy.NewEngine(store, log, policy.Options{
		AllowedPermissions:     cfg.Policy.AllowedPermissions,
		DeterministicFirst:     cfg.Policy.DeterministicFirst,
		ParallelLimit:          cfg.Policy.ParallelLimit,
		MaxWallClock:           cfg.MaxWallClock(),
		MaxCycles:              cfg.Policy.MaxCycles,
		MaxConsecutiveFailures: cfg.Policy.MaxConsecutiveFailures,
		MaxGoals:               cfg.Governance.MaxGoals,
		MaxDependencyDepth:     cfg.Governance.MaxDependencyDepth,
		MaxRefinementRounds:    cfg.Governance.MaxRefinementRounds,
		MaxProjectAge:          cfg.MaxProjectAge(),
	})

	rt := &runtime{cfg: cfg, log: log, store: store, catalog: catalog, policy: engine}

	rt.sandbox = simulation.NewSandbox(catalog, store, simulation.DefaultProfiles(), log)
	if path := cfg.Simulation.ProfilesPath; path != "" {
		if cfg.Simulation.WatchProfile {
			watcher, err := simulation.WatchProfiles(path, rt.sandbox, log)
			if err != nil {
				log.Warn("profile watcher unavailable", map[string]interface{}{"path": path, "error": err.Error()})
			} else {
				rt.watcher = watcher
			}
		} else if profiles, err := simulation.LoadProfiles(path); err == nil {
			rt.sandbox.UpdateProfiles(profiles)
		} else {
			log.Warn("failed to load tool profiles", map[string]interface{}{"path": path, "error": err.Error()})
		}
	}

	worldModel := world.NewModel(store, log)
	rt.dialog = dialog.NewManager(os.Stdout, store, worldModel, log)
	if g.AutoApprove || cfg.Execution.AutoApprove {
		rt.gate = dialog.AutoApproved()
	} else {
		rt.gate = dialog.NewApprovalGate(dialog.TerminalPrompter{}, rt.dialog)
	}

	rt.planner = planner.New(catalog, store, engine, log)
	rt.ctrl = controller.New(controller.NewCatalogWorker(catalog), engine, catalog, rt.gate, rt.dialog, store, log)
	rt.reflector = reflection.New(store, engine, log)
	rt.loop = autonomy.New(rt.planner, rt.sandbox, rt.ctrl, rt.reflector, engine, store, log)

	projectStore, err := project.NewStore(cfg.ProjectsDir())
	if err != nil {
		return nil, err
	}
	rt.projects = project.NewEngine(projectStore, engine, rt.dialog, log)

	journalDir := cfg.JournalDir()
	if g.Journal != "" {
		journalDir = g.Journal
	}
	fileStore, err := journal.NewFileStore(journalDir)
	if err != nil {
		return nil, fmt.Errorf("open journal store: %w", err)
	}
	rt.journals = journal.NewManager(fileStore)

	rt.checkpoints, err = checkpoint.NewStore(filepath.Join(journalDir, "checkpoints"))
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	if err := rt.checkpoints.Load(); err != nil {
		log.Warn("failed to load checkpoints", map[string]interface{}{"error": err.Error()})
	}
	rt.loop.AttachCheckpoints(rt.checkpoints)

	rt.publisher = journal.NopPublisher{}
	if cfg.Journal.NATSURL != "" {
		publisher, err := journal.NewNATSPublisher(cfg.Journal.NATSURL, cfg.Journal.SubjectBase, log)
		if err != nil {
			log.Warn("event publisher unavailable", map[string]interface{}{"url": cfg.Journal.NATSURL, "error": err.Error()})
		} else {
			rt.publisher = publisher
		}
	}

	return rt, nil
}

// attachRun points every journaling component at one run.
func (rt *runtime) attachRun(run *journal.Run) {
	rt.planner.AttachRun(run)
	rt.ctrl.AttachRun(run, rt.publisher)
	rt.reflector.AttachRun(run)
	rt.loop.AttachRun(run)
	rt.projects.AttachRun(run)
}

// Close releases external resources.
func (rt *runtime) Close() {
	if rt.watcher != nil {
		rt.watcher.Close()
	}
	if rt.publisher != nil {
		rt.publisher.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if _, err := os.Stat("sentinel.toml"); err == nil {
		return config.LoadDefault()
	}
	return config.New(), nil
}

func openStore(cfg *config.Config) (memory.Store, error) {
	if !cfg.Storage.PersistMemory {
		return memory.NewInMemoryStore(), nil
	}
	base := cfg.StoragePath()
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	bolt, err := memory.NewBoltStore(filepath.Join(base, "facts.db"))
	if err != nil {
		return nil, fmt.Errorf("open fact store: %w", err)
	}
	indexed, err := memory.NewBleveStore(bolt, filepath.Join(base, "index.bleve"))
	if err != nil {
		bolt.Close()
		return nil, fmt.Errorf("open text index: %w", err)
	}
	return indexed, nil
}

func logLevel(flag, configured string) logging.Level {
	level := flag
	if level == "" {
		level = configured
	}
	switch strings.ToLower(level) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// executionParams translates CLI flags into controller parameters.
func (r *RunCmd) executionParams(cfg *config.Config) (controller.Mode, controller.Params, error) {
	modeName := r.Mode
	if modeName == "" {
		modeName = cfg.Execution.Mode
	}
	mode, err := controller.ParseMode(modeName)
	if err != nil {
		return "", controller.Params{}, err
	}

	params := controller.Params{TargetNode: r.TargetNode, MaxCycles: r.Cycles}
	if r.Duration != "" {
		d, err := time.ParseDuration(r.Duration)
		if err != nil {
			return "", controller.Params{}, fmt.Errorf("invalid --duration: %w", err)
		}
		params.Duration = d
	}
	interval := r.CheckinInterval
	if interval == "" && mode == controller.ModeWithCheckins {
		interval = cfg.Execution.CheckinInterval
	}
	if interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return "", controller.Params{}, fmt.Errorf("invalid --checkin-interval: %w", err)
		}
		params.CheckinInterval = d
	}
	return mode, params, nil
}
