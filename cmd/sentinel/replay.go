package main

import (
	"os"
	"path/filepath"

	"github.com/openclaw/sentinel/internal/replay"
)

// Run renders a recorded run journal.
func (c *ReplayCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return err
	}
	journalDir := cfg.JournalDir()
	if g.Journal != "" {
		journalDir = g.Journal
	}
	path := filepath.Join(journalDir, c.RunID+".jsonl")

	verbosity := 0
	if c.Verbose {
		verbosity = 1
	}
	r := replay.New(os.Stdout, verbosity)

	if c.Stats {
		run, err := r.LoadRun(path)
		if err != nil {
			return err
		}
		replay.PrintStats(os.Stdout, replay.ComputeStats(run))
		return nil
	}
	if c.Follow {
		return r.ReplayFileLive(path)
	}
	if c.Plain {
		return r.ReplayFile(path)
	}
	return r.ReplayFileInteractive(path)
}
