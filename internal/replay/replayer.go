package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/openclaw/sentinel/internal/journal"
)

// Replayer reads and formats run journals for forensic analysis.
type Replayer struct {
	output         io.Writer
	verbosity      int // 0=normal, 1=verbose (-v)
	maxContentSize int // Maximum size for Content fields (0 = unlimited)
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithMaxContentSize limits Content field size to avoid OOM on large runs.
func WithMaxContentSize(size int) Option {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// New creates a Replayer. verbosity 0 prints the timeline, 1 adds event
// arguments and metadata.
func New(output io.Writer, verbosity int, opts ...Option) *Replayer {
	r := &Replayer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 50 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads a run journal from a JSONL file and replays it.
func (r *Replayer) ReplayFile(path string) error {
	run, err := r.LoadRun(path)
	if err != nil {
		return err
	}
	return r.Replay(run)
}

// ReplayFileInteractive loads a run and replays it in the pager.
func (r *Replayer) ReplayFileInteractive(path string) error {
	run, err := r.LoadRun(path)
	if err != nil {
		return err
	}
	return r.ReplayInteractive(run)
}

// ReplayInteractive renders the timeline into an interactive pager.
func (r *Replayer) ReplayInteractive(run *journal.Run) error {
	content, err := r.render(run)
	if err != nil {
		return err
	}
	p := NewPager(fmt.Sprintf("Run: %s", run.ID), content)
	return p.Run(content)
}

// ReplayFileLive replays a run file and re-renders whenever it changes,
// so an in-flight run can be watched.
func (r *Replayer) ReplayFileLive(path string) error {
	renderFunc := func() (string, error) {
		run, err := r.LoadRun(path)
		if err != nil {
			return "", err
		}
		return r.render(run)
	}

	run, err := r.LoadRun(path)
	if err != nil {
		return err
	}

	p := NewPager(fmt.Sprintf("Run: %s (LIVE)", run.ID), "")
	return p.RunLive(path, renderFunc)
}

// Replay writes a formatted timeline of run events to the output.
func (r *Replayer) Replay(run *journal.Run) error {
	r.printHeader(run)
	r.printTimeline(run)
	r.printSummary(run)
	return nil
}

// render buffers a full replay into a string for the pager.
func (r *Replayer) render(run *journal.Run) (string, error) {
	var buf strings.Builder
	oldOutput := r.output
	r.output = &buf
	err := r.Replay(run)
	r.output = oldOutput
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Replayer) printHeader(run *journal.Run) {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("RUN"), valueStyle.Render(run.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Goal:   "), valueStyle.Render(run.Goal))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Mode:   "), valueStyle.Render(run.Mode))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status: "), r.statusStyle(run.Status).Render(run.Status))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created:"), valueStyle.Render(run.CreatedAt.Format(time.RFC3339)))
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(run *journal.Run) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"),
		dimStyle.Render(fmt.Sprintf("(%d events)", len(run.Events))))
	fmt.Fprintln(r.output, divider)

	for i := range run.Events {
		r.formatEvent(&run.Events[i])
	}
}

func (r *Replayer) printSummary(run *journal.Run) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)

	switch run.Status {
	case journal.StatusComplete:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
	case journal.StatusFailed:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("FAILED:"), valueStyle.Render(run.Error))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}

	PrintStats(r.output, ComputeStats(run))
}

func (r *Replayer) statusStyle(status string) lipgloss.Style {
	switch status {
	case journal.StatusComplete:
		return successStyle
	case journal.StatusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}
