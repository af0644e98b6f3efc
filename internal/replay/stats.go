package replay

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/openclaw/sentinel/internal/journal"
)

// Stats holds aggregate statistics for a run.
type Stats struct {
	// Total run duration, first event to last
	TotalDurationMs int64

	// Per-cycle durations
	CycleDurations map[int]int64

	// Node executions
	NodeCount   int
	NodeFailed  int
	NodeTotalMs int64
	NodeAvgMs   int64

	// Policy engine
	PolicyChecks  int
	PolicyDenials int

	// Simulation sandbox
	SimulatedNodes    int
	PredictedFailures int

	// Operator approvals
	Approvals int
	Denials   int
}

// ComputeStats calculates aggregate statistics from run events.
func ComputeStats(run *journal.Run) *Stats {
	stats := &Stats{
		CycleDurations: make(map[int]int64),
	}

	var firstEvent, lastEvent time.Time

	for i := range run.Events {
		event := &run.Events[i]
		if firstEvent.IsZero() || event.Timestamp.Before(firstEvent) {
			firstEvent = event.Timestamp
		}
		if lastEvent.IsZero() || event.Timestamp.After(lastEvent) {
			lastEvent = event.Timestamp
		}

		switch event.Type {
		case journal.EventCycleEnd:
			if event.DurationMs > 0 {
				stats.CycleDurations[event.Cycle] = event.DurationMs
			}

		case journal.EventNodeEnd:
			stats.NodeCount++
			stats.NodeTotalMs += event.DurationMs
			if event.Success != nil && !*event.Success {
				stats.NodeFailed++
			}

		case journal.EventPolicyCheck:
			stats.PolicyChecks++
			if event.Meta != nil && !event.Meta.Allowed {
				stats.PolicyDenials++
			}

		case journal.EventPolicyViolation:
			stats.PolicyDenials++

		case journal.EventSimulationNode:
			stats.SimulatedNodes++
			if event.Success != nil && !*event.Success {
				stats.PredictedFailures++
			}

		case journal.EventApproval:
			if event.Success != nil && !*event.Success {
				stats.Denials++
			} else {
				stats.Approvals++
			}
		}
	}

	if !firstEvent.IsZero() && !lastEvent.IsZero() {
		stats.TotalDurationMs = lastEvent.Sub(firstEvent).Milliseconds()
	}
	if stats.NodeCount > 0 {
		stats.NodeAvgMs = stats.NodeTotalMs / int64(stats.NodeCount)
	}

	return stats
}

// PrintStats outputs the statistics to the writer.
func PrintStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("RUN STATISTICS"))
	fmt.Fprintln(w, divider)

	fmt.Fprintf(w, "%s %s\n",
		labelStyle.Render("Total Duration:"),
		valueStyle.Render(formatDuration(stats.TotalDurationMs)))

	if len(stats.CycleDurations) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Cycles:"))
		cycles := make([]int, 0, len(stats.CycleDurations))
		for c := range stats.CycleDurations {
			cycles = append(cycles, c)
		}
		sort.Ints(cycles)
		for _, c := range cycles {
			fmt.Fprintf(w, "  %s %s\n",
				labelStyle.Render(fmt.Sprintf("cycle %d:", c)),
				valueStyle.Render(formatDuration(stats.CycleDurations[c])))
		}
	}

	if stats.NodeCount > 0 {
		fmt.Fprintln(w, titleStyle.Render("Node Executions:"))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Count:"),
			valueStyle.Render(fmt.Sprintf("%d (%d failed)", stats.NodeCount, stats.NodeFailed)))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Total:"),
			valueStyle.Render(formatDuration(stats.NodeTotalMs)))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Average:"),
			valueStyle.Render(formatDuration(stats.NodeAvgMs)))
	}

	if stats.PolicyChecks > 0 || stats.PolicyDenials > 0 {
		fmt.Fprintln(w, titleStyle.Render("Policy:"))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Checks:"),
			valueStyle.Render(fmt.Sprintf("%d (%d denied)", stats.PolicyChecks, stats.PolicyDenials)))
	}

	if stats.SimulatedNodes > 0 {
		fmt.Fprintln(w, titleStyle.Render("Simulation:"))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Nodes:"),
			valueStyle.Render(fmt.Sprintf("%d (%d predicted failures)", stats.SimulatedNodes, stats.PredictedFailures)))
	}

	if stats.Approvals > 0 || stats.Denials > 0 {
		fmt.Fprintln(w, titleStyle.Render("Approvals:"))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Decisions:"),
			valueStyle.Render(fmt.Sprintf("%d approved, %d denied", stats.Approvals, stats.Denials)))
	}
}
