package replay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/openclaw/sentinel/internal/journal"
)

const contentWidth = 100

// formatEvent renders one timeline line plus optional verbose detail.
func (r *Replayer) formatEvent(evt *journal.Event) {
	prefix := fmt.Sprintf("%s %s ",
		seqStyle.Render(fmt.Sprintf("%d", evt.SeqID)),
		timeStyle.Render(evt.Timestamp.Format("15:04:05.000")))

	style, line := r.describe(evt)
	fmt.Fprintf(r.output, "%s%s\n", prefix, style.Render(line))

	if r.verbosity > 0 {
		r.printDetail(evt)
	}
}

// describe picks the component style and one-line summary for an event.
func (r *Replayer) describe(evt *journal.Event) (lipgloss.Style, string) {
	switch evt.Type {
	case journal.EventCycleStart:
		return cycleStyle, fmt.Sprintf("── cycle %d begins (plan %s v%d)", evt.Cycle, evt.PlanID, evt.Version)
	case journal.EventCycleEnd:
		line := fmt.Sprintf("── cycle %d done in %s", evt.Cycle, formatDuration(evt.DurationMs))
		if evt.Meta != nil {
			line += fmt.Sprintf(", %d issue(s), confidence %.2f, adjust=%s",
				len(evt.Meta.Issues), evt.Meta.Confidence, evt.Meta.Adjustment)
		}
		return cycleStyle, line

	case journal.EventPlanStart:
		return planStyle, "planning: " + evt.Content
	case journal.EventPlanComplete:
		return planStyle, fmt.Sprintf("plan %s v%d ready: %s", evt.PlanID, evt.Version, evt.Content)
	case journal.EventPlanRefined:
		return planStyle, fmt.Sprintf("plan %s refined to v%d: %s", evt.PlanID, evt.Version, evt.Content)
	case journal.EventToolGap:
		return warnStyle, "tool gap: " + evt.Content

	case journal.EventPolicyCheck:
		if evt.Meta != nil && !evt.Meta.Allowed {
			return errorStyle, fmt.Sprintf("policy denied %s: %s", evt.Meta.Check, strings.Join(evt.Meta.Reasons, "; "))
		}
		if evt.Meta != nil {
			return policyStyle, "policy ok: " + evt.Meta.Check
		}
		return policyStyle, "policy check"
	case journal.EventPolicyRewrite:
		line := "policy rewrite"
		if evt.Meta != nil && len(evt.Meta.Rewrites) > 0 {
			line += ": " + strings.Join(evt.Meta.Rewrites, "; ")
		}
		return policyStyle, line
	case journal.EventPolicyViolation:
		return errorStyle, "policy violation: " + evt.Content

	case journal.EventSimulationNode:
		line := "simulated " + evt.Node
		if evt.Meta != nil {
			line += fmt.Sprintf(": likelihood=%.2f %s", evt.Meta.FailureLikelihood, evt.Meta.Complexity)
			if len(evt.Meta.Warnings) > 0 {
				line += " [" + strings.Join(evt.Meta.Warnings, "; ") + "]"
			}
		}
		return simStyle, line
	case journal.EventSimulationGraph:
		return simStyle, "simulation: " + evt.Content

	case journal.EventNodeStart:
		return execStyle, fmt.Sprintf("▶ %s (%s)", evt.Node, evt.Tool)
	case journal.EventNodeEnd:
		if evt.Success != nil && !*evt.Success {
			return errorStyle, fmt.Sprintf("✗ %s failed after %s: %s", evt.Node, formatDuration(evt.DurationMs), evt.Error)
		}
		return successStyle, fmt.Sprintf("✓ %s in %s", evt.Node, formatDuration(evt.DurationMs))
	case journal.EventNodeSkipped:
		return warnStyle, fmt.Sprintf("○ %s skipped: %s", evt.Node, evt.Content)
	case journal.EventApproval:
		if evt.Success != nil && !*evt.Success {
			return errorStyle, "approval denied: " + evt.Content
		}
		return execStyle, "approved: " + evt.Content
	case journal.EventCheckin:
		return execStyle, "check-in: " + evt.Content
	case journal.EventTraceSummary:
		return execStyle, evt.Content

	case journal.EventReflection:
		line := "reflection: " + evt.Content
		if evt.Meta != nil && len(evt.Meta.Issues) > 0 {
			line += " [" + strings.Join(evt.Meta.Issues, "; ") + "]"
		}
		return reflectStyle, line

	case journal.EventGoalAdded:
		return governanceStyle, "goal added: " + evt.Content
	case journal.EventPlanRegistered:
		return governanceStyle, "plan registered: " + evt.Content
	case journal.EventStepCompleted:
		return governanceStyle, "step completed: " + evt.Content
	}

	return dimStyle, evt.Type + ": " + evt.Content
}

// printDetail emits indented args and metadata in verbose mode.
func (r *Replayer) printDetail(evt *journal.Event) {
	if len(evt.Args) > 0 {
		fmt.Fprintf(r.output, "      %s\n", dimStyle.Render("args: "+formatArgs(evt.Args)))
	}
	if evt.CorrelationID != "" {
		fmt.Fprintf(r.output, "      %s\n", dimStyle.Render("corr: "+evt.CorrelationID))
	}
	if evt.Content != "" && len(evt.Content) > contentWidth {
		wrapped := wordwrap.String(evt.Content, contentWidth)
		for _, line := range strings.Split(wrapped, "\n") {
			fmt.Fprintf(r.output, "      %s\n", dimStyle.Render(line))
		}
	}
}

// formatArgs renders a deterministic key=value listing.
func formatArgs(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, " ")
}

// formatDuration formats milliseconds as human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
