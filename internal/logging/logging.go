// Package logging provides structured, standards-compliant logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		traceID:   l.traceID,
	}
}

// WithTraceID returns a new logger with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		traceID:   traceID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// ToolCall logs a tool invocation.
func (l *Logger) ToolCall(tool string, args map[string]interface{}) {
	// Don't log args to avoid PII - just log tool name
	l.Info("tool_call", map[string]interface{}{
		"tool": tool,
	})
}

// ToolResult logs a tool result.
func (l *Logger) ToolResult(tool string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"tool":     tool,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("tool_error", fields)
	} else {
		l.Debug("tool_result", fields)
	}
}

// PlanStart logs the start of a planning pass.
func (l *Logger) PlanStart(goal, goalType string) {
	l.Info("plan_start", map[string]interface{}{
		"goal": goal,
		"type": goalType,
	})
}

// PlanComplete logs a finished plan.
func (l *Logger) PlanComplete(planID string, version, nodes int) {
	l.Info("plan_complete", map[string]interface{}{
		"plan_id": planID,
		"version": version,
		"nodes":   nodes,
	})
}

// ToolGap logs a subgoal that no catalog tool could serve.
func (l *Logger) ToolGap(subgoal string) {
	l.Warn("tool_gap", map[string]interface{}{
		"subgoal": subgoal,
	})
}

// NodeStart logs the start of a node execution.
func (l *Logger) NodeStart(nodeID, tool string) {
	l.Info("node_start", map[string]interface{}{
		"node": nodeID,
		"tool": tool,
	})
}

// NodeComplete logs the outcome of a node execution.
func (l *Logger) NodeComplete(nodeID string, duration time.Duration, success bool, err string) {
	fields := map[string]interface{}{
		"node":     nodeID,
		"duration": duration.String(),
		"success":  success,
	}
	if err != "" {
		fields["error"] = err
	}
	if success {
		l.Info("node_complete", fields)
	} else {
		l.Warn("node_complete", fields)
	}
}

// PolicyDecision logs a policy verdict.
func (l *Logger) PolicyDecision(check string, allowed bool, reasons []string) {
	l.Info("policy_decision", map[string]interface{}{
		"check":   check,
		"allowed": allowed,
		"reasons": strings.Join(reasons, "; "),
	})
}

// PolicyRewrite logs a plan rewrite applied by policy.
func (l *Logger) PolicyRewrite(kind, node string) {
	l.Info("policy_rewrite", map[string]interface{}{
		"kind": kind,
		"node": node,
	})
}

// SimulationResult logs a simulated node verdict.
func (l *Logger) SimulationResult(nodeID string, success bool, likelihood float64, warnings int) {
	l.Debug("simulation_result", map[string]interface{}{
		"node":       nodeID,
		"success":    success,
		"likelihood": fmt.Sprintf("%.3f", likelihood),
		"warnings":   warnings,
	})
}

// CycleStart logs the start of an autonomy cycle.
func (l *Logger) CycleStart(cycle int, goal string) {
	l.Info("cycle_start", map[string]interface{}{
		"cycle": cycle,
		"goal":  goal,
	})
}

// CycleComplete logs the end of an autonomy cycle.
func (l *Logger) CycleComplete(cycle int, duration time.Duration, issues int, confidence float64) {
	l.Info("cycle_complete", map[string]interface{}{
		"cycle":      cycle,
		"duration":   duration.String(),
		"issues":     issues,
		"confidence": fmt.Sprintf("%.2f", confidence),
	})
}

// ExecutionStart logs the start of a graph execution.
func (l *Logger) ExecutionStart(mode string, nodes int) {
	l.Info("execution_start", map[string]interface{}{
		"mode":  mode,
		"nodes": nodes,
	})
}

// ExecutionComplete logs the completion of a graph execution.
func (l *Logger) ExecutionComplete(mode string, duration time.Duration, executed, failed int) {
	l.Info("execution_complete", map[string]interface{}{
		"mode":     mode,
		"duration": duration.String(),
		"executed": executed,
		"failed":   failed,
	})
}

// ApprovalRequested logs an approval prompt.
func (l *Logger) ApprovalRequested(description string) {
	l.Info("approval_requested", map[string]interface{}{
		"description": description,
	})
}

// GovernanceViolation logs a project governance breach.
func (l *Logger) GovernanceViolation(project, reason string) {
	l.Warn("governance_violation", map[string]interface{}{
		"project": project,
		"reason":  reason,
	})
}
