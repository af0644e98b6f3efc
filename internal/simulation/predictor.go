package simulation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Profile declares the semantic effects of one tool: what it emits, what it
// touches, and what it needs before running. Profiles ship as YAML and can be
// extended at runtime.
type Profile struct {
	Outputs           map[string]interface{} `yaml:"outputs"`
	VFSWrites         []string               `yaml:"vfs_writes"`
	SideEffects       []string               `yaml:"side_effects"`
	Preconditions     []string               `yaml:"preconditions"`
	LatencyPattern    string                 `yaml:"latency_pattern"`
	FailureLikelihood float64                `yaml:"failure_likelihood"`
	Confidence        float64                `yaml:"confidence"`
}

// Prediction is the predictor's verdict for one tool call.
type Prediction struct {
	Outputs           map[string]interface{}
	VFSWrites         []string
	SideEffects       []string
	FailureLikelihood float64
	RuntimeSeconds    float64
	LatencyPattern    string
	Warnings          []string
	Confidence        float64
}

// EffectPredictor maps tool calls to predicted effects using semantic
// profiles plus argument shape heuristics.
type EffectPredictor struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewEffectPredictor creates a predictor seeded with the given profiles.
func NewEffectPredictor(profiles map[string]Profile) *EffectPredictor {
	p := &EffectPredictor{profiles: make(map[string]Profile)}
	p.UpdateProfiles(profiles)
	return p
}

// UpdateProfiles merges new or replacement profiles into the predictor.
func (p *EffectPredictor) UpdateProfiles(profiles map[string]Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, profile := range profiles {
		p.profiles[name] = profile
	}
}

// Profiles returns the names of all registered profiles, sorted.
func (p *EffectPredictor) Profiles() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.profiles))
	for name := range p.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Predict produces the expected effects of calling tool with args. Tools
// without a profile fall back to an echo output at default confidence.
func (p *EffectPredictor) Predict(tool string, args map[string]interface{}) Prediction {
	p.mu.RLock()
	profile, known := p.profiles[tool]
	p.mu.RUnlock()

	likelihood := 0.1
	confidence := 0.5
	pattern := "medium"
	if known {
		if profile.FailureLikelihood > 0 {
			likelihood = profile.FailureLikelihood
		}
		if profile.Confidence > 0 {
			confidence = profile.Confidence
		}
		if profile.LatencyPattern != "" {
			pattern = profile.LatencyPattern
		}
	}

	outputs := make(map[string]interface{})
	for k, v := range profile.Outputs {
		outputs[k] = v
	}
	if len(outputs) == 0 {
		outputs["echo"] = fmt.Sprintf("%s processed %v", tool, sortedKeys(args))
	}

	writes := append([]string(nil), profile.VFSWrites...)
	writes = append(writes, pathLikeArgs(args)...)

	var warnings []string
	if likelihood >= 0.5 {
		warnings = append(warnings, "High predicted failure risk")
	}
	missing := 0
	for _, pre := range profile.Preconditions {
		if _, ok := args[pre]; !ok {
			warnings = append(warnings, fmt.Sprintf("Missing precondition %q", pre))
			missing++
		}
	}
	if missing > 0 {
		likelihood += 0.2
		if likelihood > 1.0 {
			likelihood = 1.0
		}
	}

	return Prediction{
		Outputs:           outputs,
		VFSWrites:         writes,
		SideEffects:       append([]string(nil), profile.SideEffects...),
		FailureLikelihood: likelihood,
		RuntimeSeconds:    estimateRuntime(pattern, args),
		LatencyPattern:    pattern,
		Warnings:          warnings,
		Confidence:        confidence,
	}
}

// pathLikeArgs extracts argument values that look like filesystem paths:
// string values under path-ish keys, and list entries containing a slash.
func pathLikeArgs(args map[string]interface{}) []string {
	var paths []string
	for _, key := range sortedKeys(args) {
		value := args[key]
		lower := strings.ToLower(key)
		pathish := strings.Contains(lower, "path") || strings.Contains(lower, "file") ||
			strings.Contains(lower, "artifact") || strings.Contains(lower, "output")

		switch v := value.(type) {
		case string:
			if pathish {
				paths = append(paths, v)
			}
		case []interface{}:
			for _, entry := range v {
				if s, ok := entry.(string); ok && strings.Contains(s, "/") {
					paths = append(paths, s)
				}
			}
		case []string:
			for _, s := range v {
				if strings.Contains(s, "/") {
					paths = append(paths, s)
				}
			}
		}
	}
	return paths
}

func estimateRuntime(pattern string, args map[string]interface{}) float64 {
	baseline := 0.2
	switch pattern {
	case "low":
		baseline = 0.05
	case "high":
		baseline = 0.5
	}
	size := 0
	for _, v := range args {
		size += len(fmt.Sprintf("%v", v))
	}
	runtime := baseline + math.Log(1+float64(size))*0.01
	return math.Round(runtime*1000) / 1000
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
