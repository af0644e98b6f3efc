package simulation

import "fmt"

// Benchmark is a synthetic performance estimate for one tool call. Relative
// speed runs from 1 (slow) to 10 (fast).
type Benchmark struct {
	Complexity    string  `json:"complexity"`
	RelativeSpeed float64 `json:"relative_speed"`
	Notes         string  `json:"notes,omitempty"`
}

// BenchmarkFacade estimates performance from argument size alone. The
// heuristic is deliberately crude: simulations need a stable ordering signal,
// not an accurate profile.
type BenchmarkFacade struct{}

// Estimate derives a benchmark from the total rendered size of the arguments.
func (BenchmarkFacade) Estimate(tool string, args map[string]interface{}) Benchmark {
	size := 0
	for _, v := range args {
		size += len(fmt.Sprintf("%v", v))
	}

	complexity := "O(n)"
	if size > 50 {
		complexity = "O(n log n)"
	}

	speed := 10 - size/20
	if speed < 1 {
		speed = 1
	}
	if speed > 10 {
		speed = 10
	}

	return Benchmark{
		Complexity:    complexity,
		RelativeSpeed: float64(speed),
		Notes:         fmt.Sprintf("synthetic estimate for %s over %d input bytes", tool, size),
	}
}
