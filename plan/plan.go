// Package plan executes a dependency DAG of steps deterministically: no LM
// in the loop, the same dispatcher/sandbox/journal/audit primitives as the
// agent. Steps run in topological order with per-step retry and one-shot
// fallback parameters.
package plan

import (
	"time"
)

// StepKind selects the dispatch target for a step.
type StepKind string

const (
	StepFilesystem StepKind = "filesystem"
	StepTerminal   StepKind = "terminal"
	StepEditor     StepKind = "editor"
	StepVerify     StepKind = "verify"
	StepPolicy     StepKind = "policy"
	StepAudit      StepKind = "audit"
	StepCustom     StepKind = "custom"
)

// RetryPolicy controls per-step retry. Attempts is the total number of
// tries including the first. The delay before try n (n >= 2) is
// base * factor^(n-2) * (1 + uniform(0, jitterFraction)).
type RetryPolicy struct {
	Attempts       int           `json:"attempts" yaml:"attempts"`
	BaseDelay      time.Duration `json:"base_delay" yaml:"base_delay"`
	Factor         float64       `json:"factor" yaml:"factor"`
	JitterFraction float64       `json:"jitter_fraction" yaml:"jitter_fraction"`
}

// DefaultRetryPolicy returns the step-level defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       1,
		BaseDelay:      200 * time.Millisecond,
		Factor:         2.0,
		JitterFraction: 0.2,
	}
}

// Step is one node of the plan DAG.
type Step struct {
	ID        string         `json:"id" yaml:"id"`
	Kind      StepKind       `json:"kind" yaml:"kind"`
	Params    map[string]any `json:"params" yaml:"params"`
	DependsOn []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Retry     *RetryPolicy   `json:"retry,omitempty" yaml:"retry,omitempty"`
	Fallback  map[string]any `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Stats aggregates step outcomes for the run report.
type Stats struct {
	Steps     int `json:"steps"`
	OK        int `json:"ok"`
	Retries   int `json:"retries"`
	Fallbacks int `json:"fallbacks"`
}

// Timings holds wall-clock accounting for the run report.
type Timings struct {
	TotalMs int64 `json:"totalMs"`
}

// ReportBody is the inner report object.
type ReportBody struct {
	Summary     string  `json:"summary"`
	Timings     Timings `json:"timings"`
	Stats       Stats   `json:"stats"`
	GeneratedAt string  `json:"generatedAt"`
}

// Report is the structured run report emitted via audit and returned to
// the caller.
type Report struct {
	RunID  string     `json:"runId"`
	Report ReportBody `json:"report"`
}
