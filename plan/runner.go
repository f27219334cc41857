package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/martinemde/conductor/audit"
	"github.com/martinemde/conductor/sandbox"
	"github.com/martinemde/conductor/tools"
)

// Runner executes plans through the tool dispatcher under the sandbox
// policy.
type Runner struct {
	dispatcher *tools.Dispatcher
	policy     *sandbox.Policy
	sink       *audit.Sink
}

// NewRunner creates a Runner.
func NewRunner(dispatcher *tools.Dispatcher, policy *sandbox.Policy, sink *audit.Sink) *Runner {
	if sink == nil {
		sink = audit.Default()
	}
	return &Runner{dispatcher: dispatcher, policy: policy, sink: sink}
}

// stepError classifies a failed attempt.
type stepError struct {
	message   string
	retryable bool
}

func (e *stepError) Error() string { return e.message }

// Run executes the steps in topological order. It returns the run report
// and the first terminal failure, if any. Once the plan passes validation,
// the report is emitted via audit whether or not a step failed; an invalid
// plan returns a nil report and emits nothing.
func (r *Runner) Run(ctx context.Context, runID string, steps []Step) (*Report, error) {
	if err := ValidatePlan(steps); err != nil {
		return nil, err
	}

	ordered, acyclic := topoSort(steps)
	if !acyclic {
		r.sink.Warn(runID, audit.EventStepFail, "dependency cycle detected; executing in input order", map[string]any{
			"steps": len(steps),
		})
	}

	start := time.Now()
	stats := Stats{Steps: len(ordered)}
	var runErr error

	for _, step := range ordered {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}

		r.sink.Info(runID, audit.EventStepStart, "step started", map[string]any{
			"step": step.ID,
			"kind": string(step.Kind),
		})

		policy := DefaultRetryPolicy()
		if step.Retry != nil {
			policy = *step.Retry
		}

		output, retries, err := r.withRetry(ctx, runID, policy, step, step.Params)
		stats.Retries += retries

		if err != nil && step.Fallback != nil {
			r.sink.Warn(runID, audit.EventFallbackApply, "primary parameters failed; applying fallback", map[string]any{
				"step":  step.ID,
				"error": err.Error(),
			})
			output, retries, err = r.withRetry(ctx, runID, policy, step, step.Fallback)
			stats.Retries += retries
			if err == nil {
				stats.Fallbacks++
			}
		}

		if err != nil {
			r.sink.Error(runID, audit.EventStepFail, "step failed", map[string]any{
				"step":  step.ID,
				"error": err.Error(),
			})
			runErr = fmt.Errorf("step %s: %w", step.ID, err)
			break
		}

		stats.OK++
		r.sink.Info(runID, audit.EventStepEnd, "step finished", map[string]any{
			"step":   step.ID,
			"output": output,
		})
	}

	report := &Report{
		RunID: runID,
		Report: ReportBody{
			Summary:     fmt.Sprintf("%d/%d steps succeeded", stats.OK, stats.Steps),
			Timings:     Timings{TotalMs: time.Since(start).Milliseconds()},
			Stats:       stats,
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	r.sink.Info(runID, audit.EventRunReport, report.Report.Summary, map[string]any{
		"steps":     stats.Steps,
		"ok":        stats.OK,
		"retries":   stats.Retries,
		"fallbacks": stats.Fallbacks,
		"total_ms":  report.Report.Timings.TotalMs,
	})

	return report, runErr
}

// withRetry runs the attempt closure under the step's retry policy with
// the given parameters. It returns the output, the number of retries
// performed (attempts beyond the first), and the final error.
func (r *Runner) withRetry(ctx context.Context, runID string, policy RetryPolicy, step Step, params map[string]any) (string, int, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(policy, attempt)
			select {
			case <-ctx.Done():
				return "", attempt - 1, ctx.Err()
			case <-time.After(delay):
			}
		}

		output, err := r.attempt(ctx, runID, step, params)
		if err == nil {
			return output, attempt - 1, nil
		}
		lastErr = err

		if se, ok := err.(*stepError); ok && !se.retryable {
			return "", attempt - 1, err
		}
	}
	return "", attempts - 1, lastErr
}

// backoffDelay computes the delay before try n (n >= 2).
func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	base := policy.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	factor := policy.Factor
	if factor <= 0 {
		factor = 2.0
	}

	delay := float64(base)
	for i := 2; i < attempt; i++ {
		delay *= factor
	}
	if policy.JitterFraction > 0 {
		delay *= 1 + rand.Float64()*policy.JitterFraction
	}
	return time.Duration(delay)
}

// attempt is the closure of one try: pre-check, dispatch by kind,
// post-validate.
func (r *Runner) attempt(ctx context.Context, runID string, step Step, params map[string]any) (string, error) {
	if err := r.preCheck(step, params); err != nil {
		return "", &stepError{message: err.Error(), retryable: false}
	}

	output, err := r.dispatch(ctx, runID, step, params)
	if err != nil {
		return "", err
	}

	if sentinel, ok := params["expect_output_contains"].(string); ok && sentinel != "" {
		if err := sandbox.ContainsValidator(sentinel)(output); err != nil {
			return "", &stepError{message: "VALIDATION_FAIL: " + err.Error(), retryable: false}
		}
	}
	return output, nil
}

func (r *Runner) preCheck(step Step, params map[string]any) error {
	switch step.Kind {
	case StepFilesystem, StepEditor:
		path, _ := params["path"].(string)
		return r.policy.PreCheck(sandbox.Effect{Kind: sandbox.EffectFilesystem, Path: path})
	case StepTerminal:
		command, _ := params["command"].(string)
		return r.policy.PreCheck(sandbox.Effect{Kind: sandbox.EffectTerminal, Command: command})
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, runID string, step Step, params map[string]any) (string, error) {
	switch step.Kind {
	case StepFilesystem, StepTerminal, StepEditor, StepCustom:
		toolName := string(step.Kind)
		if step.Kind == StepCustom {
			name, _ := params["tool"].(string)
			if name == "" {
				return "", &stepError{message: "custom step missing tool parameter", retryable: false}
			}
			toolName = name
		}
		rawArgs, err := json.Marshal(params)
		if err != nil {
			return "", &stepError{message: "encode step params: " + err.Error(), retryable: false}
		}
		result := r.dispatcher.Execute(ctx, runID, toolName, rawArgs)
		if !result.Success {
			return "", classifyDispatchError(result.Error)
		}
		return stringifyOutput(result.Output), nil

	case StepVerify:
		path, _ := params["path"].(string)
		if path == "" {
			return "", &stepError{message: "verify step missing path parameter", retryable: false}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &stepError{message: "VALIDATION_FAIL: " + err.Error(), retryable: false}
		}
		if contains, ok := params["contains"].(string); ok && contains != "" {
			if !strings.Contains(string(data), contains) {
				return "", &stepError{message: fmt.Sprintf("VALIDATION_FAIL: %s missing %q", path, contains), retryable: false}
			}
		}
		return "verified " + path, nil

	case StepPolicy:
		effect := sandbox.Effect{Kind: sandbox.EffectKind(fmt.Sprint(params["effect"]))}
		effect.Path, _ = params["path"].(string)
		effect.Command, _ = params["command"].(string)
		decision := r.policy.Decide(effect)
		if !decision.Allowed {
			return "", &stepError{message: "Denied: " + decision.Reason, retryable: false}
		}
		return "allowed", nil

	case StepAudit:
		eventType, _ := params["event_type"].(string)
		if eventType == "" {
			eventType = audit.EventNotificationSent
		}
		message, _ := params["message"].(string)
		r.sink.Info(runID, eventType, message, params)
		return "audited", nil

	default:
		return "", &stepError{message: "unknown step kind: " + string(step.Kind), retryable: false}
	}
}

// classifyDispatchError maps a dispatcher failure string to retryability:
// policy denials and validation failures never retry, everything else is a
// transient execution error.
func classifyDispatchError(message string) error {
	retryable := true
	if strings.HasPrefix(message, "Denied: ") || strings.HasPrefix(message, "VALIDATION_FAIL") {
		retryable = false
	}
	return &stepError{message: message, retryable: retryable}
}

func stringifyOutput(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
