package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/martinemde/conductor/llm"
	"github.com/martinemde/conductor/plan"
)

const planPrompt = `Produce an execution plan for the objective below as a JSON array of steps, no prose and no code fences.
Each step: {"id": "s0", "kind": "filesystem|terminal|editor|verify", "params": {...}, "depends_on": ["..."]}.
filesystem params: operation (write|mkdir|chmod|delete|copy|move), path, content, mode, dest.
terminal params: command, working_dir.
verify params: path, contains.

Objective: %s`

// GeneratePlan asks the router for a structured plan for the objective and
// parses it into steps for the deterministic runner.
func (a *Agent) GeneratePlan(ctx context.Context, objective string) ([]plan.Step, error) {
	runID := uuid.NewString()
	resp, err := a.router.Complete(ctx, runID, llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage("You are a planner. Respond with only the requested JSON."),
			llm.UserMessage(fmt.Sprintf(planPrompt, objective)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	text := stripCodeFences(resp.Text())
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("generate plan: no JSON array in model output")
	}

	var steps []plan.Step
	if err := json.Unmarshal([]byte(text[start:end+1]), &steps); err != nil {
		return nil, fmt.Errorf("generate plan: decode steps: %w", err)
	}
	if err := plan.ValidatePlan(steps); err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	return steps, nil
}

// RunSteps executes a plan deterministically through the plan runner.
func (a *Agent) RunSteps(ctx context.Context, runID string, steps []plan.Step) (*plan.Report, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("run steps: no plan runner configured")
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	return a.runner.Run(ctx, runID, steps)
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
