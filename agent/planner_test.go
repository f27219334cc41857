package agent

import (
	"context"
	"testing"

	"github.com/martinemde/conductor/llm"
	"github.com/martinemde/conductor/plan"
)

func TestGeneratePlanParsesModelOutput(t *testing.T) {
	planJSON := "```json\n" + `[
		{"id": "s0", "kind": "filesystem", "params": {"operation": "mkdir", "path": "out"}},
		{"id": "s1", "kind": "filesystem", "params": {"operation": "write", "path": "out/a.txt", "content": "hi"}, "depends_on": ["s0"]}
	]` + "\n```"

	provider := &scriptedProvider{responses: []*llm.Response{textResponse(planJSON)}}
	a, _, _ := newTestAgent(t, provider)

	steps, err := a.GeneratePlan(context.Background(), "make a file")
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}
	if steps[0].ID != "s0" || steps[1].Kind != plan.StepFilesystem {
		t.Errorf("steps parsed incorrectly: %+v", steps)
	}
	if len(steps[1].DependsOn) != 1 || steps[1].DependsOn[0] != "s0" {
		t.Errorf("dependencies lost: %+v", steps[1])
	}
}

func TestGeneratePlanRejectsNonJSON(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("I cannot plan this.")}}
	a, _, _ := newTestAgent(t, provider)

	if _, err := a.GeneratePlan(context.Background(), "impossible"); err == nil {
		t.Errorf("expected error for non-JSON output")
	}
}

func TestRunStepsExecutesGeneratedPlan(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("unused")}}
	a, _, root := newTestAgent(t, provider)
	_ = root

	steps := []plan.Step{
		{ID: "mk", Kind: plan.StepFilesystem, Params: map[string]any{"operation": "mkdir", "path": "generated"}},
	}
	report, err := a.RunSteps(context.Background(), "run-gen", steps)
	if err != nil {
		t.Fatalf("RunSteps: %v", err)
	}
	if report.Report.Stats.OK != 1 {
		t.Errorf("stats = %+v", report.Report.Stats)
	}
}
