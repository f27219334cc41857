package plan

import "testing"

func TestTopoSortLinearExtension(t *testing.T) {
	steps := []Step{
		{ID: "c", DependsOn: []string{"b"}},
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}

	ordered, ok := topoSort(steps)
	if !ok {
		t.Fatalf("acyclic graph reported as cyclic")
	}

	position := map[string]int{}
	for i, s := range ordered {
		position[s.ID] = i
	}
	if position["a"] > position["b"] || position["b"] > position["c"] {
		t.Errorf("order %v violates dependencies", ordered)
	}
}

func TestTopoSortStableForIndependentSteps(t *testing.T) {
	steps := []Step{{ID: "x"}, {ID: "y"}, {ID: "z"}}
	ordered, ok := topoSort(steps)
	if !ok {
		t.Fatalf("unexpected cycle")
	}
	for i, want := range []string{"x", "y", "z"} {
		if ordered[i].ID != want {
			t.Errorf("position %d = %s, want %s (input order)", i, ordered[i].ID, want)
		}
	}
}

func TestTopoSortCycleFallsBackToInputOrder(t *testing.T) {
	steps := []Step{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c"},
	}

	ordered, ok := topoSort(steps)
	if ok {
		t.Fatalf("cycle not detected")
	}
	if len(ordered) != 3 {
		t.Fatalf("fallback must keep every step exactly once, got %d", len(ordered))
	}
	for i, want := range []string{"a", "b", "c"} {
		if ordered[i].ID != want {
			t.Errorf("fallback order[%d] = %s, want %s", i, ordered[i].ID, want)
		}
	}
}

func TestValidatePlan(t *testing.T) {
	if err := ValidatePlan([]Step{{ID: "a"}, {ID: "a"}}); err == nil {
		t.Errorf("duplicate ids not rejected")
	}
	if err := ValidatePlan([]Step{{ID: "a", DependsOn: []string{"ghost"}}}); err == nil {
		t.Errorf("unknown dependency not rejected")
	}
	if err := ValidatePlan([]Step{{ID: ""}}); err == nil {
		t.Errorf("empty id not rejected")
	}
	if err := ValidatePlan([]Step{{ID: "a"}, {ID: "b", DependsOn: []string{"a"}}}); err != nil {
		t.Errorf("valid plan rejected: %v", err)
	}
}
