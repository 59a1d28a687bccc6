package ai

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeTaskPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		content    string
		wantMode   PlanMode
		wantParent string
		wantTitles []string
		wantDue    []string
	}{
		{
			name:       "single",
			content:    `{"mode":"single","parent":null,"tasks":[{"title":"Buy milk","due":"tomorrow"}]}`,
			wantMode:   PlanModeSingle,
			wantTitles: []string{"Buy milk"},
			wantDue:    []string{"tomorrow"},
		},
		{
			name:       "hierarchy with null due",
			content:    `{"mode":"hierarchy","parent":{"title":"Trip"},"tasks":[{"title":"Book hotel","due":null},{"title":"Pack","due":"Friday"}]}`,
			wantMode:   PlanModeHierarchy,
			wantParent: "Trip",
			wantTitles: []string{"Book hotel", "Pack"},
			wantDue:    []string{"", "Friday"},
		},
		{
			name:       "fenced with prose",
			content:    "Here you go:\n```json\n{\"mode\":\"single\",\"tasks\":[{\"title\":\"Call Sam\"}]}\n```\nDone.",
			wantMode:   PlanModeSingle,
			wantTitles: []string{"Call Sam"},
			wantDue:    []string{""},
		},
		{
			name:       "missing mode inferred",
			content:    `{"tasks":[{"title":"A"},{"title":"  "},{"title":"B"}]}`,
			wantMode:   PlanModeHierarchy,
			wantTitles: []string{"A", "B"},
			wantDue:    []string{"", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			plan, err := DecodeTaskPlan(tt.content)
			if err != nil {
				t.Fatalf("DecodeTaskPlan returned error: %v", err)
			}
			if plan.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", plan.Mode, tt.wantMode)
			}
			if plan.ParentTitle() != tt.wantParent {
				t.Errorf("ParentTitle = %q, want %q", plan.ParentTitle(), tt.wantParent)
			}
			if len(plan.Tasks) != len(tt.wantTitles) {
				t.Fatalf("expected %d tasks, got %d", len(tt.wantTitles), len(plan.Tasks))
			}
			for i, task := range plan.Tasks {
				if task.Title != tt.wantTitles[i] || task.Due != tt.wantDue[i] {
					t.Errorf("task %d = %+v, want %q/%q", i, task, tt.wantTitles[i], tt.wantDue[i])
				}
			}
		})
	}
}

func TestDecodeTaskPlan_Malformed(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"not json at all",
		`{"mode":"single","tasks":[]}`,
		`{"mode":"list","tasks":[{"title":"A"}]}`,
		`{"mode":"single","tasks":[{"title":""}]}`,
		`{"mode":"single","tasks":"Buy milk"}`,
	}
	for _, in := range inputs {
		if _, err := DecodeTaskPlan(in); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("DecodeTaskPlan(%q) error = %v, want ErrMalformedResponse", in, err)
		}
	}
}

func TestFallbackPlan(t *testing.T) {
	t.Parallel()

	plan := FallbackPlan("  Buy milk  ")
	if plan.Mode != PlanModeSingle || len(plan.Tasks) != 1 || plan.Tasks[0].Title != "Buy milk" {
		t.Errorf("unexpected fallback plan %+v", plan)
	}

	long := FallbackPlan(strings.Repeat("é", 150))
	if n := len([]rune(long.Tasks[0].Title)); n != FallbackTitleLength {
		t.Errorf("expected %d runes, got %d", FallbackTitleLength, n)
	}
}
