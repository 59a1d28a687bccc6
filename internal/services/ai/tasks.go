package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/benvon/voiceflow/internal/validation"
)

// FallbackTitleLength bounds the title of a task built from raw text.
const FallbackTitleLength = 100

// PlanMode is the shape of an extracted task plan.
type PlanMode string

const (
	PlanModeSingle    PlanMode = "single"
	PlanModeHierarchy PlanMode = "hierarchy"
)

// PlannedTask is one task proposed by the model.
type PlannedTask struct {
	Title string `json:"title" validate:"required,max=500"`
	Due   string `json:"due,omitempty" validate:"max=100"`
}

// TaskParent is the optional umbrella task of a hierarchy.
type TaskParent struct {
	Title string `json:"title" validate:"max=500"`
}

// TaskPlan is the decoded task extraction reply.
type TaskPlan struct {
	Mode   PlanMode      `json:"mode" validate:"required,oneof=single hierarchy"`
	Parent *TaskParent   `json:"parent"`
	Tasks  []PlannedTask `json:"tasks" validate:"required,min=1,dive"`
}

// ParentTitle returns the parent task title, or "".
func (p TaskPlan) ParentTitle() string {
	if p.Parent == nil {
		return ""
	}
	return strings.TrimSpace(p.Parent.Title)
}

var codeFenceRe = regexp.MustCompile("(?i)```(?:json)?\\s*")

func stripCodeFences(s string) string {
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(s, ""))
}

// DecodeTaskPlan validates and decodes a task extraction reply. Markdown code
// fences and prose around the JSON object are tolerated. Tasks with blank
// titles are dropped; a plan with none left is malformed.
func DecodeTaskPlan(content string) (TaskPlan, error) {
	raw := stripCodeFences(content)
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var plan TaskPlan
	if err := dec.Decode(&plan); err != nil {
		return TaskPlan{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	tasks := plan.Tasks[:0]
	for _, t := range plan.Tasks {
		t.Title = strings.TrimSpace(t.Title)
		t.Due = strings.TrimSpace(t.Due)
		if t.Title != "" {
			tasks = append(tasks, t)
		}
	}
	plan.Tasks = tasks

	if plan.Mode == "" {
		plan.Mode = PlanModeSingle
		if len(plan.Tasks) > 1 {
			plan.Mode = PlanModeHierarchy
		}
	}

	if err := validation.Validate.Struct(plan); err != nil {
		return TaskPlan{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return plan, nil
}

// FallbackPlan builds a single-task plan from text.
func FallbackPlan(text string) TaskPlan {
	title := strings.TrimSpace(text)
	if utf8.RuneCountInString(title) > FallbackTitleLength {
		title = string([]rune(title)[:FallbackTitleLength])
	}
	return TaskPlan{
		Mode:  PlanModeSingle,
		Tasks: []PlannedTask{{Title: title}},
	}
}
