package models

import "strings"

// TranscriptionMode selects how a transcript is turned into tasks.
type TranscriptionMode string

const (
	// ModeLiteral uses the transcript verbatim as a single task.
	ModeLiteral TranscriptionMode = "literal"
	// ModeAI runs the transcript through the completion API.
	ModeAI TranscriptionMode = "ai"
)

// PageReferenceMode controls how the created page is linked from the source block.
type PageReferenceMode string

const (
	PageReferenceInline PageReferenceMode = "inline"
	PageReferenceChild  PageReferenceMode = "child"
	PageReferenceNone   PageReferenceMode = "none"
)

// DefaultTodoTriggerTags is used when no trigger tags are configured.
var DefaultTodoTriggerTags = []string{"#todo", "#to-do", "#task", "#tasks"}

// ProjectMapping routes a hashtag to a task manager project.
type ProjectMapping struct {
	Tag         string `json:"tag" yaml:"tag" validate:"required,startswith=#,max=100"`
	ProjectID   string `json:"project_id" yaml:"project_id" validate:"required,max=100"`
	ProjectName string `json:"project_name" yaml:"project_name" validate:"max=200"`
}

// Settings is the resolved per-graph configuration consumed by the pipeline.
// ProjectMappings keeps insertion order; the first matching tag wins.
type Settings struct {
	TodoTriggerTags     []string          `json:"todo_trigger_tags"`
	ProjectMappings     []ProjectMapping  `json:"project_mappings"`
	DefaultMode         TranscriptionMode `json:"default_mode"`
	HierarchicalTasks   bool              `json:"hierarchical_tasks"`
	DefaultProjectID    string            `json:"default_project_id,omitempty"`
	DefaultLabels       []string          `json:"default_labels,omitempty"`
	SummaryPrompt       string            `json:"summary_prompt,omitempty"`
	TaskPrompt          string            `json:"task_prompt,omitempty"`
	CreatePage          bool              `json:"create_page"`
	PageReference       PageReferenceMode `json:"page_reference"`
	PageReferenceFormat string            `json:"page_reference_format"`
	AddTasksSection     bool              `json:"add_tasks_section"`
	AutoDeleteAudio     bool              `json:"auto_delete_audio"`
	AppendTimestamp     bool              `json:"append_timestamp"`
	ConverterHost       string            `json:"converter_host"`
	ConverterPort       int               `json:"converter_port"`
}

// DefaultSettings returns the settings a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{
		TodoTriggerTags:     append([]string(nil), DefaultTodoTriggerTags...),
		DefaultMode:         ModeLiteral,
		HierarchicalTasks:   true,
		CreatePage:          true,
		PageReference:       PageReferenceInline,
		PageReferenceFormat: "📝 [[{title}]]",
		AddTasksSection:     true,
		AppendTimestamp:     true,
		ConverterHost:       "127.0.0.1",
		ConverterPort:       3456,
	}
}

// ParseTagList splits a comma separated tag list such as "#todo, #task".
func ParseTagList(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
