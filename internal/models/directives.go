package models

// Priority levels accepted by the task manager. Level 2 is never produced.
const (
	PriorityLow    = 1
	PriorityMedium = 3
	PriorityUrgent = 4
)

// Directives describes how a single voice note should be processed.
// It is built once by the directive parser and treated as read-only afterwards.
type Directives struct {
	CreateTodo      bool     `json:"create_todo"`
	UseAI           bool     `json:"use_ai"`
	ProjectID       string   `json:"project_id,omitempty"`
	ProjectName     string   `json:"project_name,omitempty"`
	Labels          []string `json:"labels"`
	Priority        int      `json:"priority"`
	DueDate         string   `json:"due_date,omitempty"`
	CleanText       string   `json:"clean_text"`
	MasterTaskTitle string   `json:"master_task_title,omitempty"`
	ExtractedTags   []string `json:"extracted_tags"`
}

// ParseResult is the directive parser output shown to callers, with the
// hashtags written in the block itself.
type ParseResult struct {
	Directives
	BlockTags []string `json:"block_tags"`
}

// Mode returns the processing mode implied by UseAI.
func (d Directives) Mode() TranscriptionMode {
	if d.UseAI {
		return ModeAI
	}
	return ModeLiteral
}
