// Package prompts holds the completion prompt templates used by the pipeline.
package prompts

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// KeySummarize selects the title/summary template.
	KeySummarize = "voiceflow.summarize"
	// KeyTasks selects the task extraction template.
	KeyTasks = "voiceflow.todo-ai"

	// TranscriptPlaceholder is replaced with the transcript when a prompt is rendered.
	TranscriptPlaceholder = "<<<TRANSCRIPT>>>"
	// NotePlaceholder is an alias accepted in custom prompts.
	NotePlaceholder = "<<<NOTE>>>"

	// DefaultTemperature applies to prompts that do not set one.
	DefaultTemperature = 1.0
)

// Prompt is a template plus its sampling temperature.
type Prompt struct {
	Template    string   `yaml:"prompt" json:"prompt"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// Temp returns the prompt temperature or DefaultTemperature when unset.
func (p Prompt) Temp() float64 {
	if p.Temperature == nil {
		return DefaultTemperature
	}
	return *p.Temperature
}

// Render substitutes the transcript into the template. Templates without a
// placeholder get the transcript appended.
func (p Prompt) Render(transcript string) string {
	if strings.Contains(p.Template, TranscriptPlaceholder) || strings.Contains(p.Template, NotePlaceholder) {
		out := strings.ReplaceAll(p.Template, TranscriptPlaceholder, transcript)
		return strings.ReplaceAll(out, NotePlaceholder, transcript)
	}
	if p.Template == "" {
		return transcript
	}
	return p.Template + "\n\nTranscript:\n" + transcript
}

func temp(v float64) *float64 { return &v }

var defaults = map[string]Prompt{
	KeySummarize: {
		Template: `You are an expert meeting/voice-note summarizer.
Summarize the transcript into:
1) Title: a concise, specific, useful title (<= 10 words).
2) Summary: 3-6 bullet points capturing the core ideas and decisions.
3) Key tags: 3-8 #tags that naturally describe topics.

Format STRICTLY as:
Title: <title>
Summary:
- <bullet>
- <bullet>
Tags: #tag1 #tag2 #tag3

Transcript:
` + TranscriptPlaceholder,
		Temperature: temp(0.2),
	},
	KeyTasks: {
		Template: `You convert a voice note into Todoist tasks based on these rules:

- If the note implies a single clear action, return a single task.
- If there are multiple actions, create ONE parent task (a short project-style title)
  then 2-8 balanced, concrete subtasks (not too tiny, not too vague).
- Do NOT include hashtags in task text.
- If dates are mentioned, extract them in natural language (e.g., "tomorrow", "next Friday", or "January 15, 2026").

Return STRICT JSON with this schema:
{
  "mode": "single" | "hierarchy",
  "parent": { "title": "<string>" } | null,
  "tasks": [
    { "title": "<string>", "due": "<string|null>" }
  ]
}

Voice note: ` + TranscriptPlaceholder + `

Only output JSON, no commentary.`,
		Temperature: temp(0.2),
	},
}

// Library resolves prompt keys to templates.
type Library struct {
	prompts map[string]Prompt
}

// Defaults returns a library holding only the built-in templates.
func Defaults() *Library {
	l := &Library{prompts: make(map[string]Prompt, len(defaults))}
	for k, p := range defaults {
		l.prompts[k] = p
	}
	return l
}

// Load returns the built-in templates overridden by the YAML file at path.
// The file maps prompt keys to {prompt, temperature}. An empty path yields Defaults.
func Load(path string) (*Library, error) {
	l := Defaults()
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}

	var overrides map[string]Prompt
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file: %w", err)
	}

	for k, p := range overrides {
		k = strings.TrimSpace(k)
		if k == "" || strings.TrimSpace(p.Template) == "" {
			return nil, fmt.Errorf("prompt %q has no template", k)
		}
		if p.Temperature == nil {
			if base, ok := l.prompts[k]; ok {
				p.Temperature = base.Temperature
			}
		}
		l.prompts[k] = p
	}
	return l, nil
}

// Get returns the prompt registered under keyOrText. Unknown input is treated
// as a literal template with the default temperature.
func (l *Library) Get(keyOrText string) Prompt {
	k := strings.TrimSpace(keyOrText)
	if k == "" {
		return Prompt{}
	}
	if p, ok := l.prompts[k]; ok {
		return p
	}
	return Prompt{Template: k}
}

// Keys lists the registered prompt keys in sorted order.
func (l *Library) Keys() []string {
	keys := make([]string, 0, len(l.prompts))
	for k := range l.prompts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
