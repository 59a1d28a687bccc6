// Package directive extracts processing directives (mode switches, priorities,
// due dates, project routing) from spoken transcripts and written note text.
//
// The extraction is a fixed sequence of pattern matches. It never fails: any
// lookup that finds nothing leaves the default in place.
package directive

import (
	"regexp"
	"strings"

	"github.com/benvon/voiceflow/internal/models"
)

// fallbackTriggers are always honoured in addition to the configured trigger tags.
var fallbackTriggers = []string{"#todo", "#to-do", "#task", "#todos", "#tasks"}

type substitution struct {
	re   *regexp.Regexp
	repl string
}

// normalizeRules turn spoken hashtags into written ones. The "to do" rules must
// run before the generic word rule, otherwise "hashtag to do" becomes "#to do".
var normalizeRules = []substitution{
	{regexp.MustCompile(`(?i)hashtag\s+to\s+do\b`), "#todo"},
	{regexp.MustCompile(`(?i)hash\s+tag\s+to\s+do\b`), "#todo"},
	{regexp.MustCompile(`(?i)hashtag\s+(\w+(?:-\w+)*)`), "#${1}"},
	{regexp.MustCompile(`(?i)hash\s+tag\s+(\w+(?:-\w+)*)`), "#${1}"},
	{regexp.MustCompile(`(?i)#to-do\b`), "#todo"},
	{regexp.MustCompile(`(?i)#to\s+do\b`), "#todo"},
}

var (
	aiTagRe      = regexp.MustCompile(`(?i)#ai\b`)
	literalTagRe = regexp.MustCompile(`(?i)#(?:direct|literal)\b`)

	urgentTagRe = regexp.MustCompile(`(?i)#(?:urgent|high)\b`)
	mediumTagRe = regexp.MustCompile(`(?i)#medium\b`)
	lowTagRe    = regexp.MustCompile(`(?i)#low\b`)

	writtenTagRe = regexp.MustCompile(`#(\w+)`)
)

// Parse scans transcript and blockText for directives and returns the
// resulting configuration. Tags are detected in both sources; CleanText and the
// due date phrase are taken from the transcript.
func Parse(transcript, blockText string, settings models.Settings) models.Directives {
	d := models.Directives{
		UseAI:         settings.DefaultMode == models.ModeAI,
		Labels:        append([]string{}, settings.DefaultLabels...),
		Priority:      models.PriorityLow,
		ExtractedTags: []string{},
	}

	normalized := Normalize(transcript + " " + blockText)
	lower := strings.ToLower(normalized)

	triggers := settings.TodoTriggerTags
	if len(triggers) == 0 {
		triggers = models.DefaultTodoTriggerTags
	}
	for _, trigger := range append(append([]string{}, triggers...), fallbackTriggers...) {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger == "" {
			continue
		}
		if strings.Contains(lower, trigger) {
			d.CreateTodo = true
			d.ExtractedTags = append(d.ExtractedTags, "#todo")
			break
		}
	}

	aiIndex := lastIndex(aiTagRe, normalized)
	literalIndex := lastIndex(literalTagRe, normalized)
	switch {
	case aiIndex > literalIndex:
		d.UseAI = true
		d.ExtractedTags = append(d.ExtractedTags, "#ai")
	case literalIndex > aiIndex:
		d.UseAI = false
		d.ExtractedTags = append(d.ExtractedTags, "#direct")
	}

	for _, m := range settings.ProjectMappings {
		if m.Tag == "" {
			continue
		}
		if strings.Contains(normalized, m.Tag) {
			d.ProjectID = m.ProjectID
			d.ProjectName = m.ProjectName
			d.ExtractedTags = append(d.ExtractedTags, m.Tag)
			break
		}
	}
	if d.ProjectID == "" && settings.DefaultProjectID != "" {
		d.ProjectID = settings.DefaultProjectID
	}

	d.DueDate = ExtractDueDate(transcript)
	if d.DueDate == "" {
		d.DueDate = ExtractDueDate(blockText)
	}

	switch {
	case urgentTagRe.MatchString(normalized):
		d.Priority = models.PriorityUrgent
		d.ExtractedTags = append(d.ExtractedTags, "#urgent")
	case mediumTagRe.MatchString(normalized):
		d.Priority = models.PriorityMedium
		d.ExtractedTags = append(d.ExtractedTags, "#medium")
	case lowTagRe.MatchString(normalized):
		d.Priority = models.PriorityLow
		d.ExtractedTags = append(d.ExtractedTags, "#low")
	}

	d.CleanText = Strip(transcript)

	if d.UseAI {
		if i := strings.Index(d.CleanText, ":"); i > 0 && i < 50 {
			d.MasterTaskTitle = strings.TrimSpace(d.CleanText[:i])
		}
	}

	return d
}

// Normalize rewrites spoken hashtags ("hashtag urgent", "hash tag to do") into
// their written form ("#urgent", "#todo").
func Normalize(text string) string {
	for _, rule := range normalizeRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	return text
}

// BlockTags lists every written hashtag in a block, in order of appearance.
func BlockTags(content string) []string {
	matches := writtenTagRe.FindAllStringSubmatch(content, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, "#"+m[1])
	}
	return tags
}

func lastIndex(re *regexp.Regexp, s string) int {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][0]
}
