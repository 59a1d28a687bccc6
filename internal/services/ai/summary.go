package ai

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength bounds page titles derived from a summary.
const MaxTitleLength = 70

// SummaryKind tells which variant a SummaryResult holds.
type SummaryKind string

const (
	SummaryKindJSON      SummaryKind = "json"
	SummaryKindPlainText SummaryKind = "plain_text"
)

// SummaryJSON is the structured summarization reply.
type SummaryJSON struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
}

// SummaryResult is either a structured {title, abstract} reply or free text
// carrying a "Title:" line.
type SummaryResult struct {
	Kind      SummaryKind
	JSON      *SummaryJSON
	PlainText string
}

var (
	titleLineRe   = regexp.MustCompile(`(?m)^\s*Title:\s*(.+?)\s*$`)
	unsafeTitleRe = regexp.MustCompile(`[\\/:*?"<>|#\[\]{}^~\x00-\x1f]+`)
	spacesRe      = regexp.MustCompile(`\s+`)
)

// ParseSummary decodes a completion into a SummaryResult. Content that is a
// JSON object with a non-empty title is the JSON variant; anything else is
// plain text.
func ParseSummary(content string) SummaryResult {
	raw := stripCodeFences(content)
	if strings.HasPrefix(raw, "{") {
		var s SummaryJSON
		if err := json.Unmarshal([]byte(raw), &s); err == nil && strings.TrimSpace(s.Title) != "" {
			return SummaryResult{Kind: SummaryKindJSON, JSON: &s}
		}
	}
	return SummaryResult{Kind: SummaryKindPlainText, PlainText: strings.TrimSpace(content)}
}

// Title returns a filesystem-safe title, or "" when the reply has none.
func (s SummaryResult) Title() string {
	switch s.Kind {
	case SummaryKindJSON:
		if s.JSON != nil {
			return SafeTitle(s.JSON.Title)
		}
	case SummaryKindPlainText:
		if m := titleLineRe.FindStringSubmatch(s.PlainText); m != nil {
			return SafeTitle(m[1])
		}
	}
	return ""
}

// Body returns the summary text written to the page.
func (s SummaryResult) Body() string {
	if s.Kind == SummaryKindJSON && s.JSON != nil {
		return strings.TrimSpace(s.JSON.Abstract)
	}
	return s.PlainText
}

// SafeTitle strips characters that are not allowed in page file names,
// collapses whitespace and truncates to MaxTitleLength runes.
func SafeTitle(title string) string {
	t := unsafeTitleRe.ReplaceAllString(title, " ")
	t = strings.TrimSpace(spacesRe.ReplaceAllString(t, " "))
	if utf8.RuneCountInString(t) > MaxTitleLength {
		t = strings.TrimSpace(string([]rune(t)[:MaxTitleLength]))
	}
	return strings.Trim(t, ". ")
}
