package directive

import (
	"regexp"
	"strings"
)

// stripRules remove directive forms from a transcript. Due date phrases go
// first so "hashtag due date friday" is not half-eaten by the generic tag rule.
var stripRules = []substitution{
	{regexp.MustCompile(`(?i),?\s*(?:hashtag\s+|hash\s+tag\s+)?\bdue\s+date\s+[\w\s]+(\.|,|$)`), "${1}"},
	{regexp.MustCompile(`(?i)\bdeadline\s+[\w\s]+(\.|,|$)`), "${1}"},
	{regexp.MustCompile(`(?i)hashtag\s+to\s+do\b`), ""},
	{regexp.MustCompile(`(?i)hash\s+tag\s+to\s+do\b`), ""},
	{regexp.MustCompile(`(?i)hashtag\s+[\w-]+`), ""},
	{regexp.MustCompile(`(?i)hash\s+tag\s+[\w-]+`), ""},
	{regexp.MustCompile(`(?i)#to\s+do\b`), ""},
	{regexp.MustCompile(`#[\w-]+`), ""},
}

var tidyRules = []substitution{
	{regexp.MustCompile(`\s+`), " "},
	{regexp.MustCompile(`\s+([.,])`), "${1}"},
	{regexp.MustCompile(`,\s*,`), ","},
	{regexp.MustCompile(`,\s*\.`), "."},
	{regexp.MustCompile(`^\s*[,.]\s*`), ""},
	{regexp.MustCompile(`\s*,\s*$`), ""},
}

// Strip removes spoken and written directive tags and due date phrases from
// text and tidies the punctuation left behind. Strip(Strip(s)) == Strip(s).
func Strip(text string) string {
	for {
		next := stripOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func stripOnce(text string) string {
	for _, rule := range stripRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	for _, rule := range tidyRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	return strings.TrimSpace(text)
}
