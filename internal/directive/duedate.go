package directive

import (
	"regexp"
	"strings"
)

// duePhraseRules are tried in order; the capture runs up to the next spoken
// hashtag or the end of the text.
var duePhraseRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)hashtag\s+due\s+date\s+(.+?)(?:\s*hashtag|$)`),
	regexp.MustCompile(`(?i)hash\s+tag\s+due\s+date\s+(.+?)(?:\s*hashtag|$)`),
	regexp.MustCompile(`(?i)\bdue\s+date\s+(.+?)(?:\s*hashtag|$)`),
	regexp.MustCompile(`(?i)\bby\s+(.+?)(?:\s+hashtag|\s+hash tag|$)`),
	regexp.MustCompile(`(?i)\bdeadline\s+(.+?)(?:\s+hashtag|\s+hash tag|$)`),
	regexp.MustCompile(`(?i)\bdue\s+(.+?)(?:\s+hashtag|\s+hash tag|$)`),
}

var (
	trailingPunctRe   = regexp.MustCompile(`[.,;]?\s*$`)
	trailingHashtagRe = regexp.MustCompile(`(?i)\s*(?:hashtag|hash tag).*$`)
)

type dateKeyword struct {
	re *regexp.Regexp
	// value is returned as-is; empty means use the match (or its first group).
	value string
}

var dateKeywords = []dateKeyword{
	{regexp.MustCompile(`(?i)\btomorrow\b`), "tomorrow"},
	{regexp.MustCompile(`(?i)\btoday\b`), "today"},
	{regexp.MustCompile(`(?i)\bnext week\b`), "next week"},
	{regexp.MustCompile(`(?i)\bnext month\b`), "next month"},
	{regexp.MustCompile(`(?i)\bnext friday\b`), "next Friday"},
	{regexp.MustCompile(`(?i)\bthis friday\b`), "this Friday"},
	{regexp.MustCompile(`(?i)\bmonday\b`), "Monday"},
	{regexp.MustCompile(`(?i)\btuesday\b`), "Tuesday"},
	{regexp.MustCompile(`(?i)\bwednesday\b`), "Wednesday"},
	{regexp.MustCompile(`(?i)\bthursday\b`), "Thursday"},
	{regexp.MustCompile(`(?i)\bfriday\b`), "Friday"},
	{regexp.MustCompile(`(?i)\bsaturday\b`), "Saturday"},
	{regexp.MustCompile(`(?i)\bsunday\b`), "Sunday"},
	{regexp.MustCompile(`(?i)\bin (\d+) days?\b`), "in %s days"},
	{regexp.MustCompile(`(?i)\bin (\d+) weeks?\b`), "in %s weeks"},
	{regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december) \d+`), ""},
}

// ExtractDueDate returns the free-text due date phrase found in text, or ""
// when there is none. The phrase is passed to the task manager verbatim.
func ExtractDueDate(text string) string {
	for _, re := range duePhraseRules {
		m := re.FindStringSubmatch(text)
		if m == nil || m[1] == "" {
			continue
		}
		phrase := strings.TrimSpace(m[1])
		phrase = trailingPunctRe.ReplaceAllString(phrase, "")
		phrase = trailingHashtagRe.ReplaceAllString(phrase, "")
		if phrase != "" && !strings.Contains(phrase, "#") {
			return phrase
		}
	}

	for _, kw := range dateKeywords {
		m := kw.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		switch {
		case kw.value == "":
			return m[0]
		case strings.Contains(kw.value, "%s"):
			return strings.Replace(kw.value, "%s", m[1], 1)
		default:
			return kw.value
		}
	}
	return ""
}
