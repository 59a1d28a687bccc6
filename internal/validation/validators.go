package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("transcription_mode", validateTranscriptionMode); err != nil {
		panic(fmt.Sprintf("failed to register transcription_mode validator: %v", err))
	}
	if err := Validate.RegisterValidation("page_reference", validatePageReference); err != nil {
		panic(fmt.Sprintf("failed to register page_reference validator: %v", err))
	}
}

func validateTranscriptionMode(fl validator.FieldLevel) bool {
	return ValidateTranscriptionMode(fl.Field().String()) == nil
}

func validatePageReference(fl validator.FieldLevel) bool {
	return ValidatePageReference(fl.Field().String()) == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateTranscriptionMode validates a TranscriptionMode string value
func ValidateTranscriptionMode(value string) error {
	switch models.TranscriptionMode(value) {
	case models.ModeLiteral, models.ModeAI:
		return nil
	default:
		return fmt.Errorf("invalid mode: %s (must be 'literal' or 'ai')", value)
	}
}

// ValidatePageReference validates a PageReferenceMode string value
func ValidatePageReference(value string) error {
	switch models.PageReferenceMode(value) {
	case models.PageReferenceInline, models.PageReferenceChild, models.PageReferenceNone:
		return nil
	default:
		return fmt.Errorf("invalid page reference: %s (must be 'inline', 'child', or 'none')", value)
	}
}

// ValidateTag checks that a project mapping tag is a single written hashtag.
func ValidateTag(tag string) error {
	if !strings.HasPrefix(tag, "#") || len(tag) < 2 {
		return fmt.Errorf("invalid tag: %q (must start with '#')", tag)
	}
	for _, r := range tag[1:] {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			return fmt.Errorf("invalid tag: %q (only letters, digits, '_' and '-' allowed)", tag)
		}
	}
	return nil
}

// NormalizeTag lowercases tag, adds the leading '#' when missing and
// validates the result.
func NormalizeTag(tag string) (string, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	if err := ValidateTag(tag); err != nil {
		return "", err
	}
	return tag, nil
}
