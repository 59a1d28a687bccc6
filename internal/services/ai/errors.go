package ai

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/benvon/voiceflow/internal/retry"
	"github.com/openai/openai-go/v3"
)

var (
	// ErrMissingAPIKey is returned when no API key is configured
	ErrMissingAPIKey = errors.New("openai api key is not configured")
	// ErrEmptyResponse is returned when the completion has no content
	ErrEmptyResponse = errors.New("empty response from completion API")
	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = errors.New("no choices in response")
	// ErrMalformedResponse is returned when a completion does not match the expected shape
	ErrMalformedResponse = errors.New("malformed completion response")
)

const maxErrorBody = 64 << 10

// toHTTPError converts SDK API errors into *retry.HTTPError so the retry
// predicate and callers can classify them. Other errors pass through.
func toHTTPError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	httpErr := &retry.HTTPError{
		StatusCode: apiErr.StatusCode,
		Type:       apiErr.Type,
		Code:       apiErr.Code,
		Message:    apiErr.Message,
	}
	if httpErr.Type == "" && httpErr.Code == "" {
		fillFromBody(httpErr, apiErr.Response)
	}
	if httpErr.Message == "" {
		httpErr.Message = apiErr.Error()
	}
	return httpErr
}

// fillFromBody reads the structured error from a raw response body. Both the
// wrapped {"error": {...}} and flat shapes are accepted.
func fillFromBody(httpErr *retry.HTTPError, res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return
	}
	httpErr.Body = string(body)

	type errorData struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	var envelope struct {
		Error *errorData `json:"error"`
		errorData
	}
	if json.Unmarshal(body, &envelope) != nil {
		return
	}
	data := envelope.errorData
	if envelope.Error != nil {
		data = *envelope.Error
	}
	httpErr.Type = data.Type
	httpErr.Code = data.Code
	if data.Message != "" {
		httpErr.Message = data.Message
	}
}

func statusOf(err error) int {
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsRateLimitError checks if an error is a retryable rate limit error
func IsRateLimitError(err error) bool {
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests && !httpErr.QuotaExhausted()
	}
	return false
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.QuotaExhausted()
	}
	return false
}

// IsUnauthorized reports whether the API rejected the credential.
func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}
