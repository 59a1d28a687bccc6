package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/voiceflow/internal/audio"
	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/pages"
	"github.com/benvon/voiceflow/internal/retry"
	"github.com/benvon/voiceflow/internal/services/ai"
	"github.com/benvon/voiceflow/internal/services/todoist"
	"github.com/benvon/voiceflow/internal/session"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindMissingCredential      ErrorKind = "missing_credential"
	KindTransport              ErrorKind = "transport"
	KindUnauthorized           ErrorKind = "unauthorized"
	KindQuota                  ErrorKind = "quota"
	KindRateLimited            ErrorKind = "rate_limited"
	KindMalformedResponse      ErrorKind = "malformed_response"
	KindIntegrationUnavailable ErrorKind = "integration_unavailable"
	KindAudioUnavailable       ErrorKind = "audio_unavailable"
	KindEmptyTranscript        ErrorKind = "empty_transcript"
	KindCancelled              ErrorKind = "cancelled"
	KindInternal               ErrorKind = "internal"
)

// ErrEmptyTranscript is returned when speech-to-text yields only whitespace.
var ErrEmptyTranscript = errors.New("transcription is empty")

// Retryable reports whether a job that failed with this kind is worth
// running again later.
func (k ErrorKind) Retryable() bool {
	return k == KindTransport || k == KindRateLimited
}

// PipelineError is the terminal failure of a run.
type PipelineError struct {
	Kind  ErrorKind
	State models.RunState
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.State, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Message is the user-facing description of the failure.
func (e *PipelineError) Message() string {
	switch e.Kind {
	case KindMissingCredential:
		return "OpenAI API key is not configured"
	case KindUnauthorized:
		return "API key was rejected (401 Unauthorized); check your credentials"
	case KindQuota:
		return "API quota exhausted; check your plan and billing details"
	case KindRateLimited:
		return "API rate limit reached; try again later"
	case KindEmptyTranscript:
		return "transcription returned no text"
	case KindAudioUnavailable:
		return "could not load the audio attachment: " + e.Err.Error()
	default:
		return e.Err.Error()
	}
}

// Classify maps an error from any pipeline collaborator to its kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ai.ErrMissingAPIKey), errors.Is(err, todoist.ErrNotConfigured):
		return KindMissingCredential
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrEmptyTranscript):
		return KindEmptyTranscript
	case errors.Is(err, audio.ErrNoAttachment), errors.Is(err, pages.ErrBlockNotFound),
		errors.Is(err, session.ErrNoGraph):
		return KindAudioUnavailable
	case ai.IsUnauthorized(err):
		return KindUnauthorized
	case ai.IsQuotaError(err):
		return KindQuota
	case ai.IsRateLimitError(err):
		return KindRateLimited
	case errors.Is(err, ai.ErrMalformedResponse), errors.Is(err, ai.ErrEmptyResponse),
		errors.Is(err, ai.ErrNoChoicesInResponse):
		return KindMalformedResponse
	case errors.Is(err, context.DeadlineExceeded), retry.IsTransportError(err):
		return KindTransport
	}
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 500 {
		return KindIntegrationUnavailable
	}
	return KindInternal
}
