// Package audio finds the audio attachment referenced by a note block and
// loads it from the graph, converting AAC through the sidecar when possible.
package audio

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/benvon/voiceflow/internal/models"
	"github.com/benvon/voiceflow/internal/session"
	"go.uber.org/zap"
)

// ErrNoAttachment is returned when a block references no supported audio file.
var ErrNoAttachment = errors.New("no audio file found in block")

var attachmentRe = regexp.MustCompile(`(?i)!\[[^\]]*\]\(([^)]+\.(mp3|mp4|mpeg|mpga|m4a|wav|webm|aac))\)`)

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"mp4":  "audio/mp4",
	"mpeg": "audio/mpeg",
	"mpga": "audio/mpeg",
	"m4a":  "audio/m4a",
	"wav":  "audio/wav",
	"webm": "audio/webm",
	"aac":  "audio/aac",
}

// Attachment is an audio embed found in block text.
type Attachment struct {
	// Markdown is the full embed as written, e.g. "![rec](../assets/a.m4a)".
	Markdown string
	// Path is the graph-relative file path.
	Path string
	// Ext is the lower-cased extension without the dot.
	Ext string
}

// Name returns the file name of the attachment.
func (a Attachment) Name() string {
	return path.Base(a.Path)
}

// Find returns the first audio embed in content.
func Find(content string) (Attachment, bool) {
	m := attachmentRe.FindStringSubmatch(content)
	if m == nil {
		return Attachment{}, false
	}
	return Attachment{
		Markdown: m[0],
		Path:     session.Clean(m[1]),
		Ext:      strings.ToLower(m[2]),
	}, true
}

// Reader reads graph-relative files.
type Reader interface {
	ReadFile(name string) ([]byte, error)
}

// Converter re-encodes AAC audio.
type Converter interface {
	Available(ctx context.Context) bool
	ConvertToM4A(ctx context.Context, data []byte, filename string) ([]byte, error)
}

// Loader loads attachments for upload.
type Loader struct {
	files     Reader
	converter Converter
	logger    *zap.Logger
}

// NewLoader creates a Loader. converter may be nil, in which case AAC files
// are always sent as they are.
func NewLoader(files Reader, converter Converter, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{files: files, converter: converter, logger: logger}
}

// Load reads the attachment. Conversion problems never fail the load; they
// come back as warnings and the original AAC bytes are used.
func (l *Loader) Load(ctx context.Context, att Attachment) (models.AudioFile, []string, error) {
	data, err := l.files.ReadFile(att.Path)
	if err != nil {
		return models.AudioFile{}, nil, fmt.Errorf("failed to read audio file %s: %w", att.Path, err)
	}
	if len(data) == 0 {
		return models.AudioFile{}, nil, fmt.Errorf("audio file %s is empty", att.Path)
	}

	file := models.AudioFile{
		Name:        att.Name(),
		ContentType: contentTypes[att.Ext],
		Data:        data,
	}
	if att.Ext != "aac" {
		return file, nil, nil
	}

	var warnings []string
	if l.converter == nil || !l.converter.Available(ctx) {
		msg := "AAC converter not available, sending AAC directly"
		l.logger.Warn("aac_converter_unavailable", zap.String("file_name", file.Name))
		return file, append(warnings, msg), nil
	}

	converted, err := l.converter.ConvertToM4A(ctx, data, file.Name)
	if err != nil {
		l.logger.Warn("aac_conversion_failed",
			zap.String("file_name", file.Name),
			zap.Error(err),
		)
		return file, append(warnings, "AAC conversion failed, sending AAC directly"), nil
	}

	return models.AudioFile{
		Name:        strings.TrimSuffix(file.Name, path.Ext(file.Name)) + ".m4a",
		ContentType: contentTypes["m4a"],
		Data:        converted,
		Converted:   true,
	}, nil, nil
}
