package pages

import (
	"fmt"
	"strings"
	"time"

	"github.com/benvon/voiceflow/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultReferenceFormat is used when no backlink format is configured.
	DefaultReferenceFormat = "📝 [[{title}]]"
	// UntitledPage names pages created without a usable title.
	UntitledPage = "Untitled Voice Note"

	timestampLayout = "2006-01-02 15:04"
)

// Files is the graph storage the writer needs.
type Files interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	Exists(name string) (bool, error)
}

// Graph reads and edits pages in a graph directory.
type Graph struct {
	files  Files
	logger *zap.Logger
}

// NewGraph creates a Graph over files.
func NewGraph(files Files, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{files: files, logger: logger}
}

// ReadBlock loads the referenced block.
func (g *Graph) ReadBlock(ref BlockRef) (*Block, error) {
	data, err := g.files.ReadFile(ref.Page)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %s: %w", ref.Page, err)
	}
	return locate(splitLines(data), ref)
}

func (g *Graph) editBlock(ref BlockRef, edit func(lines []string, b *Block) []string) error {
	data, err := g.files.ReadFile(ref.Page)
	if err != nil {
		return fmt.Errorf("failed to read page %s: %w", ref.Page, err)
	}
	lines := splitLines(data)
	b, err := locate(lines, ref)
	if err != nil {
		return err
	}
	if err := g.files.WriteFile(ref.Page, joinLines(edit(lines, b))); err != nil {
		return fmt.Errorf("failed to write page %s: %w", ref.Page, err)
	}
	return nil
}

// FormatReference renders a backlink to title using format's {title} slot.
func FormatReference(format, title string) string {
	if strings.TrimSpace(format) == "" {
		format = DefaultReferenceFormat
	}
	if !strings.Contains(format, "{title}") {
		return format + " [[" + title + "]]"
	}
	return strings.ReplaceAll(format, "{title}", title)
}

// AddReference links the block to a page: appended to the bullet line
// (inline), as a new last child (child), or not at all (none).
func (g *Graph) AddReference(ref BlockRef, mode models.PageReferenceMode, text string) error {
	switch mode {
	case models.PageReferenceNone, "":
		return nil
	case models.PageReferenceInline:
		return g.editBlock(ref, func(lines []string, b *Block) []string {
			lines[b.start] = strings.TrimRight(lines[b.start], " ") + " " + text
			return lines
		})
	case models.PageReferenceChild:
		return g.editBlock(ref, func(lines []string, b *Block) []string {
			child := strings.Repeat("\t", b.depth+1) + "- " + text
			out := make([]string, 0, len(lines)+1)
			out = append(out, lines[:b.subtreeEnd]...)
			out = append(out, child)
			return append(out, lines[b.subtreeEnd:]...)
		})
	default:
		return fmt.Errorf("unknown page reference mode %q", mode)
	}
}

// RemoveFromBlock deletes every occurrence of text from the block's own lines.
func (g *Graph) RemoveFromBlock(ref BlockRef, text string) error {
	if text == "" {
		return nil
	}
	return g.editBlock(ref, func(lines []string, b *Block) []string {
		for i := b.start; i < b.contentEnd; i++ {
			if !strings.Contains(lines[i], text) {
				continue
			}
			var prefix string
			if i == b.start {
				prefix = bulletRe.FindString(lines[i])
			} else {
				prefix = lines[i][:len(lines[i])-len(strings.TrimLeft(lines[i], " \t"))]
			}
			rest := strings.ReplaceAll(lines[i][len(prefix):], text, "")
			lines[i] = prefix + strings.Join(strings.Fields(rest), " ")
		}
		return lines
	})
}

// TaskLine is one entry of the page's Tasks section.
type TaskLine struct {
	Title string
	Depth int
}

// Page is a transcription page to write.
type Page struct {
	Title      string
	Summary    *string
	Transcript string
	Tasks      []TaskLine
	// RecordedAt is written as a page property when non-zero.
	RecordedAt time.Time
}

// PagePath returns the graph-relative file of a page title.
func PagePath(title string) string {
	return "pages/" + title + ".md"
}

func block(heading, body string) []string {
	lines := []string{"- " + heading}
	for _, l := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		lines = append(lines, "  "+l)
	}
	return lines
}

// WritePage creates the page, or appends to it when a page with the same
// title exists. It returns the title actually used.
func (g *Graph) WritePage(p Page) (string, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = UntitledPage
	}
	file := PagePath(title)

	exists, err := g.files.Exists(file)
	if err != nil {
		return "", fmt.Errorf("failed to check page %s: %w", file, err)
	}

	var lines []string
	if exists {
		data, err := g.files.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read page %s: %w", file, err)
		}
		lines = splitLines(data)
	} else {
		lines = append(lines, "source:: transcript")
		if !p.RecordedAt.IsZero() {
			lines = append(lines, "recorded:: "+p.RecordedAt.Format(timestampLayout))
		}
		lines = append(lines, "")
	}

	summary := "_(no summary)_"
	if p.Summary != nil && strings.TrimSpace(*p.Summary) != "" {
		summary = strings.TrimSpace(*p.Summary)
	}
	lines = append(lines, block("## Summary", summary)...)
	lines = append(lines, block("## Transcript", p.Transcript)...)

	if len(p.Tasks) > 0 {
		lines = append(lines, "- ## Tasks")
		for _, t := range p.Tasks {
			lines = append(lines, strings.Repeat("\t", t.Depth+1)+"- TODO "+t.Title)
		}
	}

	if err := g.files.WriteFile(file, joinLines(lines)); err != nil {
		return "", fmt.Errorf("failed to write page %s: %w", file, err)
	}
	g.logger.Info("page_written",
		zap.String("title", title),
		zap.Bool("appended", exists),
	)
	return title, nil
}
