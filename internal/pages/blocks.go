// Package pages reads and edits note blocks in a markdown graph and writes
// transcription pages into it.
package pages

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/benvon/voiceflow/internal/models"
)

var (
	// ErrBlockNotFound is returned when a block reference does not resolve.
	ErrBlockNotFound = errors.New("block not found")

	bulletRe = regexp.MustCompile(`^(\t*)- ?`)
	idPropRe = regexp.MustCompile(`^\s*id::\s*(\S+)\s*$`)
)

// BlockRef points at a block in a page.
type BlockRef = models.BlockRef

// Block is a located block.
type Block struct {
	Ref BlockRef
	// Content is the block text without the bullet, continuation indent and
	// property lines.
	Content string

	depth      int
	start      int // bullet line index
	contentEnd int // exclusive end of the block's own lines
	subtreeEnd int // exclusive end including children
}

func bulletDepth(line string) (int, bool) {
	m := bulletRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return len(m[1]), true
}

func locate(lines []string, ref BlockRef) (*Block, error) {
	start := -1
	switch {
	case ref.ID != "":
		for i, line := range lines {
			if m := idPropRe.FindStringSubmatch(line); m != nil && m[1] == ref.ID {
				for j := i; j >= 0; j-- {
					if _, ok := bulletDepth(lines[j]); ok {
						start = j
						break
					}
				}
				break
			}
		}
	case ref.Line >= 1 && ref.Line <= len(lines):
		for j := ref.Line - 1; j >= 0; j-- {
			if _, ok := bulletDepth(lines[j]); ok {
				start = j
				break
			}
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, ref)
	}

	depth, _ := bulletDepth(lines[start])
	b := &Block{Ref: ref, depth: depth, start: start, contentEnd: len(lines), subtreeEnd: len(lines)}
	for i := start + 1; i < len(lines); i++ {
		if d, ok := bulletDepth(lines[i]); ok {
			if b.contentEnd == len(lines) {
				b.contentEnd = i
			}
			if d <= depth {
				b.subtreeEnd = i
				break
			}
		}
	}

	var content []string
	for i := start; i < b.contentEnd; i++ {
		line := lines[i]
		if i == start {
			line = bulletRe.ReplaceAllString(line, "")
		} else {
			line = strings.TrimPrefix(line, strings.Repeat("\t", depth))
			line = strings.TrimPrefix(line, "  ")
		}
		if idPropRe.MatchString(line) {
			continue
		}
		content = append(content, line)
	}
	b.Content = strings.TrimRight(strings.Join(content, "\n"), "\n ")
	return b, nil
}

func splitLines(data []byte) []string {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}
