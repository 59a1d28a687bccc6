// Package session holds the graph directory the process has been granted and
// the settings resolved for it. A Session is passed explicitly to everything
// that reads or writes the graph.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/benvon/voiceflow/internal/models"
)

var (
	// ErrNoGraph is returned when the session was created without a directory.
	ErrNoGraph = errors.New("no graph directory granted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session is closed")
)

// Session is a handle on one graph directory. The directory is opened on first
// use and stays open until Close. All paths are graph-relative and cannot
// escape the directory.
type Session struct {
	dir      string
	settings models.Settings

	once sync.Once
	root *os.Root
	err  error

	mu     sync.RWMutex
	closed bool
}

// New returns a session for dir. Nothing is opened until first use.
func New(dir string, settings models.Settings) *Session {
	return &Session{dir: dir, settings: settings}
}

// Dir returns the graph directory.
func (s *Session) Dir() string {
	return s.dir
}

// Settings returns the resolved settings.
func (s *Session) Settings() models.Settings {
	return s.settings
}

func (s *Session) acquire() (*os.Root, error) {
	s.once.Do(func() {
		if strings.TrimSpace(s.dir) == "" {
			s.err = ErrNoGraph
			return
		}
		s.root, s.err = os.OpenRoot(s.dir)
		if s.err != nil {
			s.err = fmt.Errorf("failed to open graph directory: %w", s.err)
		}
	})
	return s.root, s.err
}

func (s *Session) withRoot(fn func(root *os.Root) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	root, err := s.acquire()
	if err != nil {
		return err
	}
	return fn(root)
}

// Clean turns a reference as written in a note ("../assets/a.m4a", "./pages/x.md")
// into a graph-relative path.
func Clean(name string) string {
	name = strings.TrimSpace(name)
	for {
		switch {
		case strings.HasPrefix(name, "../"):
			name = name[3:]
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		default:
			return path.Clean(name)
		}
	}
}

// ReadFile reads a graph-relative file.
func (s *Session) ReadFile(name string) ([]byte, error) {
	var data []byte
	err := s.withRoot(func(root *os.Root) error {
		var err error
		data, err = root.ReadFile(Clean(name))
		return err
	})
	return data, err
}

// WriteFile writes a graph-relative file, creating parent directories.
func (s *Session) WriteFile(name string, data []byte) error {
	return s.withRoot(func(root *os.Root) error {
		name = Clean(name)
		if dir := path.Dir(name); dir != "." {
			if err := root.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		return root.WriteFile(name, data, 0o644)
	})
}

// Exists reports whether a graph-relative file exists.
func (s *Session) Exists(name string) (bool, error) {
	var exists bool
	err := s.withRoot(func(root *os.Root) error {
		_, err := root.Stat(Clean(name))
		switch {
		case err == nil:
			exists = true
			return nil
		case errors.Is(err, fs.ErrNotExist):
			return nil
		default:
			return err
		}
	})
	return exists, err
}

// Remove deletes a graph-relative file.
func (s *Session) Remove(name string) error {
	return s.withRoot(func(root *os.Root) error {
		return root.Remove(Clean(name))
	})
}

// Close releases the graph directory. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.root != nil {
		return s.root.Close()
	}
	return nil
}
