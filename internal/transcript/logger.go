// Package transcript durably records conversation turns as timestamped lines
// in a local text file.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultPath returns the fallback transcript location in the temp dir.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "conversation.txt")
}

// Logger appends one line per turn. Writes are serialized; callers treat
// failures as non-fatal.
type Logger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewLogger builds a logger writing to path, or to DefaultPath when empty.
func NewLogger(path string) *Logger {
	if path == "" {
		path = DefaultPath()
	}
	return &Logger{path: path, now: time.Now}
}

// Path returns the transcript file location.
func (l *Logger) Path() string {
	return l.path
}

// Append writes one "[timestamp] ROLE: text" line.
func (l *Logger) Append(role, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	ts := l.now().UTC().Format("2006-01-02T15:04:05Z")
	line := fmt.Sprintf("[%s] %s: %s\n", ts, strings.ToUpper(role), strings.TrimSpace(text))
	_, err = f.WriteString(line)
	return err
}

// Tail returns up to maxBytes from the end of the transcript. A missing file
// reads as empty.
func (l *Logger) Tail(maxBytes int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if maxBytes > 0 && len(data) > maxBytes {
		data = data[len(data)-maxBytes:]
	}
	return string(data), nil
}

// Clear removes the transcript file. A missing file is not an error.
func (l *Logger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
