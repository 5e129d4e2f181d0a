package util

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// maxErrorLineLength is the maximum length for extracted error messages.
const maxErrorLineLength = 200

// maxTailBytes is how much process output a TailBuffer retains.
const maxTailBytes = 4096

// WrapError wraps an error with a descriptive operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// ExtractLastError extracts the last meaningful line from stderr output.
func ExtractLastError(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			if len(line) > maxErrorLineLength {
				return line[:maxErrorLineLength] + "..."
			}
			return line
		}
	}
	return ""
}

// SafeCloseFunc returns a function that closes c and logs any error.
// Intended for use with defer.
func SafeCloseFunc(c io.Closer, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Debug("close failed", "resource", name, "error", err)
		}
	}
}

// TailBuffer keeps the last few kilobytes written to it.
// It is safe for concurrent use.
type TailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

// Write appends p, discarding the oldest bytes beyond the retention limit.
func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - maxTailBytes; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

// String returns the retained output.
func (b *TailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
