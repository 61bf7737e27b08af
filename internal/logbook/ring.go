package logbook

import (
	"bytes"
	"sync"
)

// ring keeps the last size rendered log lines for the web tail view.
type ring struct {
	mu    sync.Mutex
	size  int
	lines []string
}

func newRing(size int) *ring {
	return &ring{size: size}
}

// Write implements io.Writer for use inside a zerolog MultiWriter. zerolog
// hands over one complete record per call, newline-terminated.
func (r *ring) Write(p []byte) (int, error) {
	line := string(bytes.TrimRight(p, "\n"))
	if line == "" {
		return len(p), nil
	}
	r.mu.Lock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.size {
		r.lines = r.lines[len(r.lines)-r.size:]
	}
	r.mu.Unlock()
	return len(p), nil
}

func (r *ring) tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}
