// Package logbook owns the activity log: one record per enrollment attempt,
// per run-state transition and per completion. Records go to logs/latest.log,
// to a per-run timestamped file and into an in-memory ring the web layer
// reads back.
package logbook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const defaultRingSize = 200

// Book is safe for concurrent use; zerolog serializes writes and the ring
// has its own lock.
type Book struct {
	log   zerolog.Logger
	ring  *ring
	files []*os.File
}

// Open creates dir if needed, truncates latest.log and opens a second file
// named after the current run's start time, mirroring every record to both.
func Open(dir string) (*Book, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	latest, err := os.Create(filepath.Join(dir, "latest.log"))
	if err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	stamp := time.Now().Format("2006-01-02 15-04-05")
	run, err := os.OpenFile(filepath.Join(dir, stamp+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		latest.Close()
		return nil, fmt.Errorf("logbook: %w", err)
	}
	b := New(io.MultiWriter(latest, run))
	b.files = []*os.File{latest, run}
	return b, nil
}

// New builds a Book over an arbitrary sink. Tests pass io.Discard.
func New(w io.Writer) *Book {
	r := newRing(defaultRingSize)
	return &Book{
		log:  zerolog.New(io.MultiWriter(w, r)).With().Timestamp().Logger(),
		ring: r,
	}
}

func (b *Book) Close() error {
	var first error
	for _, f := range b.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Logger exposes the underlying logger for records that don't fit the
// attempt/transition/completion helpers.
func (b *Book) Logger() *zerolog.Logger { return &b.log }

// Tail returns up to n most recent rendered records, oldest first.
func (b *Book) Tail(n int) []string { return b.ring.tail(n) }

func (b *Book) Attempt(courseID int64, name string, acquired bool, response string, err error) {
	if err != nil {
		b.log.Warn().Str("event", "attempt").
			Int64("course", courseID).Str("name", name).
			Err(err).Msg("enroll request failed")
		return
	}
	b.log.Info().Str("event", "attempt").
		Int64("course", courseID).Str("name", name).
		Bool("acquired", acquired).Str("response", response).
		Msg("enroll request sent")
}

func (b *Book) Transition(state string) {
	b.log.Info().Str("event", "transition").Str("state", state).Msg("run state changed")
}

func (b *Book) Completion(total int) {
	b.log.Info().Str("event", "completion").Int("courses", total).Msg("all courses acquired")
}
