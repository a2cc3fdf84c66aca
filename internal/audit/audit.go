// Package audit records who did what in a live workspace session.
// Every validated or rejected input event and every control transition
// produces one record; the sink is the accountability trail for
// shared-control sessions.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record is a single audit entry.
type Record struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Source    string    `json:"source,omitempty"` // originating client identity
	Timestamp time.Time `json:"timestamp"`
}

// Outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeGranted  = "granted"
	OutcomeDenied   = "denied"
	OutcomeReleased = "released"
)

// Sink consumes audit records. Append must never block the input
// pipeline for long; implementations that do real I/O should buffer.
type Sink interface {
	Append(r Record)
}

// FileSink appends records as JSON lines to a file.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFileSink opens (or creates) the audit log at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &FileSink{f: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one record. Encoding errors are swallowed; the audit
// trail must never take down the input pipeline.
func (s *FileSink) Append(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(r)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// MemorySink retains records in memory. Used in tests and as the
// default when no file sink is configured.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores the record.
func (s *MemorySink) Append(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// Records returns a copy of everything recorded so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Nop discards all records.
type Nop struct{}

func (Nop) Append(Record) {}

// WithSource wraps a sink so every record carries the originating
// client identity, typically the viewer hostname.
func WithSource(sink Sink, source string) Sink {
	if source == "" {
		return sink
	}
	return &sourcedSink{sink: sink, source: source}
}

type sourcedSink struct {
	sink   Sink
	source string
}

func (s *sourcedSink) Append(r Record) {
	if r.Source == "" {
		r.Source = s.source
	}
	s.sink.Append(r)
}
