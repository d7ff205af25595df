// Package eventlog implements the node's event sink (spec.md §4.8): every
// SEND and new RECEIVE is appended, in emission order, as a CSV record
// (timestamp_ms, event, msg_type, msg_id) to a per-node log file, flushed
// after each write. This file is the only observable side effect besides
// datagrams, so tests and experiments (spec.md §8 scenarios S1-S6) depend
// on its exact shape.
package eventlog

import (
	"fmt"
	"os"
	"sync"

	"gossipnode/internal/envelope"
	"gossipnode/internal/logging"
)

// Event is the kind of sink record.
type Event string

const (
	Send    Event = "SEND"
	Receive Event = "RECEIVE"
)

// Record is one sink entry.
type Record struct {
	TimestampMs uint64
	Event       Event
	MsgType     envelope.Kind
	MsgID       string
}

// Sink appends records to a CSV log file and mirrors them at Debug level
// through internal/logging. It keeps a small ring of recent records in
// memory for ad hoc inspection (e.g. via the observability HTTP surface).
type Sink struct {
	mu      sync.Mutex
	file    *os.File
	recent  []Record
	maxKeep int
}

// Open creates (or truncates) path and returns a Sink backed by it.
func Open(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	return &Sink{file: f, maxKeep: 256}, nil
}

// Emit appends r to the log file, flushing immediately, and mirrors it to
// the leveled logger.
func (s *Sink) Emit(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.file, "%d,%s,%s,%s\n", r.TimestampMs, r.Event, r.MsgType, r.MsgID)
	s.file.Sync()

	s.recent = append(s.recent, r)
	if len(s.recent) > s.maxKeep {
		s.recent = s.recent[len(s.recent)-s.maxKeep:]
	}

	logging.Debug("%s %s %s", r.Event, r.MsgType, r.MsgID)
}

// Recent returns a copy of the most recently emitted records, oldest first.
func (s *Sink) Recent() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.recent))
	copy(out, s.recent)
	return out
}

// Close flushes and closes the underlying log file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
