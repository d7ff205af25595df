package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gossipnode/internal/envelope"
)

func TestEmitWritesCSVLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_9001.log")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Emit(Record{TimestampMs: 1000, Event: Send, MsgType: envelope.KindGossip, MsgID: "9001_1000_1"})
	s.Emit(Record{TimestampMs: 1001, Event: Receive, MsgType: envelope.KindGossip, MsgID: "9002_1001_1"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), data)
	}
	if lines[0] != "1000,SEND,GOSSIP,9001_1000_1" {
		t.Errorf("line 1 = %q", lines[0])
	}
	if lines[1] != "1001,RECEIVE,GOSSIP,9002_1001_1" {
		t.Errorf("line 2 = %q", lines[1])
	}
}

func TestRecentReturnsCopyBoundedByMaxKeep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_9002.log")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	s.maxKeep = 3

	for i := 0; i < 5; i++ {
		s.Emit(Record{TimestampMs: uint64(i), Event: Send, MsgType: envelope.KindPing, MsgID: "x"})
	}

	recent := s.Recent()
	if len(recent) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(recent))
	}
	if recent[0].TimestampMs != 2 || recent[2].TimestampMs != 4 {
		t.Errorf("recent = %+v, want the last 3 records in order", recent)
	}

	recent[0].MsgID = "mutated"
	if s.Recent()[0].MsgID == "mutated" {
		t.Error("Recent() must return a copy, not the internal slice")
	}
}

func TestOpenTruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_9003.log")
	if err := os.WriteFile(path, []byte("stale data\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected Open to truncate, got %q", data)
	}
}
