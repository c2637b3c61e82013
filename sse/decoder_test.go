package sse

import (
	"io"
	"strings"
	"testing"
)

func collectEvents(t *testing.T, input string) []RawEvent {
	t.Helper()
	dec := NewDecoder(strings.NewReader(input))
	var events []RawEvent
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		events = append(events, ev)
	}
}

func TestDecoderSingleEvent(t *testing.T) {
	events := collectEvents(t, "event: ping\ndata: {}\n\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Name != "ping" {
		t.Errorf("Name = %q, want %q", events[0].Name, "ping")
	}
	if string(events[0].Data) != "{}" {
		t.Errorf("Data = %q, want %q", events[0].Data, "{}")
	}
}

func TestDecoderMultiLineData(t *testing.T) {
	events := collectEvents(t, "data: line one\ndata: line two\n\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := "line one\nline two"
	if string(events[0].Data) != want {
		t.Errorf("Data = %q, want %q", events[0].Data, want)
	}
}

func TestDecoderSkipsComments(t *testing.T) {
	events := collectEvents(t, ": keepalive\n\ndata: real\n\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if string(events[0].Data) != "real" {
		t.Errorf("Data = %q, want %q", events[0].Data, "real")
	}
}

func TestDecoderCRLF(t *testing.T) {
	events := collectEvents(t, "event: message_stop\r\ndata: {\"type\":\"message_stop\"}\r\n\r\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Name != "message_stop" {
		t.Errorf("Name = %q, want %q", events[0].Name, "message_stop")
	}
}

func TestDecoderFlushesAtEOF(t *testing.T) {
	// No trailing blank line before EOF.
	events := collectEvents(t, "data: tail")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if string(events[0].Data) != "tail" {
		t.Errorf("Data = %q, want %q", events[0].Data, "tail")
	}
}

func TestDecoderMultipleEvents(t *testing.T) {
	input := "event: a\ndata: 1\n\nevent: b\ndata: 2\n\n"
	events := collectEvents(t, input)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Name != "a" || events[1].Name != "b" {
		t.Errorf("names = %q, %q; want a, b", events[0].Name, events[1].Name)
	}
}
