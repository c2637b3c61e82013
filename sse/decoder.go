// Package sse parses provider event streams: a byte-level Server-Sent-Events
// decoder plus a typed demultiplexer that turns raw events into the ordered,
// per-block event sequence consumed by the block assembler.
package sse

import (
	"bufio"
	"bytes"
	"io"
)

// RawEvent is one framed SSE event: its event name (may be empty for
// data-only streams) and the concatenated data payload.
type RawEvent struct {
	Name string
	Data []byte
}

// Decoder frames an SSE byte stream into raw events. It handles multi-line
// data fields (joined with \n per the SSE spec), comment lines, and CRLF
// endings.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a framing decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next framed event, or io.EOF at end of stream.
func (d *Decoder) Next() (RawEvent, error) {
	var ev RawEvent
	var dataLines [][]byte

	flush := func() (RawEvent, bool) {
		if len(dataLines) == 0 && ev.Name == "" {
			return RawEvent{}, false
		}
		ev.Data = bytes.Join(dataLines, []byte("\n"))
		return ev, true
	}

	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				d.consumeLine(&ev, &dataLines, line)
			}
			if out, ok := flush(); ok {
				return out, nil
			}
			if err == io.EOF {
				return RawEvent{}, io.EOF
			}
			return RawEvent{}, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if out, ok := flush(); ok {
				return out, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		d.consumeLine(&ev, &dataLines, line)
	}
}

func (d *Decoder) consumeLine(ev *RawEvent, dataLines *[][]byte, line []byte) {
	switch {
	case bytes.HasPrefix(line, []byte("event:")):
		ev.Name = string(trimFieldValue(line[len("event:"):]))
	case bytes.HasPrefix(line, []byte("data:")):
		val := trimFieldValue(line[len("data:"):])
		*dataLines = append(*dataLines, append([]byte(nil), val...))
	}
	// Other fields (id, retry) are not used by either provider dialect.
}

func trimFieldValue(v []byte) []byte {
	if len(v) > 0 && v[0] == ' ' {
		v = v[1:]
	}
	return v
}
