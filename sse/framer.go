package sse

import "strings"

const (
	// frameDelimiter separates events: a blank line
	frameDelimiter = "\n\n"

	// dataField is the only significant field marker
	dataField = "data:"
)

// Framer accumulates decoded text and extracts complete frames.
// After every Feed the buffer holds at most one incomplete frame.
type Framer struct {
	buf strings.Builder

	// scanned is how much of buf is known to hold no delimiter
	scanned int
}

// NewFramer returns an empty framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends text and returns the data payload of each frame completed by
// it, in wire order. Frames without data lines (comments, keep-alives) are
// dropped.
func (f *Framer) Feed(text string) []string {
	if text == "" {
		return nil
	}
	f.buf.WriteString(text)

	buffered := f.buf.String()
	var payloads []string

	// The last scanned byte may be the first half of a delimiter
	start := max(f.scanned-len(frameDelimiter)+1, 0)
	for {
		i := strings.Index(buffered[start:], frameDelimiter)
		if i == -1 {
			break
		}
		boundary := start + i
		start = 0

		frame := buffered[:boundary]
		buffered = buffered[boundary+len(frameDelimiter):]

		if payload := Payload(frame); payload != "" {
			payloads = append(payloads, payload)
		}
	}

	if len(buffered) != f.buf.Len() {
		f.buf.Reset()
		f.buf.WriteString(buffered)
	}
	f.scanned = len(buffered)
	return payloads
}

// Pending returns the buffered text that does not yet form a complete frame.
func (f *Framer) Pending() string {
	return f.buf.String()
}

// Payload extracts the data payload of one raw frame: every "data:" line with
// the marker and one leading space stripped, joined by newlines.
func Payload(frame string) string {
	var lines []string
	for _, line := range strings.Split(frame, "\n") {
		value, ok := strings.CutPrefix(line, dataField)
		if !ok {
			continue
		}
		lines = append(lines, strings.TrimPrefix(value, " "))
	}
	return strings.Join(lines, "\n")
}
