// Package sse turns a chunked Server-Sent-Events body into data payloads.
//
// A Decoder converts raw byte chunks into UTF-8 text, carrying multi-byte
// sequences that straddle a chunk boundary over to the next call. A Framer
// buffers that text and yields the data payload of every complete frame.
// Neither type is safe for concurrent use; each stream owns its own pair.
package sse

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder is a stateful UTF-8 decoder for a chunked byte stream.
// Invalid bytes are replaced with U+FFFD; decoding never fails.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

// NewDecoder returns a decoder with no buffered input.
func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode returns the text for chunk, holding back an incomplete trailing
// multi-byte sequence until the next call supplies the rest.
func (d *Decoder) Decode(chunk []byte) string {
	src := append(d.pending, chunk...)
	text, rest := d.transform(src, false)
	d.pending = append(d.pending[:0], rest...)
	return text
}

// Flush decodes anything still buffered at end of stream. A dangling partial
// sequence becomes U+FFFD. The decoder is reset and can be reused.
func (d *Decoder) Flush() string {
	text, _ := d.transform(d.pending, true)
	d.pending = d.pending[:0]
	d.t.Reset()
	return text
}

// Buffered reports how many bytes are held back for the next chunk.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}

func (d *Decoder) transform(src []byte, atEOF bool) (string, []byte) {
	// Worst case every byte is invalid and expands to a 3-byte U+FFFD.
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	var out []byte

	for {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]

		switch {
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			return string(out), src
		default:
			// nil, or an error the UTF-8 decoder never returns in practice;
			// either way nothing useful is left to carry over.
			return string(out), nil
		}
	}
}
