package sse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFramer_SingleFrame(t *testing.T) {
	f := NewFramer()
	payloads := f.Feed("data: {\"type\":\"chunk\",\"delta\":\"hi\"}\n\n")

	assert.Equal(t, []string{`{"type":"chunk","delta":"hi"}`}, payloads)
	assert.Equal(t, "", f.Pending())
}

func TestFramer_IncompleteFrameBuffered(t *testing.T) {
	f := NewFramer()

	assert.Empty(t, f.Feed("data: {\"a\":"))
	assert.Empty(t, f.Feed("1}\n"))
	assert.Equal(t, "data: {\"a\":1}\n", f.Pending())

	assert.Equal(t, []string{`{"a":1}`}, f.Feed("\n"))
	assert.Equal(t, "", f.Pending())
}

func TestFramer_MultipleFramesInOneChunk(t *testing.T) {
	f := NewFramer()
	payloads := f.Feed("data: one\n\ndata: two\n\ndata: thr")

	assert.Equal(t, []string{"one", "two"}, payloads)
	assert.Equal(t, "data: thr", f.Pending())
	assert.NotContains(t, f.Pending(), "\n\n")
}

func TestFramer_DropsCommentAndEmptyFrames(t *testing.T) {
	f := NewFramer()
	payloads := f.Feed(": keep-alive\n\nevent: ping\n\ndata:\n\ndata: real\n\n")

	assert.Equal(t, []string{"real"}, payloads)
}

func TestFramer_EmptyFeed(t *testing.T) {
	f := NewFramer()
	assert.Nil(t, f.Feed(""))
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{name: "single line", frame: "data: {\"x\":1}", want: `{"x":1}`},
		{name: "no space after marker", frame: "data:{\"x\":1}", want: `{"x":1}`},
		{name: "only one space stripped", frame: "data:   indented", want: "  indented"},
		{name: "multi-line data", frame: "data: {\"x\":\ndata: 1}", want: "{\"x\":\n1}"},
		{name: "other fields ignored", frame: "id: 7\nevent: chunk\ndata: body\nretry: 10", want: "body"},
		{name: "comment only", frame: ": hello", want: ""},
		{name: "empty frame", frame: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Payload(tt.frame))
		})
	}
}

func TestFramer_ChunkBoundaryInvariance(t *testing.T) {
	stream := "data: {\"type\":\"chunk\",\"delta\":\"Hél\"}\n\n" +
		": comment\n\n" +
		"data: {\"type\":\"metadata\",\n" +
		"data: \"memories\":[]}\n\n" +
		"data: {\"type\":\"complete\",\"output\":\"Hélló €\"}\n\n"

	whole := NewFramer().Feed(stream)
	assert.Len(t, whole, 3)

	input := []byte(stream)
	for split := 0; split <= len(input); split++ {
		d := NewDecoder()
		f := NewFramer()

		var got []string
		got = append(got, f.Feed(d.Decode(input[:split]))...)
		got = append(got, f.Feed(d.Decode(input[split:]))...)
		got = append(got, f.Feed(d.Flush())...)

		assert.Equal(t, whole, got, "split at %d", split)
		assert.Equal(t, "", strings.TrimSpace(f.Pending()), "split at %d", split)
	}
}

func TestFramer_ByteByByte(t *testing.T) {
	big := strings.Repeat("x", 64<<10)
	stream := "data: " + big + "\n\ndata: a\ndata: b\n\n: ping\n\ndata: tail\n\n"

	f := NewFramer()
	var got []string
	for i := 0; i < len(stream); i++ {
		got = append(got, f.Feed(stream[i:i+1])...)
	}

	assert.Equal(t, []string{big, "a\nb", "tail"}, got)
	assert.Equal(t, "", f.Pending())
}

func TestFramer_DelimiterSplitAfterLongPending(t *testing.T) {
	f := NewFramer()

	assert.Empty(t, f.Feed("data: "+strings.Repeat("y", 1000)))
	assert.Empty(t, f.Feed("\n"))
	assert.Equal(t, []string{strings.Repeat("y", 1000)}, f.Feed("\ndata: next"))
	assert.Equal(t, "data: next", f.Pending())
}
