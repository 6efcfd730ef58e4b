package notes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_Chunk(t *testing.T) {
	event, err := ParseEvent(`{"type":"chunk","delta":"Hel"}`)
	require.NoError(t, err)
	assert.Equal(t, ChunkEvent{Delta: "Hel"}, event)
	assert.Equal(t, EventChunk, event.Type())
}

func TestParseEvent_ChunkEmptyDeltaIsValid(t *testing.T) {
	event, err := ParseEvent(`{"type":"chunk","delta":""}`)
	require.NoError(t, err)
	assert.Equal(t, ChunkEvent{Delta: ""}, event)
}

func TestParseEvent_DuplicateKeysLastWins(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
	}{
		{name: "delta", payload: `{"type":"chunk","delta":"a","delta":"b"}`, want: ChunkEvent{Delta: "b"}},
		{name: "type", payload: `{"type":"metadata","type":"chunk","delta":"x"}`, want: ChunkEvent{Delta: "x"}},
		{name: "escaped key", payload: `{"type":"chunk","delta":"a","\u0064elta":"b"}`, want: ChunkEvent{Delta: "b"}},
		{name: "output", payload: `{"type":"complete","output":"old","output":"new"}`, want: CompleteEvent{Output: stringPtr("new")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseEvent(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, event)
		})
	}

	_, err := ParseEvent(`{"type":"chunk","delta":"a","delta":1}`)
	assert.ErrorIs(t, err, ErrMalformedFrame, "the last delta is not a string")
}

func TestParseEvent_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "not json"},
		{name: "truncated json", payload: `{"type":"chunk","delta":"He`},
		{name: "json array", payload: `[1,2,3]`},
		{name: "chunk without delta", payload: `{"type":"chunk"}`},
		{name: "chunk with numeric delta", payload: `{"type":"chunk","delta":42}`},
		{name: "metadata with bad memory item", payload: `{"type":"metadata","memories":[{"source":1}]}`},
		{name: "complete with bad retrieval item", payload: `{"type":"complete","retrievals":[{"score":"high"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseEvent(tt.payload)
			assert.Nil(t, event)
			assert.ErrorIs(t, err, ErrMalformedFrame)

			var frameErr *FrameError
			require.True(t, errors.As(err, &frameErr))
			assert.Equal(t, tt.payload, frameErr.Payload)
		})
	}
}

func TestParseEvent_UnknownType(t *testing.T) {
	for _, payload := range []string{
		`{"type":"heartbeat"}`,
		`{"delta":"no type"}`,
		`{"type":7}`,
	} {
		event, err := ParseEvent(payload)
		assert.Nil(t, event, payload)
		assert.ErrorIs(t, err, ErrUnknownEventType, payload)
		assert.NotErrorIs(t, err, ErrMalformedFrame, payload)
	}
}

func TestParseEvent_Metadata(t *testing.T) {
	event, err := ParseEvent(`{"type":"metadata","memories":[{"source":"note","text":"x","metadata":{}}]}`)
	require.NoError(t, err)

	meta, ok := event.(MetadataEvent)
	require.True(t, ok)
	require.Len(t, meta.Memories, 1)
	assert.Equal(t, "note", meta.Memories[0].Source)
	assert.Equal(t, "x", meta.Memories[0].Text)
	assert.Nil(t, meta.Retrievals, "absent retrievals must stay nil")
	assert.Nil(t, meta.RawProgramOutput)
}

func TestParseEvent_MetadataWrongTypesTreatedAsAbsent(t *testing.T) {
	event, err := ParseEvent(`{"type":"metadata","memories":"nope","retrievals":null,"raw_program_output":false}`)
	require.NoError(t, err)

	meta := event.(MetadataEvent)
	assert.Nil(t, meta.Memories)
	assert.Nil(t, meta.Retrievals)
	assert.Nil(t, meta.RawProgramOutput)
}

func TestParseEvent_MetadataEmptyArraysArePresent(t *testing.T) {
	event, err := ParseEvent(`{"type":"metadata","memories":[],"retrievals":[]}`)
	require.NoError(t, err)

	meta := event.(MetadataEvent)
	assert.NotNil(t, meta.Memories)
	assert.Empty(t, meta.Memories)
	assert.NotNil(t, meta.Retrievals)
}

func TestParseEvent_Complete(t *testing.T) {
	event, err := ParseEvent(`{"type":"complete","output":"final","retrievals":[{"id":"a.md","score":1.5,"text":"t","metadata":{"title":"A"}}],"raw_program_output":{"model":"m"}}`)
	require.NoError(t, err)

	complete, ok := event.(CompleteEvent)
	require.True(t, ok)
	require.NotNil(t, complete.Output)
	assert.Equal(t, "final", *complete.Output)
	assert.Nil(t, complete.Memories)
	require.Len(t, complete.Retrievals, 1)
	assert.Equal(t, 1.5, complete.Retrievals[0].Score)
	assert.Equal(t, "A", complete.Retrievals[0].Metadata["title"])
	assert.Equal(t, "m", complete.RawProgramOutput["model"])
}

func TestParseEvent_CompleteNonStringOutputIgnored(t *testing.T) {
	event, err := ParseEvent(`{"type":"complete","output":12}`)
	require.NoError(t, err)
	assert.Nil(t, event.(CompleteEvent).Output)
}

func TestStreamCallbacks_Dispatch(t *testing.T) {
	resp := NewPredictResponse()

	var chunks []string
	var metas []Metadata
	callbacks := StreamCallbacks{
		OnChunk:    func(delta string) { chunks = append(chunks, delta) },
		OnMetadata: func(meta Metadata) { metas = append(metas, meta) },
	}

	callbacks.Dispatch(resp, ChunkEvent{Delta: "a"})
	callbacks.Dispatch(resp, MetadataEvent{Memories: []MemorySnippet{{Source: "s", Text: "m"}}})
	callbacks.Dispatch(resp, MetadataEvent{RawProgramOutput: map[string]any{"k": "v"}})
	callbacks.Dispatch(resp, CompleteEvent{Output: stringPtr("done")})

	assert.Equal(t, []string{"a"}, chunks)
	require.Len(t, metas, 2)

	// Second snapshot is the full state, not just the delta
	assert.Len(t, metas[1].Memories, 1)
	assert.Empty(t, metas[1].Retrievals)
	assert.NotNil(t, metas[1].Retrievals)
	assert.Equal(t, "v", metas[1].RawProgramOutput["k"])

	assert.Equal(t, "done", resp.Output)
}

func TestStreamCallbacks_NilCallbacks(t *testing.T) {
	resp := NewPredictResponse()
	var callbacks StreamCallbacks

	assert.NotPanics(t, func() {
		callbacks.Dispatch(resp, ChunkEvent{Delta: "x"})
		callbacks.Dispatch(resp, MetadataEvent{})
	})
	assert.Equal(t, "x", resp.Output)
}

func TestMarshalEvent(t *testing.T) {
	data, err := MarshalEvent(ChunkEvent{Delta: "Hel"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chunk","delta":"Hel"}`, string(data))

	data, err = MarshalEvent(MetadataEvent{Memories: []MemorySnippet{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"metadata","memories":[]}`, string(data), "nil fields are omitted, empty ones kept")

	output := "Hello"
	data, err = MarshalEvent(CompleteEvent{
		Output:     &output,
		Retrievals: []RetrievalHit{{ID: "tea.md", Score: 1.5, Text: "t", Metadata: map[string]string{}}},
	})
	require.NoError(t, err)

	event, err := ParseEvent(string(data))
	require.NoError(t, err)
	complete, ok := event.(CompleteEvent)
	require.True(t, ok)
	require.NotNil(t, complete.Output)
	assert.Equal(t, "Hello", *complete.Output)
	assert.Nil(t, complete.Memories)
	assert.Equal(t, "tea.md", complete.Retrievals[0].ID)
}
