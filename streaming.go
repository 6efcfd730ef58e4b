package notes

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// EventType is the value of the "type" discriminator on a stream payload.
type EventType string

const (
	// EventChunk carries a partial output fragment
	EventChunk EventType = "chunk"

	// EventMetadata carries a full replacement of memories/retrievals/raw output
	EventMetadata EventType = "metadata"

	// EventComplete is the terminal event; present fields override the accumulated state
	EventComplete EventType = "complete"
)

// Event is one interpreted stream payload.
// The concrete type is one of ChunkEvent, MetadataEvent, or CompleteEvent.
//
// For slice, map, and pointer fields a nil value means the field was absent
// from the payload; a non-nil empty slice means it was present and empty.
type Event interface {
	Type() EventType
}

// ChunkEvent is a partial output fragment.
type ChunkEvent struct {
	Delta string
}

// MetadataEvent replaces side-channel data on the response.
type MetadataEvent struct {
	Memories         []MemorySnippet
	Retrievals       []RetrievalHit
	RawProgramOutput map[string]any
}

// CompleteEvent signals the terminal state. It does not end the stream;
// only end-of-body does.
type CompleteEvent struct {
	Output           *string
	Memories         []MemorySnippet
	Retrievals       []RetrievalHit
	RawProgramOutput map[string]any
}

func (ChunkEvent) Type() EventType    { return EventChunk }
func (MetadataEvent) Type() EventType { return EventMetadata }
func (CompleteEvent) Type() EventType { return EventComplete }

// Metadata is the snapshot handed to StreamCallbacks.OnMetadata.
// It always reflects the full current state, not a delta.
type Metadata struct {
	Memories         []MemorySnippet
	Retrievals       []RetrievalHit
	RawProgramOutput map[string]any
}

// StreamCallbacks receive live updates while a stream is read.
// Callbacks run synchronously on the reading goroutine, in wire order.
// Both are optional.
type StreamCallbacks struct {
	OnChunk    func(delta string)
	OnMetadata func(meta Metadata)
}

func (c StreamCallbacks) chunk(delta string) {
	if c.OnChunk != nil {
		c.OnChunk(delta)
	}
}

func (c StreamCallbacks) metadata(meta Metadata) {
	if c.OnMetadata != nil {
		c.OnMetadata(meta)
	}
}

// Dispatch applies event to resp and fires the matching callback.
// Complete events have no callback.
func (c StreamCallbacks) Dispatch(resp *PredictResponse, event Event) {
	resp.Apply(event)
	switch e := event.(type) {
	case ChunkEvent:
		c.chunk(e.Delta)
	case MetadataEvent:
		c.metadata(resp.Metadata())
	}
}

// ParseEvent interprets one SSE data payload.
//
// Returns an error wrapping ErrMalformedFrame when the payload is not JSON or
// is missing a required field, and ErrUnknownEventType when the discriminator
// is absent or not recognized. Both are recoverable: the caller drops the
// frame and keeps reading.
func ParseEvent(payload string) (Event, error) {
	if !gjson.Valid(payload) {
		return nil, &FrameError{Payload: payload, Reason: "payload is not valid JSON", Err: ErrMalformedFrame}
	}

	root := gjson.Parse(payload)
	if !root.IsObject() {
		return nil, &FrameError{Payload: payload, Reason: "payload is not a JSON object", Err: ErrMalformedFrame}
	}

	fields := lastFields(root)
	eventType := fields["type"]
	switch EventType(eventType.String()) {
	case EventChunk:
		delta := fields["delta"]
		if delta.Type != gjson.String {
			return nil, &FrameError{Payload: payload, Reason: "chunk event requires a string delta", Err: ErrMalformedFrame}
		}
		return ChunkEvent{Delta: delta.String()}, nil

	case EventMetadata:
		var event MetadataEvent
		if err := parseSideChannel(fields, &event.Memories, &event.Retrievals, &event.RawProgramOutput); err != nil {
			return nil, &FrameError{Payload: payload, Reason: err.Error(), Err: ErrMalformedFrame}
		}
		return event, nil

	case EventComplete:
		var event CompleteEvent
		if output := fields["output"]; output.Type == gjson.String {
			text := output.String()
			event.Output = &text
		}
		if err := parseSideChannel(fields, &event.Memories, &event.Retrievals, &event.RawProgramOutput); err != nil {
			return nil, &FrameError{Payload: payload, Reason: err.Error(), Err: ErrMalformedFrame}
		}
		return event, nil

	default:
		return nil, &FrameError{Payload: payload, Reason: fmt.Sprintf("unknown event type %q", eventType.String()), Err: ErrUnknownEventType}
	}
}

// lastFields indexes the members of a JSON object by key. When a key repeats
// the last occurrence wins, as with JSON.parse.
func lastFields(root gjson.Result) map[string]gjson.Result {
	fields := map[string]gjson.Result{}
	root.ForEach(func(key, value gjson.Result) bool {
		fields[key.String()] = value
		return true
	})
	return fields
}

// parseSideChannel decodes the memories/retrievals/raw_program_output fields
// shared by metadata and complete events. Fields of the wrong JSON type are
// treated as absent.
func parseSideChannel(fields map[string]gjson.Result, memories *[]MemorySnippet, retrievals *[]RetrievalHit, raw *map[string]any) error {
	if field := fields["memories"]; field.IsArray() {
		items := []MemorySnippet{}
		if err := json.Unmarshal([]byte(field.Raw), &items); err != nil {
			return fmt.Errorf("invalid memories: %w", err)
		}
		*memories = items
	}

	if field := fields["retrievals"]; field.IsArray() {
		items := []RetrievalHit{}
		if err := json.Unmarshal([]byte(field.Raw), &items); err != nil {
			return fmt.Errorf("invalid retrievals: %w", err)
		}
		*retrievals = items
	}

	if field := fields["raw_program_output"]; field.IsObject() {
		obj := map[string]any{}
		if err := json.Unmarshal([]byte(field.Raw), &obj); err != nil {
			return fmt.Errorf("invalid raw_program_output: %w", err)
		}
		*raw = obj
	}

	return nil
}

// MarshalEvent encodes an event as a stream payload. Nil fields are omitted
// so the receiver sees them as absent; empty non-nil slices are written as [].
func MarshalEvent(event Event) ([]byte, error) {
	payload := map[string]any{"type": event.Type()}
	switch e := event.(type) {
	case ChunkEvent:
		payload["delta"] = e.Delta
	case MetadataEvent:
		putSideChannel(payload, e.Memories, e.Retrievals, e.RawProgramOutput)
	case CompleteEvent:
		if e.Output != nil {
			payload["output"] = *e.Output
		}
		putSideChannel(payload, e.Memories, e.Retrievals, e.RawProgramOutput)
	default:
		return nil, fmt.Errorf("unsupported event type %T", event)
	}
	return json.Marshal(payload)
}

func putSideChannel(payload map[string]any, memories []MemorySnippet, retrievals []RetrievalHit, raw map[string]any) {
	if memories != nil {
		payload["memories"] = memories
	}
	if retrievals != nil {
		payload["retrievals"] = retrievals
	}
	if raw != nil {
		payload["raw_program_output"] = raw
	}
}
