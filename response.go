package notes

// MemorySnippet is a single memory recalled for a note.
type MemorySnippet struct {
	// Source names the memory backend that produced the snippet (e.g. "sqlite", "external")
	Source string `json:"source"`

	// Text is the raw memory body
	Text string `json:"text"`

	// Metadata holds optional key/value pairs (note_path, created_at, ...)
	Metadata map[string]string `json:"metadata"`
}

// RetrievalHit is a passage returned by note search.
type RetrievalHit struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// PredictResponse is the final result of a prediction.
//
// The blocking endpoint returns this shape directly. During streaming the same
// value is folded in place by every event (see Apply) and returned when the
// stream ends.
type PredictResponse struct {
	// Output is the generated text
	Output string `json:"output"`

	// Memories replaced wholesale, never merged
	Memories []MemorySnippet `json:"memories"`

	// Retrievals replaced wholesale, never merged
	Retrievals []RetrievalHit `json:"retrievals"`

	// RawProgramOutput carries backend-specific output (model, tokens, ...)
	RawProgramOutput map[string]any `json:"raw_program_output,omitempty"`
}

// NewPredictResponse returns an empty response ready to accumulate events.
func NewPredictResponse() *PredictResponse {
	return &PredictResponse{
		Memories:   []MemorySnippet{},
		Retrievals: []RetrievalHit{},
	}
}

// Apply folds one stream event into the response.
//
// Chunks append to Output. Metadata and complete events replace only the
// fields they carry; absent fields are left untouched. A complete event's
// output replaces whatever the chunks accumulated.
func (r *PredictResponse) Apply(event Event) {
	switch e := event.(type) {
	case ChunkEvent:
		r.Output += e.Delta

	case MetadataEvent:
		r.replace(e.Memories, e.Retrievals, e.RawProgramOutput)

	case CompleteEvent:
		if e.Output != nil {
			r.Output = *e.Output
		}
		r.replace(e.Memories, e.Retrievals, e.RawProgramOutput)
	}
}

func (r *PredictResponse) replace(memories []MemorySnippet, retrievals []RetrievalHit, raw map[string]any) {
	if memories != nil {
		r.Memories = memories
	}
	if retrievals != nil {
		r.Retrievals = retrievals
	}
	if raw != nil {
		r.RawProgramOutput = raw
	}
}

// Metadata returns the current side-channel snapshot.
func (r *PredictResponse) Metadata() Metadata {
	return Metadata{
		Memories:         r.Memories,
		Retrievals:       r.Retrievals,
		RawProgramOutput: r.RawProgramOutput,
	}
}

// Normalize replaces nil slices with empty ones so a decoded blocking
// response has the same shape as a streamed one.
func (r *PredictResponse) Normalize() *PredictResponse {
	if r.Memories == nil {
		r.Memories = []MemorySnippet{}
	}
	if r.Retrievals == nil {
		r.Retrievals = []RetrievalHit{}
	}
	return r
}
