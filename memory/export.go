package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"

	notes "github.com/haowjy/meridian-notes-go"
)

// SourceExternal is the source given to imported memories that name none.
const SourceExternal = "external"

// ErrUnsupportedExport is returned for JSON that is neither an object nor a list.
var ErrUnsupportedExport = errors.New("memory: unsupported export structure: expected object or list")

// LoadExport reads a memory dump from path. See ParseExport.
func LoadExport(path string) ([]notes.MemorySnippet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memory: read export: %w", err)
	}
	return ParseExport(data)
}

// ParseExport accepts {"memories": [...]}, {"entries": [...]}, a single
// memory object, or a list of memory objects.
//
// Text comes from "text", "summary", or "content", first non-empty wins;
// items without text are skipped. A top-level "note_path" on an item is
// copied into its metadata. Non-string metadata values are stored as JSON.
func ParseExport(data []byte) ([]notes.MemorySnippet, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("memory: export is not valid JSON")
	}

	root := gjson.ParseBytes(data)
	var items []gjson.Result
	switch {
	case root.IsObject():
		if list := root.Get("memories"); list.IsArray() {
			items = list.Array()
		} else if list := root.Get("entries"); list.IsArray() {
			items = list.Array()
		} else {
			items = []gjson.Result{root}
		}
	case root.IsArray():
		items = root.Array()
	default:
		return nil, ErrUnsupportedExport
	}

	snippets := []notes.MemorySnippet{}
	for _, item := range items {
		if !item.IsObject() {
			continue
		}

		text := firstString(item, "text", "summary", "content")
		if text == "" {
			continue
		}

		metadata := map[string]string{}
		item.Get("metadata").ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.String {
				metadata[key.String()] = value.String()
			} else {
				metadata[key.String()] = value.Raw
			}
			return true
		})
		if _, ok := metadata["note_path"]; !ok {
			if notePath := item.Get("note_path").String(); notePath != "" {
				metadata["note_path"] = notePath
			}
		}

		source := item.Get("source").String()
		if source == "" {
			source = SourceExternal
		}

		snippets = append(snippets, notes.MemorySnippet{
			Source:   source,
			Text:     text,
			Metadata: metadata,
		})
	}
	return snippets, nil
}

func firstString(item gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := item.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// Import stores snippets as memories. notePath overrides each snippet's
// metadata note_path when non-empty. Returns the number imported.
func (s *Store) Import(ctx context.Context, snippets []notes.MemorySnippet, notePath string) (int, error) {
	imported := 0
	for _, snippet := range snippets {
		target := notePath
		if target == "" {
			target = snippet.Metadata["note_path"]
		}
		if err := s.Remember(ctx, target, snippet.Text, snippet.Source); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// exportEntry is one memory in a dump.
type exportEntry struct {
	notes.MemorySnippet
	Provider string `json:"provider"`
}

// WriteExport writes memories as {"note_path": ..., "memories": [...]}.
// An empty notePath is written as null.
func WriteExport(w io.Writer, notePath string, memories []notes.MemorySnippet) error {
	entries := make([]exportEntry, 0, len(memories))
	for _, m := range memories {
		entries = append(entries, exportEntry{MemorySnippet: m, Provider: SourceSQLite})
	}

	var notePathField *string
	if notePath != "" {
		notePathField = &notePath
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		NotePath *string       `json:"note_path"`
		Memories []exportEntry `json:"memories"`
	}{notePathField, entries}); err != nil {
		return fmt.Errorf("memory: write export: %w", err)
	}
	return nil
}

// Export writes the memories of notePath (or all memories) to w and returns
// how many were written.
func (s *Store) Export(ctx context.Context, w io.Writer, notePath string) (int, error) {
	memories, err := s.ListMemories(ctx, notePath)
	if err != nil {
		return 0, err
	}
	if err := WriteExport(w, notePath, memories); err != nil {
		return 0, err
	}
	return len(memories), nil
}
