// Package vault reads a directory of markdown notes into the memory store's
// full-text index.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haowjy/meridian-notes-go/memory"
)

// Index is the part of the memory store the indexer writes to.
type Index interface {
	IndexNote(ctx context.Context, n memory.Note) error
	RemoveNote(ctx context.Context, path string) error
}

// Indexer walks a vault and keeps an Index in sync with it.
type Indexer struct {
	root   string
	index  Index
	logger *slog.Logger
}

// NewIndexer returns an indexer for the vault rooted at root.
func NewIndexer(root string, index Index, logger *slog.Logger) (*Indexer, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: %s is not a directory", root)
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Indexer{root: abs, index: index, logger: logger}, nil
}

// Root returns the absolute vault path.
func (ix *Indexer) Root() string {
	return ix.root
}

// IndexAll indexes every markdown file under the vault in path order and
// returns how many were indexed. Unreadable files are logged and skipped.
func (ix *Indexer) IndexAll(ctx context.Context) (int, error) {
	paths, err := markdownFiles(ix.root)
	if err != nil {
		return 0, err
	}

	indexed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		if err := ix.IndexFile(ctx, path); err != nil {
			ix.logger.Warn("skipping note", "path", path, "error", err)
			continue
		}
		indexed++
	}
	ix.logger.Info("vault indexed", "root", ix.root, "notes", indexed)
	return indexed, nil
}

// IndexFile reads and indexes a single markdown file.
func (ix *Indexer) IndexFile(ctx context.Context, path string) error {
	note, err := ReadNote(ix.root, path)
	if err != nil {
		return err
	}
	return ix.index.IndexNote(ctx, note)
}

// RemoveFile drops a file from the index.
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	rel, err := relPath(ix.root, path)
	if err != nil {
		return err
	}
	return ix.index.RemoveNote(ctx, rel)
}

// ReadNote loads the markdown file at path as a note relative to root.
func ReadNote(root, path string) (memory.Note, error) {
	rel, err := relPath(root, path)
	if err != nil {
		return memory.Note{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return memory.Note{}, fmt.Errorf("vault: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return memory.Note{}, fmt.Errorf("vault: %w", err)
	}

	metadata, body := ParseMarkdown(data)
	title := metadata["title"]
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return memory.Note{
		Path:     rel,
		Title:    title,
		Text:     body,
		Metadata: metadata,
		Modified: info.ModTime().UTC(),
	}, nil
}

// ParseMarkdown splits optional YAML front matter from a note body.
// Front matter must open on the first line with "---" and close with a
// "---" line. Front matter that fails to parse yields empty metadata.
// Non-string values are rendered as text; lists and maps as JSON.
func ParseMarkdown(data []byte) (map[string]string, string) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	metadata := map[string]string{}

	if !strings.HasPrefix(text, "---\n") {
		return metadata, strings.TrimSpace(text)
	}

	rest := text[len("---\n"):]
	end := -1
	var body string
	if strings.HasPrefix(rest, "---\n") || rest == "---" {
		end, body = 0, strings.TrimPrefix(rest, "---")
	} else if i := strings.Index(rest, "\n---\n"); i >= 0 {
		end, body = i, rest[i+len("\n---\n"):]
	} else if strings.HasSuffix(rest, "\n---") {
		end, body = len(rest)-len("\n---"), ""
	}
	if end < 0 {
		return metadata, strings.TrimSpace(text)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal([]byte(rest[:end]), &raw); err == nil {
		for k, node := range raw {
			metadata[k] = stringify(plain(&node))
		}
	}
	return metadata, strings.TrimSpace(body)
}

// plain converts a YAML node to Go values, keeping timestamps as written.
func plain(n *yaml.Node) any {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return plain(n.Content[0])
	case yaml.AliasNode:
		return plain(n.Alias)
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			items = append(items, plain(c))
		}
		return items
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			m[n.Content[i].Value] = plain(n.Content[i+1])
		}
		return m
	}

	switch n.ShortTag() {
	case "!!timestamp", "!!str":
		return n.Value
	case "!!null":
		return nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return n.Value
	}
	return v
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(bytes.TrimSpace(b))
	default:
		return fmt.Sprint(v)
	}
}

func markdownFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isMarkdown(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func isMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

func relPath(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("vault: %s is outside %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}
