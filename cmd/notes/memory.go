package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-notes-go/config"
	"github.com/haowjy/meridian-notes-go/memory"
)

// --- notes memory ---

func memoryCmd() *cobra.Command {
	var dbPath, namespace string

	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Import and export memories",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Memory database (default ~/.config/meridian-notes/notes.db)")
	cmd.PersistentFlags().StringVar(&namespace, "namespace", config.Default().Memories.Namespace, "Memory namespace ([memories] namespace of the server)")

	var importNotePath string
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import memories from a JSON dump",
		Long: `Import accepts {"memories": [...]}, {"entries": [...]}, a single memory
object, or a list of memory objects. Each memory's text is read from "text",
"summary", or "content".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snippets, err := memory.LoadExport(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(dbPath, memory.WithNamespace(namespace))
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Import(cmd.Context(), snippets, importNotePath)
			if err != nil {
				return fmt.Errorf("imported %d of %d memories: %w", n, len(snippets), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d memories\n", n)
			return nil
		},
	}
	importCmd.Flags().StringVar(&importNotePath, "note-path", "", "Store every memory under this note")

	var exportNotePath string
	exportCmd := &cobra.Command{
		Use:   "export <file|->",
		Short: "Export memories as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dbPath, memory.WithNamespace(namespace))
			if err != nil {
				return err
			}
			defer store.Close()

			if args[0] == "-" {
				_, err := store.Export(cmd.Context(), cmd.OutOrStdout(), exportNotePath)
				return err
			}

			n, err := exportFile(cmd.Context(), store, args[0], exportNotePath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d memories to %s\n", n, args[0])
			return nil
		},
	}
	exportCmd.Flags().StringVar(&exportNotePath, "note-path", "", "Only export memories of this note")

	cmd.AddCommand(importCmd, exportCmd)
	return cmd
}

// exportFile writes the export to path. Flush and close errors are returned.
func exportFile(ctx context.Context, store *memory.Store, path, notePath string) (n int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if n, err = store.Export(ctx, w, notePath); err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}
