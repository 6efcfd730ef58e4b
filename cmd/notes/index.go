package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-notes-go/vault"
)

// --- notes index ---

func indexCmd() *cobra.Command {
	var (
		dbPath string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "index <vault>",
		Short: "Index a markdown vault for retrieval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ix, err := vault.NewIndexer(args[0], store, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := ix.IndexAll(ctx)
			if err != nil {
				return err
			}
			total, err := store.CountNotes(context.WithoutCancel(ctx))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d notes from %s (%d in index)\n", n, ix.Root(), total)

			if !watch {
				return nil
			}
			return ix.Watch(ctx)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Memory database (default ~/.config/meridian-notes/notes.db)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep re-indexing changed notes until interrupted")
	return cmd
}
