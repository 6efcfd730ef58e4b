package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	notes "github.com/haowjy/meridian-notes-go"
	"github.com/haowjy/meridian-notes-go/client"
	"github.com/haowjy/meridian-notes-go/settings"
)

// --- notes predict ---

func predictCmd() *cobra.Command {
	var (
		settingsPath string
		notePath     string
		noMemory     bool
		noRetrieval  bool
		noStream     bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "predict [prompt]",
		Short: "Request a prediction (reads the prompt from stdin when omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read prompt: %w", err)
				}
				prompt = string(data)
			}

			store, err := settings.NewFileStore(settingsPath)
			if err != nil {
				return err
			}
			cfg, err := store.Load()
			if err != nil {
				return err
			}

			c, err := cfg.NewClient(client.WithLogger(logger))
			if err != nil {
				return err
			}

			req := cfg.NewRequest(prompt, notePath)
			if noMemory {
				req.IncludeMemory = false
			}
			if noRetrieval {
				req.IncludeRetrieval = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			streamed := cfg.StreamResponses && !noStream

			var resp *notes.PredictResponse
			printed := false
			if streamed {
				resp, err = c.PredictStream(ctx, req, notes.StreamCallbacks{
					OnChunk: func(delta string) {
						if !asJSON {
							fmt.Fprint(out, delta)
							printed = true
						}
					},
					OnMetadata: func(meta notes.Metadata) {
						logger.Info("context received",
							"memories", len(meta.Memories),
							"retrievals", len(meta.Retrievals))
					},
				})
			} else {
				resp, err = c.Predict(ctx, req)
			}
			if err != nil {
				if notes.IsAuthError(err) {
					return fmt.Errorf("%w (check api_key with 'notes settings set api_key <key>')", err)
				}
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			// Blocking calls and stream fallbacks deliver no chunks
			if !printed {
				fmt.Fprint(out, resp.Output)
			}
			fmt.Fprintln(out)
			printContext(cmd.ErrOrStderr(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsPath, "settings", "", "Settings file (default ~/.config/meridian-notes/settings.yaml)")
	cmd.Flags().StringVar(&notePath, "note", "", "Vault path of the active note")
	cmd.Flags().BoolVar(&noMemory, "no-memory", false, "Do not recall memories")
	cmd.Flags().BoolVar(&noRetrieval, "no-retrieval", false, "Do not search indexed notes")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Use the blocking endpoint")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	return cmd
}

// printContext lists the memories and notes the prediction used.
func printContext(w io.Writer, resp *notes.PredictResponse) {
	for _, m := range resp.Memories {
		fmt.Fprintf(w, "memory [%s] %s\n", m.Source, truncate(m.Text, 80))
	}
	for _, h := range resp.Retrievals {
		fmt.Fprintf(w, "note   %-30s %.2f\n", h.ID, h.Score)
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
