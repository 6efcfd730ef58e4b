// Command notes talks to, and serves, the note prediction backend.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-notes-go/memory"
	"github.com/haowjy/meridian-notes-go/settings"
)

var (
	verbose bool
	logger  = slog.Default()
)

func main() {
	root := &cobra.Command{
		Use:   "notes",
		Short: "Note predictions with memories and retrieval",
		Long: `notes streams predictions for the note you are writing from a prediction
server, and runs that server: recalled memories, full-text retrieval over
a markdown vault, and a pluggable LLM generator.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = newLogger()
			slog.SetDefault(logger)
			if path, err := settings.LoadDotEnv(); err != nil {
				return err
			} else if path != "" {
				logger.Debug("loaded .env", "path", path)
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		predictCmd(),
		serveCmd(),
		indexCmd(),
		memoryCmd(),
		settingsCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger creates a structured logger that writes to stderr.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore opens the memory database at dbPath, or the default location.
func openStore(dbPath string, opts ...memory.Option) (*memory.Store, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = memory.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	logger.Debug("opening memory store", "path", dbPath)
	return memory.NewStore(dbPath, opts...)
}
