package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	notes "github.com/haowjy/meridian-notes-go"
	"github.com/haowjy/meridian-notes-go/config"
	"github.com/haowjy/meridian-notes-go/memory"
	"github.com/haowjy/meridian-notes-go/providers"
	"github.com/haowjy/meridian-notes-go/server"
	"github.com/haowjy/meridian-notes-go/vault"
)

// --- notes serve ---

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		dbPath     string
		vaultPath  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.App.Addr = addr
			}
			if dbPath != "" {
				cfg.Memories.DBPath = dbPath
			}
			if vaultPath != "" {
				cfg.Retrieval.Vault = vaultPath
			}

			id, _, err := notes.ParseModelSpec(cfg.LLM.Provider)
			if err != nil {
				return fmt.Errorf("[llm] provider: %w", err)
			}
			gen, model, err := providers.New(cfg.LLM.Provider, providers.Config{
				APIKey:  cfg.LLM.ProviderAPIKey(id.String()),
				BaseURL: cfg.LLM.BaseURL,
				Logger:  logger,
			})
			if err != nil {
				return err
			}

			store, err := openStore(cfg.Memories.DBPath, memory.WithNamespace(cfg.Memories.Namespace))
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Retrieval.Vault != "" {
				if err := indexAndWatch(ctx, cfg.Retrieval.Vault, store); err != nil {
					return err
				}
			}

			if !verbose {
				gin.SetMode(gin.ReleaseMode)
			}
			srv, err := server.New(server.Options{
				Generator:        gen,
				Model:            model,
				Temperature:      cfg.LLM.Temperature,
				MaxTokens:        cfg.LLM.MaxTokens,
				Memory:           store,
				RecallLimit:      cfg.Memories.RecallLimit,
				Retriever:        store,
				RetrievalK:       cfg.Retrieval.K,
				APIKey:           cfg.App.APIKey,
				AllowCrossOrigin: cfg.App.AllowCrossOrigin,
				Logger:           logger,
			})
			if err != nil {
				return err
			}
			if cfg.App.APIKey == "" {
				logger.Warn("no api_key configured; the server accepts unauthenticated requests")
			}
			return srv.Run(ctx, cfg.App.Addr)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "settings.toml", "Server configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides [app] addr)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Memory database (overrides [memories] db_path)")
	cmd.Flags().StringVar(&vaultPath, "vault", "", "Index and watch this vault (overrides [retrieval] vault)")
	return cmd
}

// indexAndWatch indexes the vault once, then keeps it in sync in the
// background until ctx is done.
func indexAndWatch(ctx context.Context, root string, store *memory.Store) error {
	ix, err := vault.NewIndexer(root, store, logger)
	if err != nil {
		return err
	}
	if _, err := ix.IndexAll(ctx); err != nil {
		return err
	}
	go func() {
		if err := ix.Watch(ctx); err != nil {
			logger.Error("vault watcher stopped", "error", err)
		}
	}()
	return nil
}
