package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/acolytehealth/rtconsole/cmd/rtconsole/internal/config"
	"github.com/acolytehealth/rtconsole/pkg/embed"
	"github.com/acolytehealth/rtconsole/pkg/gateway"
	"github.com/acolytehealth/rtconsole/pkg/retrieval"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Long: `Run the internal HTTP endpoints for a browser frontend:

  GET  /api/token        issue a short-lived realtime credential
  POST /api/voice-query  resolve retrieval context for an utterance

The credential endpoint uses the server-held API key from the gateway
service config (or OPENAI_API_KEY). The voice-query endpoint embeds the
latest user message and queries the passage store configured in the
retrieval service config; without a database_url it serves an empty
in-memory store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		contextDir, err := cfg.CurrentContextDir()
		if err != nil {
			return err
		}

		gwCfg, err := config.LoadService[config.Gateway](contextDir, config.ServiceGateway)
		if err != nil {
			gwCfg = &config.Gateway{}
		}
		apiKey := envOr("OPENAI_API_KEY", gwCfg.APIKey)

		addr := serveAddr
		if addr == "" {
			addr = gwCfg.Addr
		}
		if addr == "" {
			addr = "127.0.0.1:8080"
		}

		fetcher, err := buildFetcher(cmd.Context(), contextDir, apiKey)
		if err != nil {
			return err
		}

		server := gateway.NewServer(apiKey, gateway.WithContextFetcher(fetcher))

		slog.Info("gateway listening", "addr", addr)
		return http.ListenAndServe(addr, server.Handler())
	},
}

// buildFetcher assembles the retrieval bridge from the retrieval service
// config. A missing config yields a bridge over an empty in-memory
// store, which answers every query with empty context.
func buildFetcher(ctx context.Context, contextDir, fallbackKey string) (*retrieval.Bridge, error) {
	rCfg, err := config.LoadService[config.Retrieval](contextDir, config.ServiceRetrieval)
	if err != nil {
		rCfg = &config.Retrieval{}
	}

	embedKey := rCfg.APIKey
	if embedKey == "" {
		embedKey = fallbackKey
	}

	var embedOpts []embed.Option
	if rCfg.EmbedModel != "" {
		embedOpts = append(embedOpts, embed.WithModel(rCfg.EmbedModel))
	}
	embedder := embed.NewOpenAI(embedKey, embedOpts...)

	var store retrieval.PassageStore
	if rCfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, rCfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect passage store: %w", err)
		}
		var pgOpts []retrieval.PostgresOption
		if rCfg.Table != "" {
			pgOpts = append(pgOpts, retrieval.WithTable(rCfg.Table))
		}
		store = retrieval.NewPostgres(pool, pgOpts...)
		slog.Info("using postgres passage store", "table", rCfg.Table)
	} else {
		store = retrieval.NewMemory()
		slog.Info("using in-memory passage store")
	}

	return retrieval.NewBridge(embedder, store), nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default 127.0.0.1:8080)")
	rootCmd.AddCommand(serveCmd)
}
