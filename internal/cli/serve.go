package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smishguard/explaind/internal/auth"
	"github.com/smishguard/explaind/internal/explain"
	"github.com/smishguard/explaind/internal/llm"
	"github.com/smishguard/explaind/internal/model"
	"github.com/smishguard/explaind/internal/prompt"
	"github.com/smishguard/explaind/internal/server"
	"github.com/smishguard/explaind/internal/store"
)

var (
	serveAddr    string
	serveDBPath  string
	llmProvider  string
	llmModel     string
	authMode     string
	authEndpoint string
	explainLang  string
	explainLevel string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the explanation streaming service",
	Long: `Serve exposes the explanation endpoints over HTTP:

  POST /v1/explain/{result_id}/stream       explain one stored analysis result
  POST /v1/explain/stream                   explain several results in one pass
  POST /v1/message/explain/stream           explain a raw message + safety verdict
  POST /v1/message/links/explain/stream     explain a message with per-link verdicts

Responses are server-sent event streams in meta, evidence, delta*, done order.

Example:
  explaind serve --addr :8080 --db /var/lib/explaind/results.db --llm-provider openai`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :8080)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "path to the analysis result database")
	serveCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	serveCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	serveCmd.Flags().StringVar(&authMode, "auth-mode", "", "caller verification mode (remote, static)")
	serveCmd.Flags().StringVar(&authEndpoint, "auth-endpoint", "", "token verification endpoint (remote mode)")
	serveCmd.Flags().StringVar(&explainLang, "language", "", "explanation output language")
	serveCmd.Flags().StringVar(&explainLevel, "audience", "", "audience register (general, novice)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	gateway, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			log.Warn("close result store", "error", err)
		}
	}()

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return fmt.Errorf("configure generation engine: %w", err)
	}

	verifier, err := buildVerifier(cfg.Auth)
	if err != nil {
		return fmt.Errorf("configure caller verification: %w", err)
	}

	opts := prompt.Options{Language: cfg.Explain.Language, Audience: cfg.Explain.Audience}
	svc := explain.New(gateway, provider, opts, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(svc, gateway, verifier, cfg.Server, log).Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr, "provider", provider.Name(), "store", cfg.Store.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// loadConfig layers defaults, config file / env (viper), and flags
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()
	_ = viper.Unmarshal(cfg)

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveDBPath != "" {
		cfg.Store.Path = serveDBPath
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if authMode != "" {
		cfg.Auth.Mode = authMode
	}
	if authEndpoint != "" {
		cfg.Auth.Endpoint = authEndpoint
	}
	if explainLang != "" {
		cfg.Explain.Language = explainLang
	}
	if explainLevel != "" {
		cfg.Explain.Audience = explainLevel
	}

	// API keys come from the conventional env vars when not in the config
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	return cfg
}

func buildVerifier(cfg model.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case "remote":
		return auth.NewRemoteVerifier(cfg.Endpoint, cfg.CacheTTL)
	case "static", "":
		return auth.NewStaticVerifier(cfg.Tokens), nil
	default:
		return nil, fmt.Errorf("unknown auth mode: %s (supported: remote, static)", cfg.Mode)
	}
}
