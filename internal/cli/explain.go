package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smishguard/explaind/internal/explain"
	"github.com/smishguard/explaind/internal/llm"
	"github.com/smishguard/explaind/internal/prompt"
	"github.com/smishguard/explaind/internal/store"
)

var (
	explainDBPath  string
	explainMessage string
	explainTimeout time.Duration
)

// explainCmd represents the explain command: a one-shot explanation printed
// to stdout, useful for smoke-testing a deployment without an HTTP client.
var explainCmd = &cobra.Command{
	Use:   "explain <result_id>",
	Short: "Explain one stored analysis result to stdout",
	Long: `Explain fetches a stored analysis result, extracts its evidence, and
streams the generated explanation to stdout.

The reserved identifier "uuid" selects a built-in demonstration record and
needs no database.

Example:
  explaind explain uuid
  explaind explain 4f7c... --db /var/lib/explaind/results.db`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)

	explainCmd.Flags().StringVar(&explainDBPath, "db", "", "path to the analysis result database")
	explainCmd.Flags().StringVar(&explainMessage, "message", "", "override the stored message text (forces regeneration)")
	explainCmd.Flags().DurationVar(&explainTimeout, "timeout", 2*time.Minute, "overall timeout")
}

func runExplain(cmd *cobra.Command, args []string) error {
	id := args[0]
	cfg := loadConfig()
	if explainDBPath != "" {
		cfg.Store.Path = explainDBPath
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	gateway, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer gateway.Close()

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return fmt.Errorf("configure generation engine: %w", err)
	}

	opts := prompt.Options{Language: cfg.Explain.Language, Audience: cfg.Explain.Audience}
	svc := explain.New(gateway, provider, opts, log)

	ctx, cancel := context.WithTimeout(context.Background(), explainTimeout)
	defer cancel()

	err = svc.ExplainResult(ctx, id, explainMessage, func(ev explain.Event) error {
		switch ev.Name {
		case explain.EventMeta:
			if verbose {
				fmt.Fprintf(os.Stderr, "result %v: risk %v (score %v)\n",
					ev.Data["result_id"], ev.Data["risk_level"], ev.Data["risk_score"])
			}
		case explain.EventEvidence:
			if verbose {
				fmt.Fprintf(os.Stderr, "coverage %v, limitations %v\n",
					ev.Data["coverage"], ev.Data["limitations"])
			}
		case explain.EventDelta:
			fmt.Print(ev.Data["text"])
		case explain.EventDone:
			fmt.Println()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("explain %s: %w", id, err)
	}
	return nil
}
