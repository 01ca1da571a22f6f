package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wibisana/lakon/internal/config"
	"github.com/wibisana/lakon/internal/daemon"
)

var planContext []string

var planCmd = &cobra.Command{
	Use:   "plan <objective>",
	Short: "Decompose an objective into a plan and print it",
	Long: `Run a one-shot decomposition: build, validate, and simulate a plan for
the given objective, print the result as JSON, and exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringSliceVar(&planContext, "context", nil, "context entries as key=value pairs")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Logging.Level = "warn"
	cfg.Gateway.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Optimizer.Enabled = false

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	planCtx := make(map[string]string, len(planContext))
	for _, kv := range planContext {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid context entry %q, want key=value", kv)
		}
		planCtx[k] = v
	}

	p, err := d.Manager().CreateStrategy(cmd.Context(), args[0], planCtx)
	if err != nil {
		return err
	}

	record := d.Manager().EvaluateStrategy(p)
	out := struct {
		Plan       interface{} `json:"plan"`
		Evaluation interface{} `json:"evaluation"`
	}{Plan: p, Evaluation: record}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
