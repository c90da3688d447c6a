package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/factprobe/internal/llm"
	"github.com/ppiankov/factprobe/internal/model"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the configured model backends are reachable",
	Long: `Check builds the verifier and generator backends from the current
configuration and probes each one without sending a scoring prompt.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, role := range []struct {
		name   string
		mc     model.LLMConfig
		system string
	}{
		{"verifier", cfg.Verifier, llm.VerifierSystemPrompt},
		{"generator", cfg.Generator, llm.DecomposerSystemPrompt},
	} {
		ok, detail := probe(ctx, llm.ConfigFromModel(role.mc, cfg.HTTP, role.system))
		mark := "✓"
		if !ok {
			mark = "✗"
			failed++
		}
		fmt.Printf("%s %-10s %s\n", mark, role.name, detail)
	}

	if failed > 0 {
		return fmt.Errorf("%d backend(s) unavailable", failed)
	}
	return nil
}

// probe reports whether the backend described by config answers
func probe(ctx context.Context, config llm.Config) (bool, string) {
	m, err := llm.NewModel(config)
	if err != nil {
		return false, err.Error()
	}
	if m == nil {
		return true, "not configured"
	}

	checker, ok := m.(llm.AvailabilityChecker)
	if !ok {
		return true, m.Name() + " (no availability probe)"
	}
	if !checker.IsAvailable(ctx) {
		return false, m.Name() + " unreachable"
	}
	return true, m.Name() + " available"
}
