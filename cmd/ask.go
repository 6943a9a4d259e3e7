package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/config"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/query"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

var askRole string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askRole, "role", "customer", "caller role (customer, engineer, admin)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	a, err := setup(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	question := strings.Join(args, " ")
	result, err := a.pipeline.Ask(ctx, query.Request{
		Query: question,
		Role:  askRole,
		Tier:  tier.ForRole(askRole),
	})
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Response)
	if len(result.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, s := range result.Sources {
			fmt.Fprintf(out, "  [%d] %s (relevance %.2f)\n", s.DocumentID, s.Title, s.RelevanceScore)
		}
	}
	fmt.Fprintf(out, "\nConfidence: %.2f\n", result.Confidence)
	return nil
}
