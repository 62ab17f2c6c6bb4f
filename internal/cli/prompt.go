package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/internal/adapter/generation"
	"pdfrag/internal/app"
	"pdfrag/internal/usecase"
)

var (
	promptText  string
	promptTopK  int
	promptDocID string
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the prompt the generator would receive",
	Long: `Retrieve context for the query and print the rendered system and user
messages without calling a model. Useful for pasting into another LLM.

Examples:
  pdfrag prompt -q "Summarise the indemnity section"`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptText, "query", "q", "", "question (required)")
	promptCmd.Flags().IntVarP(&promptTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	promptCmd.Flags().StringVar(&promptDocID, "doc", "", "restrict retrieval to one document id")
	promptCmd.MarkFlagRequired("query")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd.Context(), GetConfig(), GetRootDir(), nil)
	if err != nil {
		return app.Hint(err)
	}
	defer a.Close()

	matches, err := a.Retriever.Retrieve(cmd.Context(), promptText, topKOrDefault(promptTopK), promptDocID)
	if err != nil {
		return app.Hint(fmt.Errorf("search failed: %w", err))
	}

	prompt, err := generation.RenderPrompt(promptText, usecase.BuildContext(matches, a.Config.Generator.MaxSnippets))
	if err != nil {
		return fmt.Errorf("failed to render prompt: %w", err)
	}
	fmt.Println(prompt.String())
	return nil
}
