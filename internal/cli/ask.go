package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/internal/app"
)

var (
	askText  string
	askTopK  int
	askDocID string
	askJSON  bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieve the chunks most similar to the question and ask the configured
generator to answer using only that context.

Examples:
  pdfrag ask -q "What is the notice period?"
  pdfrag ask -q "What is the notice period?" --doc 3f1c... --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question (required)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().StringVar(&askDocID, "doc", "", "restrict retrieval to one document id")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd.Context(), GetConfig(), GetRootDir(), nil)
	if err != nil {
		return app.Hint(err)
	}
	defer a.Close()

	answerer, err := a.Answerer()
	if err != nil {
		return app.Hint(err)
	}

	answer, err := answerer.Answer(cmd.Context(), askText, topKOrDefault(askTopK), askDocID)
	if err != nil {
		return app.Hint(err)
	}

	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Printf("\nSources:\n")
		for _, s := range answer.Sources {
			fmt.Printf("  %s (score: %.4f)\n", s.ChunkID, s.Score)
		}
	}
	return nil
}
