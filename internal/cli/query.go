package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pdfrag/internal/app"
	"pdfrag/internal/usecase"
)

var (
	queryText  string
	queryTopK  int
	queryDocID string
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search indexed chunks",
	Long: `Embed the query and print the most similar chunks, best first.

Examples:
  pdfrag query -q "payment terms"
  pdfrag query -q "payment terms" --doc 3f1c... --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringVar(&queryDocID, "doc", "", "restrict results to one document id")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func topKOrDefault(k int) int {
	if k > 0 {
		return k
	}
	return GetConfig().Retrieve.TopK
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd.Context(), GetConfig(), GetRootDir(), nil)
	if err != nil {
		return app.Hint(err)
	}
	defer a.Close()

	matches, err := a.Retriever.Retrieve(cmd.Context(), queryText, topKOrDefault(queryTopK), queryDocID)
	if err != nil {
		return app.Hint(fmt.Errorf("search failed: %w", err))
	}
	results := usecase.ToResults(matches)

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Printf("--- [%d] %s (score: %.4f) ---\n", i+1, r.ID, r.Score)
		fmt.Println(preview(r.Text, 400))
		fmt.Println()
	}
	return nil
}

func preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
