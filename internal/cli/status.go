package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfrag/internal/adapter/store"
	"pdfrag/internal/app"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := app.Open(cmd.Context(), GetConfig(), GetRootDir(), nil)
	if err != nil {
		return app.Hint(err)
	}
	defer a.Close()

	stats, err := a.Index.Stats(cmd.Context())
	if err != nil {
		return app.Hint(fmt.Errorf("failed to read index stats: %w", err))
	}

	if statusJSON {
		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Index:     %s\n", stats.Name)
	fmt.Printf("Backend:   %s\n", stats.Backend)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Printf("Metric:    %s\n", stats.Metric)
	fmt.Printf("Vectors:   %d\n", stats.VectorCount)
	fmt.Printf("Embedder:  %s\n", a.Embedder.ModelName())

	if bolt, ok := a.Prov.(*store.BoltStore); ok {
		version, err := bolt.SchemaVersion()
		if err == nil {
			fmt.Printf("Schema:    v%d\n", version)
		}
		if specs, err := bolt.ListIndexes(); err == nil && len(specs) > 1 {
			fmt.Printf("\nOther indexes in this file:\n")
			for _, s := range specs {
				if s.Name != stats.Name {
					fmt.Printf("  %s (dimension %d, %s)\n", s.Name, s.Dimension, s.Metric)
				}
			}
		}
	}
	return nil
}
