package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pdfrag/internal/adapter/fs"
	"pdfrag/internal/app"
	"pdfrag/internal/usecase"
)

var (
	ingestDocID string
	ingestJSON  bool
	ingestReset bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>",
	Short: "Extract, chunk, embed and index PDF files",
	Long: `Ingest a PDF file, or every PDF under a directory, into the configured
vector index. Each file gets a fresh document id unless --doc-id is given
for a single file.

Examples:
  pdfrag ingest report.pdf
  pdfrag ingest ./contracts --backend qdrant
  pdfrag ingest ./contracts --reset`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestDocID, "doc-id", "", "document id to use (single file only)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output results as JSON")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "drop the local index before ingesting")
}

type ingestOutcome struct {
	Path string `json:"path"`
	*usecase.IngestResult
	Error string `json:"error,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	files, err := walker.Walk(path)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", path, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no PDF files found under %s", path)
	}
	if ingestDocID != "" && len(files) > 1 {
		return fmt.Errorf("--doc-id can only be used with a single file, found %d", len(files))
	}

	if ingestReset {
		if !ingestJSON {
			fmt.Println("Clearing existing index...")
		}
		if err := app.Reset(cfg, GetRootDir()); err != nil {
			return app.Hint(err)
		}
	}

	a, err := app.Open(ctx, cfg, GetRootDir(), nil)
	if err != nil {
		return app.Hint(err)
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetVisibility(!ingestJSON),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)

	start := time.Now()
	outcomes := make([]ingestOutcome, 0, len(files))
	var failed, chunks int
	for i, f := range files {
		docID := ingestDocID
		if docID == "" {
			docID = usecase.NewDocumentID()
		}

		outcome := ingestOutcome{Path: f.Path}
		data, err := os.ReadFile(f.Path)
		if err == nil {
			outcome.IngestResult, err = a.Ingest.IngestPDF(ctx, docID, data)
		}
		if err != nil {
			failed++
			outcome.Error = err.Error()
		}
		if outcome.IngestResult != nil {
			chunks += outcome.Written
		}
		outcomes = append(outcomes, outcome)

		_ = bar.Set(i + 1)
		if elapsed := time.Since(start); i+1 < len(files) && elapsed > 0 {
			eta := time.Duration(float64(elapsed) / float64(i+1) * float64(len(files)-i-1))
			bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
		}
	}

	if ingestJSON {
		out, _ := json.MarshalIndent(outcomes, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Printf("\nIngest complete:\n")
		fmt.Printf("  Files ingested: %d\n", len(files)-failed)
		fmt.Printf("  Files failed:   %d\n", failed)
		fmt.Printf("  Chunks indexed: %d\n", chunks)
		fmt.Printf("  Index:          %s (%s)\n", cfg.Index.Name, cfg.Index.Backend)
		fmt.Printf("  Took:           %s\n", formatDuration(time.Since(start)))

		for _, o := range outcomes {
			if o.Error != "" {
				fmt.Printf("  - %s: %s\n", o.Path, o.Error)
			} else if len(files) <= 20 {
				fmt.Printf("  + %s -> %s (%d chunks)\n", o.Path, o.DocumentID, o.ChunkCount)
			}
		}
	}

	if failed == len(files) {
		return fmt.Errorf("all %d files failed to ingest", failed)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
