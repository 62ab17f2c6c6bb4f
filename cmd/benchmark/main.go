package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"pdfrag/config"
	"pdfrag/internal/app"
	"pdfrag/internal/domain"
)

func main() {
	dir := flag.String("dir", ".", "Project directory holding pdfrag.yaml and the index")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	doc := flag.String("doc", "", "Restrict to one document id")
	runs := flag.Int("runs", 5, "Number of timed query runs")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./project -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Index and embedder in use")
		fmt.Println("  2. Similarity of the top matches")
		fmt.Println("  3. Query latency over several runs")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	// Measure the index and embedder, not the cache.
	cfg.Retrieve.CacheSize = 0

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, *dir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", app.Hint(err))
		os.Exit(1)
	}
	defer a.Close()

	stats, err := a.Index.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
		os.Exit(1)
	}
	if stats.VectorCount == 0 {
		fmt.Fprintln(os.Stderr, "Index is empty - run 'pdfrag ingest' first")
		os.Exit(1)
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Index: %s (%s, %s)\n", stats.Name, stats.Backend, stats.Metric)
	fmt.Printf("Vectors indexed: %d\n", stats.VectorCount)
	fmt.Printf("Embedder: %s (%d dimensions)\n", a.Embedder.ModelName(), a.Embedder.Dimension())
	fmt.Println()
	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	var matches []domain.Match
	latencies := make([]time.Duration, 0, *runs)
	for i := 0; i < max(*runs, 1); i++ {
		start := time.Now()
		matches, err = a.Retriever.Retrieve(ctx, *query, *topK, *doc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
	}

	if len(matches) == 0 {
		fmt.Println("No matches.")
		return
	}

	fmt.Printf("Top %d matches:\n\n", len(matches))

	totalScore := 0.0
	for i, m := range matches {
		preview := []rune(strings.ReplaceAll(m.Metadata.Text, "\n", " "))
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		totalScore += m.Score

		rating := "LOW"
		if m.Score > 0.7 {
			rating = "HIGH"
		} else if m.Score > 0.5 {
			rating = "GOOD"
		} else if m.Score > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s\n", i+1, rating, m.Score, m.ID)
		fmt.Printf("   %s\n\n", string(preview))
	}

	avgScore := totalScore / float64(len(matches))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", matches[0].Score)

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - retrieval working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need a real embedding model or re-ingesting")
	}

	var total, worst time.Duration
	for _, l := range latencies {
		total += l
		worst = max(worst, l)
	}
	fmt.Printf("\nLATENCY (%d runs):\n", len(latencies))
	fmt.Printf("  Mean: %s\n", (total / time.Duration(len(latencies))).Round(time.Microsecond))
	fmt.Printf("  Max:  %s\n", worst.Round(time.Microsecond))
}
