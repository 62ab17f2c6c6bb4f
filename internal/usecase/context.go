package usecase

import "pdfrag/internal/domain"

// DefaultMaxSnippets bounds the context handed to the generator.
const DefaultMaxSnippets = 20

// BuildContext returns the chunk texts of the leading matches in rank order.
// Matches without text are skipped. maxSnippets <= 0 uses the default.
func BuildContext(matches []domain.Match, maxSnippets int) []string {
	if maxSnippets <= 0 {
		maxSnippets = DefaultMaxSnippets
	}
	snippets := make([]string, 0, min(len(matches), maxSnippets))
	for _, m := range matches {
		if len(snippets) == maxSnippets {
			break
		}
		if m.Metadata.Text == "" {
			continue
		}
		snippets = append(snippets, m.Metadata.Text)
	}
	return snippets
}

// Sources lists the provenance of matches.
func Sources(matches []domain.Match) []domain.Source {
	sources := make([]domain.Source, len(matches))
	for i, m := range matches {
		sources[i] = domain.Source{
			Score:      m.Score,
			ChunkID:    m.ID,
			DocumentID: m.Metadata.DocumentID,
		}
	}
	return sources
}
