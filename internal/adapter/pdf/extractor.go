// Package pdf extracts plain text from PDF files.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdfrag/internal/domain"
)

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger.With("component", "pdf")}
}

// Extract returns the text of every page joined by "\n". A page that cannot
// be decoded contributes an empty string. An unreadable file is a validation
// error.
func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	reader, err := openReader(data)
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pages = append(pages, e.pageText(reader, i))
	}
	return strings.Join(pages, "\n"), nil
}

// ExtractFile reads and extracts a PDF from disk.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return e.Extract(ctx, data)
}

func openReader(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("%w: malformed pdf: %v", domain.ErrValidation, r)
		}
	}()
	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open pdf: %v", domain.ErrValidation, err)
	}
	return reader, nil
}

func (e *Extractor) pageText(reader *pdf.Reader, n int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("page extraction panicked", "page", n, "panic", r)
			text = ""
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		e.logger.Warn("page extraction failed", "page", n, "error", err)
		return ""
	}
	return text
}
