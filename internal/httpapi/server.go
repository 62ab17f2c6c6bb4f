// Package httpapi exposes upload, chat and health endpoints over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pdfrag/internal/domain"
	"pdfrag/internal/usecase"
)

const defaultTopK = 5

type Ingester interface {
	IngestPDF(ctx context.Context, documentID string, data []byte) (*usecase.IngestResult, error)
}

type Answerer interface {
	Answer(ctx context.Context, query string, topK int, documentID string) (*domain.Answer, error)
}

type StatsProvider interface {
	Stats(ctx context.Context) (domain.IndexStats, error)
}

type Config struct {
	Addr           string
	DataDir        string
	MaxUploadBytes int64
	IndexName      string
}

// Server serves the HTTP surface of the pipeline.
type Server struct {
	cfg      Config
	ingester Ingester
	answerer Answerer
	stats    StatsProvider
	logger   *slog.Logger
	server   *http.Server
}

func NewServer(cfg Config, ingester Ingester, answerer Answerer, stats StatsProvider, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		ingester: ingester,
		answerer: answerer,
		stats:    stats,
		logger:   logger.With("component", "http"),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.logRequests(mux)
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Index      string `json:"index"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "A PDF file is required in the \"file\" form field.")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeDetail(w, http.StatusBadRequest, "Only PDF files are supported.")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Could not read uploaded file.")
		return
	}

	documentID := usecase.NewDocumentID()
	if s.cfg.DataDir != "" {
		if err := s.store(documentID, data); err != nil {
			s.logger.Error("failed to store upload", "document_id", documentID, "error", err)
			writeDetail(w, http.StatusInternalServerError, "Could not store uploaded file.")
			return
		}
	}

	result, err := s.ingester.IngestPDF(r.Context(), documentID, data)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyDocument) || errors.Is(err, domain.ErrExtraction) {
			writeDetail(w, http.StatusBadRequest, "Could not extract text from PDF.")
			return
		}
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		DocumentID: result.DocumentID,
		Chunks:     result.ChunkCount,
		Index:      s.cfg.IndexName,
	})
}

func (s *Server) store(documentID string, data []byte) error {
	if err := os.MkdirAll(s.cfg.DataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.cfg.DataDir, documentID+".pdf"), data, 0644)
}

type chatRequest struct {
	Query      string `json:"query"`
	TopK       *int   `json:"top_k"`
	DocumentID string `json:"document_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeDetail(w, http.StatusBadRequest, "Query cannot be empty.")
		return
	}
	topK := defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	answer, err := s.answerer.Answer(r.Context(), req.Query, topK, req.DocumentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if answer.Sources == nil {
		answer.Sources = []domain.Source{}
	}
	writeJSON(w, http.StatusOK, answer)
}

type healthResponse struct {
	Status    string        `json:"status"`
	Index     string        `json:"index"`
	Backend   string        `json:"backend,omitempty"`
	Dimension int           `json:"dimension,omitempty"`
	Metric    domain.Metric `json:"metric,omitempty"`
	Vectors   int64         `json:"vectors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Index: s.cfg.IndexName})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Index:     s.cfg.IndexName,
		Backend:   stats.Backend,
		Dimension: stats.Dimension,
		Metric:    stats.Metric,
		Vectors:   stats.VectorCount,
	})
}

// StatusCode maps an error kind to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status >= 500 {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	if d, ok := domain.RetryAfter(err); ok {
		secs := int((d + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeDetail(w, status, err.Error())
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to write response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", fmt.Sprint(time.Since(start).Round(time.Millisecond)),
		)
	})
}
