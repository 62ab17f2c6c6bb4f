package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pdfrag/config"
	"pdfrag/internal/app"
	"pdfrag/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload, chat and health endpoints over HTTP",
	Long: `Start the HTTP API.

  POST /upload   multipart "file" field with a PDF
  POST /chat     {"query": "...", "top_k": 5, "document_id": "..."}
  GET  /health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, GetConfig(), GetRootDir(), nil)
	if err != nil {
		return app.Hint(err)
	}
	defer a.Close()

	answerer, err := a.Answerer()
	if err != nil {
		return app.Hint(err)
	}

	cfg := a.Config
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := httpapi.NewServer(httpapi.Config{
		Addr:           addr,
		DataDir:        config.ResolvePath(GetRootDir(), cfg.Server.DataDir),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		IndexName:      cfg.Index.Name,
	}, a.Ingest, answerer, a.Index, a.Logger)

	return srv.ListenAndServe(ctx)
}
