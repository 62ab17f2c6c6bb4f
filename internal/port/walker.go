package port

import "context"

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// Extractor turns an uploaded file into plain text. An empty string is a
// valid result.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}
