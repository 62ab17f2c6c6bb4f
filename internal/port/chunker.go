package port

// Chunker splits normalized document text into an ordered list of windows.
// The position of a window in the result is its chunk index.
type Chunker interface {
	Chunk(text string) []string
}
