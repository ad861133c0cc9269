package port

// Chunker splits long free text into snippet-sized pieces.
type Chunker interface {
	Chunk(text string) []string
}
