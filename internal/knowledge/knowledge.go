// Package knowledge implements the retrieval side of the bot: loading
// the exported site corpus, splitting documents into overlapping
// word-bounded chunks, ranking chunks lexically with BM25, and deciding
// whether retrieved context is strong enough to answer from.
//
// The store is built once at startup and is read-only afterwards, so
// Retrieve needs no locking and identical queries always produce
// identical ordered results.
package knowledge

import "errors"

var (
	// ErrCorpusMissing indicates the JSONL corpus file does not exist.
	// The corpus is produced by the export step and is required.
	ErrCorpusMissing = errors.New("knowledge corpus not found")

	// ErrNoChunks indicates loading produced no usable chunks.
	ErrNoChunks = errors.New("no valid chunks available after loading knowledge base")
)

// Document is a source document before chunking. Documents are
// transient: they exist only while the store is being built.
type Document struct {
	Title string
	URL   string
	Text  string
}

// Chunk is the unit of retrieval: a bounded, overlapping slice of a
// source document together with its lexical tokens. Chunks are
// immutable once the store is built.
type Chunk struct {
	Title  string
	URL    string
	Text   string
	Tokens []string
}

// ScoredChunk pairs a chunk with its adjusted relevance score.
type ScoredChunk struct {
	Chunk
	Score float64
}
