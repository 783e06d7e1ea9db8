// Package chunk turns uploaded documents into overlapping text windows
// ready for embedding.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Window defaults, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Page is the text of one page. Number is 0-indexed.
type Page struct {
	Number int
	Text   string
}

// Document is extracted text awaiting splitting.
type Document struct {
	// Source identifies the document in the index (its storage path).
	Source string
	Pages  []Page
}

// Chunk is a retrievable unit of text.
type Chunk struct {
	ID      string // SHA256(source | page | ordinal)[:16]
	Source  string
	Page    string
	Ordinal int // position within the document
	Text    string
}

// ChunkID derives a stable chunk id, so re-indexing the same document
// produces the same ids.
func ChunkID(source string, page, ordinal int) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(page)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(ordinal)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
