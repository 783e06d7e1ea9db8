// Package store persists embedded chunks in one SQL table per owner.
// Vectors are stored as little-endian float32 BLOBs.
package store

import (
	"fmt"
)

// Row is one embedded chunk in an owner's table.
type Row struct {
	ID      string
	Source  string // storage URI of the document the chunk came from
	Page    string
	Ordinal int
	Text    string
	Vector  []float32
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (check EMBEDDING_SIZE)", e.Expected, e.Got)
}
