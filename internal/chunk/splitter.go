package chunk

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Splitter cuts text into windows of at most Size characters, with
// consecutive windows sharing up to Overlap characters.
//
// Text is first split on Separator; pieces are merged greedily into windows.
// A piece longer than Size is cut on whitespace near the limit.
type Splitter struct {
	Size      int
	Overlap   int
	Separator string
}

// NewSplitter returns a Splitter with defaults filled in.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return Splitter{Size: size, Overlap: overlap, Separator: "\n\n"}
}

// Split chunks every page of doc. Empty pages produce no chunks.
func (s Splitter) Split(doc Document) []Chunk {
	var chunks []Chunk
	for _, page := range doc.Pages {
		for _, text := range s.SplitText(page.Text) {
			ordinal := len(chunks)
			chunks = append(chunks, Chunk{
				ID:      ChunkID(doc.Source, page.Number, ordinal),
				Source:  doc.Source,
				Page:    strconv.Itoa(page.Number),
				Ordinal: ordinal,
				Text:    text,
			})
		}
	}
	return chunks
}

// SplitText splits a single text.
func (s Splitter) SplitText(text string) []string {
	sep := s.Separator
	if sep == "" {
		sep = "\n\n"
	}

	var pieces []string
	for _, p := range strings.Split(text, sep) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runeLen(p) > s.Size {
			pieces = append(pieces, s.window(p)...)
			continue
		}
		pieces = append(pieces, p)
	}
	return s.merge(pieces, sep)
}

// merge packs pieces into windows, carrying trailing pieces that fit in
// Overlap into the next window.
func (s Splitter) merge(pieces []string, sep string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	sepLen := runeLen(sep)

	for _, p := range pieces {
		pl := runeLen(p)
		joined := total + pl
		if len(current) > 0 {
			joined += sepLen
		}
		if joined > s.Size && len(current) > 0 {
			out = append(out, strings.Join(current, sep))
			// Drop from the front until what is left fits the overlap and
			// leaves room for p.
			for len(current) > 0 && (total > s.Overlap || total+sepLen+pl > s.Size) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, p)
		total += pl
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, sep))
	}
	return out
}

// window hard-splits an oversized piece into Size-rune windows stepping by
// Size-Overlap, preferring to end each window at whitespace.
func (s Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.Size - s.Overlap
	if step <= 0 {
		step = s.Size
	}

	var out []string
	for start := 0; start < len(runes); {
		end := start + s.Size
		if end >= len(runes) {
			out = appendNonEmpty(out, string(runes[start:]))
			break
		}
		// Back off to whitespace within the last quarter of the window.
		cut := end
		for i := end; i > end-s.Size/4 && i > start; i-- {
			if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
				cut = i
				break
			}
		}
		out = appendNonEmpty(out, string(runes[start:cut]))
		next := cut - s.Overlap
		if next <= start {
			next = start + step
		}
		start = next
	}
	return out
}

func appendNonEmpty(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
