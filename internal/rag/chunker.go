// Package rag – text chunking
//
// Splits knowledge-base documents into overlapping chunks sized for
// embedding. Paragraph boundaries are respected where possible; paragraphs
// longer than the chunk size fall back to word-level splitting. Each chunk
// after the first is prefixed with the tail of its predecessor so answers
// spanning a boundary stay retrievable.
package rag

import "strings"

// Chunker splits text into chunks of roughly Size characters with Overlap
// characters carried over between consecutive chunks.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a Chunker with sane bounds applied.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split divides text into chunks. Empty input yields no chunks; input that
// fits within Size yields exactly one.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.Size {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(cur.String()))
		cur.Reset()
	}

	for _, p := range paragraphs {
		pieces := []string{p}
		if len(p) > c.Size {
			pieces = c.splitWords(p)
		}
		for _, piece := range pieces {
			if cur.Len() > 0 && cur.Len()+len(piece)+2 > c.Size {
				tail := overlapTail(cur.String(), c.Overlap)
				flush()
				if tail != "" {
					cur.WriteString(tail)
					cur.WriteString(" ")
				}
			}
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// splitWords breaks an oversized paragraph into Size-bounded pieces on word
// boundaries.
func (c *Chunker) splitWords(p string) []string {
	words := strings.Fields(p)
	var out []string
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() > 0 && cur.Len()+len(w)+1 > c.Size {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// overlapTail returns the last n characters of s, extended left to the
// nearest word boundary.
func overlapTail(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || s == "" {
		return ""
	}
	if len(s) <= n {
		return s
	}
	tail := s[len(s)-n:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
