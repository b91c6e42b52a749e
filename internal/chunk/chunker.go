// Package chunk splits extracted document text into bounded, overlapping
// segments — the unit stored in the vector index.
package chunk

import (
	"strings"
)

// separators is the split priority: paragraph break, line break, space, and
// finally individual characters.
var separators = []string{"\n\n", "\n", " ", ""}

// Metadata is the free-form metadata attached to every chunk.
type Metadata map[string]any

// Piece is one chunk of text with its metadata.
type Piece struct {
	Text     string
	Metadata Metadata
}

// Chunker splits text into segments of at most Size bytes with Overlap bytes
// shared between consecutive segments. Splitting is deterministic.
type Chunker struct {
	Size    int
	Overlap int
}

// New returns a Chunker; overlap is clamped below size.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Chunk splits text and attaches base metadata merged with chunk_index and
// chunk_total to every piece. Whitespace-only input yields nil.
func (c *Chunker) Chunk(text string, base Metadata) []Piece {
	segments := c.Split(text)
	if len(segments) == 0 {
		return nil
	}
	pieces := make([]Piece, len(segments))
	for i, seg := range segments {
		md := make(Metadata, len(base)+2)
		for k, v := range base {
			md[k] = v
		}
		md["chunk_index"] = i
		md["chunk_total"] = len(segments)
		pieces[i] = Piece{Text: seg, Metadata: md}
	}
	return pieces
}

// Split returns the raw segments for text. Input at or under Size comes back
// as a single segment equal to the input.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= c.Size {
		return []string{text}
	}
	return c.split(text, separators)
}

// split recursively divides text using the first separator present, merging
// small parts back into segments of at most Size with Overlap carry-over.
func (c *Chunker) split(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	parts := splitKeepSep(text, sep)

	var segments []string
	var pending []string
	for _, p := range parts {
		if len(p) <= c.Size {
			pending = append(pending, p)
			continue
		}
		segments = append(segments, c.merge(pending)...)
		pending = nil
		if len(rest) > 0 {
			segments = append(segments, c.split(p, rest)...)
		} else {
			segments = append(segments, p)
		}
	}
	return append(segments, c.merge(pending)...)
}

// merge greedily packs parts into segments of at most Size bytes, retaining
// up to Overlap bytes of trailing parts as the start of the next segment.
// Separators stay attached to the preceding part, so joining is plain
// concatenation.
func (c *Chunker) merge(parts []string) []string {
	var segments []string
	var window []string
	total := 0
	for _, p := range parts {
		if total+len(p) > c.Size && len(window) > 0 {
			if seg := strings.Join(window, ""); strings.TrimSpace(seg) != "" {
				segments = append(segments, seg)
			}
			for total > c.Overlap || (total+len(p) > c.Size && total > 0) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += len(p)
	}
	if seg := strings.Join(window, ""); strings.TrimSpace(seg) != "" {
		segments = append(segments, seg)
	}
	return segments
}

// splitKeepSep splits text after each occurrence of sep, so segments
// concatenate back to the original. The empty separator splits into runes.
func splitKeepSep(text, sep string) []string {
	if sep == "" {
		parts := make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	raw := strings.SplitAfter(text, sep)
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
