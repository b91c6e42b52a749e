package chunk

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitShortInput(t *testing.T) {
	c := New(500, 50)
	got := c.Split("a short document")
	if len(got) != 1 || got[0] != "a short document" {
		t.Errorf("got %v, want the input back as a single segment", got)
	}
}

func TestSplitWhitespaceOnly(t *testing.T) {
	c := New(500, 50)
	for _, in := range []string{"", "   ", "\n\n\t"} {
		if got := c.Split(in); got != nil {
			t.Errorf("Split(%q) = %v, want nil", in, got)
		}
	}
}

func TestSplitExactOverlap(t *testing.T) {
	// Separator-free input falls through to character splitting, where the
	// overlap between consecutive segments is exact.
	c := New(100, 20)
	text := strings.Repeat("a", 350)

	segs := c.Split(text)
	if len(segs) < 2 {
		t.Fatalf("got %d segments, want several", len(segs))
	}
	for i, s := range segs {
		if len(s) > 100 {
			t.Errorf("segment %d has length %d > 100", i, len(s))
		}
	}
	for i := 1; i < len(segs); i++ {
		prevTail := segs[i-1][len(segs[i-1])-20:]
		if !strings.HasPrefix(segs[i], prevTail) {
			t.Errorf("segment %d does not start with the %d-byte tail of segment %d", i, 20, i-1)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	c := New(120, 30)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 30)

	first := c.Split(text)
	second := c.Split(text)
	if !reflect.DeepEqual(first, second) {
		t.Error("Split is not deterministic for identical input")
	}
	for i, s := range first {
		if len(s) > 120 {
			t.Errorf("segment %d has length %d > 120", i, len(s))
		}
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	c := New(60, 10)
	text := "first paragraph here.\n\nsecond paragraph here.\n\nthird paragraph here."

	segs := c.Split(text)
	if len(segs) < 2 {
		t.Fatalf("got %d segments, want several", len(segs))
	}
	for i, s := range segs {
		if len(s) > 60 {
			t.Errorf("segment %d has length %d > 60", i, len(s))
		}
		if strings.TrimSpace(s) == "" {
			t.Errorf("segment %d is whitespace-only", i)
		}
	}
}

func TestChunkMetadata(t *testing.T) {
	c := New(100, 20)
	text := strings.Repeat("b", 250)
	base := Metadata{"filename": "notes.txt", "file_type": "txt"}

	pieces := c.Chunk(text, base)
	if len(pieces) == 0 {
		t.Fatal("no pieces returned")
	}
	for i, p := range pieces {
		if p.Metadata["chunk_index"] != i {
			t.Errorf("piece %d chunk_index = %v", i, p.Metadata["chunk_index"])
		}
		if p.Metadata["chunk_total"] != len(pieces) {
			t.Errorf("piece %d chunk_total = %v, want %d", i, p.Metadata["chunk_total"], len(pieces))
		}
		if p.Metadata["filename"] != "notes.txt" {
			t.Errorf("piece %d lost base metadata: %v", i, p.Metadata)
		}
	}

	// Base metadata must not be mutated.
	if _, ok := base["chunk_index"]; ok {
		t.Error("base metadata was mutated")
	}
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(500, 50)
	if pieces := c.Chunk("  \n ", Metadata{"filename": "x"}); pieces != nil {
		t.Errorf("got %v, want nil", pieces)
	}
}

func TestNewClampsOverlap(t *testing.T) {
	c := New(100, 100)
	if c.Overlap >= c.Size {
		t.Errorf("overlap %d not clamped below size %d", c.Overlap, c.Size)
	}
}
