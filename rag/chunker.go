package rag

import (
	"math"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkWidth is the maximum fragment width, in characters, used when
// building a store.
const DefaultChunkWidth = 2000

type span struct {
	lo, hi int
	runes  int
	blank  bool
}

// Chunk splits text into the fewest fragments of at most width characters.
// Fragments break only at whitespace and keep their internal whitespace
// untouched; the whitespace run at each break is dropped. A single word wider
// than width is emitted on its own. A width <= 0 means unbounded.
func Chunk(text string, width int) []string {
	if width <= 0 {
		width = math.MaxInt
	}
	spans := splitWhitespace(text)
	var fragments []string
	for i := 0; i < len(spans); {
		if len(fragments) > 0 && spans[i].blank {
			i++
			continue
		}
		start, size := i, 0
		for i < len(spans) && size+spans[i].runes <= width {
			size += spans[i].runes
			i++
		}
		if i == start {
			i++
		}
		end := i
		if spans[end-1].blank {
			end--
		}
		if end > start {
			fragments = append(fragments, text[spans[start].lo:spans[end-1].hi])
		}
	}
	return fragments
}

// splitWhitespace returns alternating runs of whitespace and non-whitespace.
func splitWhitespace(text string) []span {
	var spans []span
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		blank := unicode.IsSpace(r)
		if n := len(spans); n > 0 && spans[n-1].blank == blank {
			spans[n-1].hi = i + size
			spans[n-1].runes++
		} else {
			spans = append(spans, span{lo: i, hi: i + size, runes: 1, blank: blank})
		}
		i += size
	}
	return spans
}
