package ingest

import (
	"strings"
	"unicode/utf8"
)

// Split cuts text into overlapping passages of roughly size characters.
// Cut points prefer a paragraph break, then a sentence break, then a space
// within the tail of the window, falling back to a hard cut. Consecutive
// passages share overlap characters so no boundary severs meaning without
// redundancy.
func Split(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	var out []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			out = append(out, strings.TrimSpace(text[start:]))
			break
		}
		end = runeStart(text, cutPoint(text, start, end))
		if end <= start {
			// The whole window sits inside one rune; cut after it.
			_, w := utf8.DecodeRuneInString(text[start:])
			end = start + w
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, piece)
		}

		next := runeStart(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}

	// Drop empties produced by whitespace-only windows.
	kept := out[:0]
	for _, p := range out {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return kept
}

// cutPoint looks backwards from end toward the middle of the window for the
// best natural boundary.
func cutPoint(text string, start, end int) int {
	window := text[start:end]
	floor := len(window) / 2

	if i := strings.LastIndex(window, "\n\n"); i > floor {
		return start + i
	}
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if i := strings.LastIndex(window, sep); i > floor {
			return start + i + len(sep)
		}
	}
	if i := strings.LastIndex(window, " "); i > floor {
		return start + i
	}
	return end
}

// runeStart backs i off to the start of the rune it points into, so byte
// offsets never cut multibyte text apart.
func runeStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
