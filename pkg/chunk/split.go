// Package chunk partitions large documents for extraction and merges
// the per-chunk results back into one record.
package chunk

import (
	"strings"
	"unicode/utf8"
)

const (
	// reservedTokens is held back from the context window for the
	// system prompt, the response, and the thinking budget.
	reservedTokens = 37000
	// minUsableTokens keeps chunking sane on very small windows.
	minUsableTokens = 8000
	// fillRatio leaves headroom under the usable window.
	fillRatio = 0.70
	// charsPerToken is the rough character/token estimate.
	charsPerToken = 4

	minOverlap = 2000
)

// MaxChars returns the largest chunk size in characters for a model
// with the given context window.
func MaxChars(contextWindow int) int {
	usable := contextWindow - reservedTokens
	if usable < minUsableTokens {
		usable = minUsableTokens
	}
	return int(float64(usable) * fillRatio * charsPerToken)
}

// Split partitions text into chunks of at most maxChars characters.
// Consecutive chunks overlap by 10% (at least 2000 characters) so that
// facts straddling a boundary are seen whole at least once. Break
// points prefer markdown structure: headings, then blank lines, then
// line ends; table rows are never split.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	overlap := maxChars / 10
	if overlap < minOverlap {
		overlap = minOverlap
	}

	chunks := make([]string, 0, len(text)/maxChars+1)
	start := 0
	for {
		end := start + maxChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		cut := findStructureBreak(text, start+maxChars/2, end)
		if cut <= start {
			cut = alignRune(text, end)
		}
		chunks = append(chunks, text[start:cut])

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = alignRune(text, next)
	}
	return chunks
}

// findStructureBreak returns the best cut position in text[lo:hi], or
// -1 when no structural break exists there. Search runs backwards so
// chunks stay as full as possible.
func findStructureBreak(text string, lo, hi int) int {
	type candidate struct {
		marker string
		// cutAfterMarker keeps the marker in the earlier chunk;
		// otherwise the cut lands before it so a heading opens the
		// next chunk.
		cutAfterMarker bool
	}
	candidates := []candidate{
		{marker: "\n## "},
		{marker: "\n# "},
		{marker: "\n\n", cutAfterMarker: true},
		{marker: "\n", cutAfterMarker: true},
	}

	for _, c := range candidates {
		region := text[lo:hi]
		offset := len(region)
		for offset > 0 {
			idx := strings.LastIndex(region[:offset], c.marker)
			if idx < 0 {
				break
			}
			pos := lo + idx
			if insideTable(text, pos) {
				offset = idx
				continue
			}
			if c.cutAfterMarker {
				return pos + len(c.marker)
			}
			// Cut after the newline, before the heading text.
			return pos + 1
		}
	}
	return -1
}

// insideTable reports whether the position sits in a markdown table
// block. It scans the lines within 200 characters either side for
// table rows.
func insideTable(text string, pos int) bool {
	lo := pos - 200
	if lo < 0 {
		lo = 0
	}
	hi := pos + 200
	if hi > len(text) {
		hi = len(text)
	}
	for _, line := range strings.Split(text[lo:hi], "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") {
			return true
		}
	}
	return false
}

// alignRune moves pos left to the nearest rune boundary so a hard cut
// never splits a multi-byte character.
func alignRune(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}
