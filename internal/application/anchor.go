// Package application contains the comment synchronization engine: anchor
// resolution, inbound/outbound sync passes, thread metadata merging, and
// orphan detection.
package application

import "strings"

// LinePosition is a resolved position in the remote host's line-addressed
// commenting model. Line is the commentable line (the last line for
// multi-line anchors); StartLine is the first line of a multi-line range,
// 0 for single-line anchors.
type LinePosition struct {
	Line      int
	StartLine int
}

// Anchor is an offset range plus the literal text it covered at capture time.
type Anchor struct {
	Start int
	End   int
	Text  string
}

// resolveLineFromAnchor converts a text anchor to a 1-based line number.
//
// Resolution order: a unique occurrence of anchorText wins; among multiple
// occurrences the one nearest approxOffset wins; an unmatched anchor falls
// back to newline counting at approxOffset (best effort, no StartLine).
// approxOffset < 0 means no offset hint is available.
//
// Returns nil only when documentText is empty. Whitespace-only anchor text
// never matches and takes the offset fallback.
func resolveLineFromAnchor(documentText, anchorText string, approxOffset int) *LinePosition {
	if documentText == "" {
		return nil
	}

	if strings.TrimSpace(anchorText) != "" {
		offsets := findAllOccurrences(documentText, anchorText)

		var matchOffset = -1
		switch {
		case len(offsets) == 1:
			matchOffset = offsets[0]
		case len(offsets) > 1 && approxOffset >= 0:
			matchOffset = nearestOffset(offsets, approxOffset)
		case len(offsets) > 1:
			matchOffset = offsets[0]
		}

		if matchOffset >= 0 {
			start := lineOfOffset(documentText, matchOffset)
			end := lineOfOffset(documentText, matchOffset+len(anchorText)-1)
			if end > start {
				return &LinePosition{Line: end, StartLine: start}
			}
			return &LinePosition{Line: start}
		}
	}

	if approxOffset < 0 {
		approxOffset = 0
	}
	return &LinePosition{Line: lineOfOffset(documentText, approxOffset)}
}

// resolveAnchorFromLine is the inverse direction, used when importing a
// remote comment that only carries a line number. The trimmed text of the
// target line becomes the anchor. When that line is ambiguous (blank, or
// duplicated elsewhere in the document) and a diff context is available, the
// last non-empty content line of the diff context is preferred.
func resolveAnchorFromLine(documentText string, lineNumber int, diffContext string) Anchor {
	lines := strings.Split(documentText, "\n")
	if lineNumber < 1 {
		lineNumber = 1
	}
	if lineNumber > len(lines) {
		lineNumber = len(lines)
	}

	lineText := lines[lineNumber-1]
	trimmed := strings.TrimSpace(lineText)

	ambiguous := trimmed == "" || strings.Count(documentText, trimmed) > 1
	if ambiguous && diffContext != "" {
		if fromDiff := lastContentLine(diffContext); fromDiff != "" {
			if anchor, ok := anchorForText(documentText, fromDiff, lineNumber); ok {
				return anchor
			}
		}
	}

	lineStart := offsetOfLine(documentText, lineNumber)
	start := lineStart
	if trimmed != "" {
		start += strings.Index(lineText, trimmed)
	}
	return Anchor{
		Start: start,
		End:   start + len(trimmed),
		Text:  trimmed,
	}
}

// anchorForText locates text in the document, preferring the occurrence
// nearest the given line, and builds an anchor for it.
func anchorForText(documentText, text string, nearLine int) (Anchor, bool) {
	offsets := findAllOccurrences(documentText, text)
	if len(offsets) == 0 {
		return Anchor{}, false
	}

	target := offsetOfLine(documentText, nearLine)
	off := nearestOffset(offsets, target)
	return Anchor{Start: off, End: off + len(text), Text: text}, true
}

// lastContentLine returns the trimmed payload of the last non-empty line in
// a unified diff hunk, skipping hunk headers and deletion lines.
func lastContentLine(diffHunk string) string {
	lines := strings.Split(diffHunk, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "-") {
			continue
		}
		line = strings.TrimPrefix(line, "+")
		line = strings.TrimPrefix(line, " ")
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// findAllOccurrences returns the byte offsets of every non-overlapping
// occurrence of needle in haystack.
func findAllOccurrences(haystack, needle string) []int {
	if needle == "" {
		return nil
	}

	var offsets []int
	from := 0
	for {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return offsets
		}
		offsets = append(offsets, from+idx)
		from += idx + len(needle)
	}
}

// nearestOffset picks the candidate offset closest to target.
func nearestOffset(offsets []int, target int) int {
	best := offsets[0]
	bestDist := abs(best - target)
	for _, off := range offsets[1:] {
		if d := abs(off - target); d < bestDist {
			best = off
			bestDist = d
		}
	}
	return best
}

// lineOfOffset returns the 1-based line number containing the byte offset.
// Offsets past the end of the document land on the last line.
func lineOfOffset(documentText string, offset int) int {
	if offset > len(documentText) {
		offset = len(documentText)
	}
	if offset < 0 {
		offset = 0
	}
	return strings.Count(documentText[:offset], "\n") + 1
}

// offsetOfLine returns the byte offset of the first character of the
// 1-based line number.
func offsetOfLine(documentText string, lineNumber int) int {
	offset := 0
	for line := 1; line < lineNumber; line++ {
		idx := strings.Index(documentText[offset:], "\n")
		if idx < 0 {
			return offset
		}
		offset += idx + 1
	}
	return offset
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
