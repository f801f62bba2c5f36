// Package asr models speech-recognition transcript segments and merges the
// per-chunk results produced when a long recording is split for parallel
// transcription.
package asr

import "strings"

// Segment is one recognized span of speech.
type Segment struct {
	Text           string
	TranslatedText string
	StartTimeMS    int64
	EndTimeMS      int64
}

// Transcript is an ordered, non-overlapping sequence of segments.
type Transcript struct {
	Segments []Segment
}

const wordLevelThreshold = 0.8

// IsWordTimestamp reports whether at least 80% of segments look like
// individual words (a single non-CJK word, or 1-2 CJK characters) rather
// than full sentences. The merge algorithm uses this to pick exact vs
// fuzzy text matching when aligning overlapping chunks.
func (t Transcript) IsWordTimestamp() bool {
	if len(t.Segments) == 0 {
		return false
	}
	wordLevel := 0
	for _, seg := range t.Segments {
		if isWordLevelSegment(seg) {
			wordLevel++
		}
	}
	return float64(wordLevel)/float64(len(t.Segments)) >= wordLevelThreshold
}

func isWordLevelSegment(seg Segment) bool {
	text := strings.TrimSpace(seg.Text)
	if isMainlyCJK(text) {
		return len([]rune(text)) <= 2
	}
	return len(strings.Fields(text)) == 1
}

// isMainlyCJK reports whether more than half of text's runes fall in the
// CJK Unified Ideographs, Hiragana, or Katakana blocks.
func isMainlyCJK(text string) bool {
	runes := []rune(text)
	if len(runes) == 0 {
		return false
	}
	cjk := 0
	for _, r := range runes {
		if isCJKRune(r) {
			cjk++
		}
	}
	return float64(cjk)/float64(len(runes)) > 0.5
}

func isCJKRune(r rune) bool {
	switch {
	case r >= 0x4e00 && r <= 0x9fff: // CJK unified ideographs
		return true
	case r >= 0x3040 && r <= 0x309f: // hiragana
		return true
	case r >= 0x30a0 && r <= 0x30ff: // katakana
		return true
	default:
		return false
	}
}
