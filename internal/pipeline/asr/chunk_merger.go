package asr

import "fmt"

// ChunkMerger stitches together the ASR transcripts produced by splitting a
// long recording into overlapping chunks and transcribing each separately.
// It locates the best textual alignment between each pair of adjacent
// chunks' overlap regions using a sliding window (ported from the Groq API
// Cookbook long-audio recipe) and cuts at the midpoint of that alignment,
// falling back to a time-boundary cut when no confident match is found.
type ChunkMerger struct {
	MinMatchCount  int
	FuzzyThreshold float64
}

// NewChunkMerger returns a merger with the reference defaults: at least two
// aligned segments required, and a difflib-ratio threshold of 0.7 for
// sentence-level (non-word) matching.
func NewChunkMerger() *ChunkMerger {
	return &ChunkMerger{MinMatchCount: 2, FuzzyThreshold: 0.7}
}

// MergeChunks combines transcripts produced from consecutive, overlapping
// audio chunks into one. chunkOffsets gives each chunk's absolute start time
// in milliseconds; pass nil to infer offsets from each chunk's last segment
// end time minus overlapDuration. overlapDuration is the expected overlap
// between adjacent chunks, in milliseconds.
func (m *ChunkMerger) MergeChunks(chunks []Transcript, chunkOffsets []int64, overlapDuration int64) (Transcript, error) {
	if len(chunks) == 0 {
		return Transcript{}, fmt.Errorf("asr: chunks must not be empty")
	}
	if len(chunks) == 1 {
		return chunks[0], nil
	}

	wordLevel := false
	for _, c := range chunks {
		if c.IsWordTimestamp() {
			wordLevel = true
			break
		}
	}

	if chunkOffsets == nil {
		chunkOffsets = inferChunkOffsets(chunks, overlapDuration)
	}
	if len(chunks) != len(chunkOffsets) {
		return Transcript{}, fmt.Errorf("asr: %d chunks but %d offsets", len(chunks), len(chunkOffsets))
	}

	adjusted := make([][]Segment, len(chunks))
	for i, c := range chunks {
		adjusted[i] = adjustTimestamps(c.Segments, chunkOffsets[i])
	}

	merged := adjusted[0]
	for i := 1; i < len(adjusted); i++ {
		merged = m.mergeTwoSequences(merged, adjusted[i], overlapDuration, wordLevel)
	}

	return Transcript{Segments: merged}, nil
}

func (m *ChunkMerger) mergeTwoSequences(left, right []Segment, overlapDuration int64, wordLevel bool) []Segment {
	if len(left) == 0 {
		return right
	}
	if len(right) == 0 {
		return left
	}

	leftLen := len(left)
	leftOverlap := extractOverlapSegments(left, true, overlapDuration)
	rightOverlap := extractOverlapSegments(right, false, overlapDuration)

	if len(leftOverlap) == 0 || len(rightOverlap) == 0 {
		return append(append([]Segment{}, left...), right...)
	}

	match := m.findBestAlignment(leftOverlap, rightOverlap, wordLevel)
	if match == nil {
		splitIdx := leftLen
		rightStart := right[0].StartTimeMS
		for i := leftLen - 1; i >= 0; i-- {
			if left[i].EndTimeMS <= rightStart {
				splitIdx = i + 1
				break
			}
		}
		return append(append([]Segment{}, left[:splitIdx]...), right...)
	}

	leftMid := (match.leftStart + match.leftEnd) / 2
	rightMid := (match.rightStart + match.rightEnd) / 2

	leftOverlapOffset := leftLen - len(leftOverlap)
	leftCut := leftOverlapOffset + leftMid

	return append(append([]Segment{}, left[:leftCut]...), right[rightMid:]...)
}

type alignment struct {
	leftStart, leftEnd   int
	rightStart, rightEnd int
	matches              int
}

// findBestAlignment slides a window across the combined length of left and
// right, scoring each candidate split by the number of matching segments in
// the overlap (normalized by window size, with a small bonus for longer
// windows so ties prefer more context) and returns the highest-scoring
// split meeting MinMatchCount, or nil if none qualifies.
func (m *ChunkMerger) findBestAlignment(left, right []Segment, wordLevel bool) *alignment {
	leftLen, rightLen := len(left), len(right)

	bestScore := 0.0
	var best *alignment

	for i := 1; i <= leftLen+rightLen; i++ {
		epsilon := float64(i) / 10000.0

		leftStart := max(0, leftLen-i)
		leftEnd := min(leftLen, leftLen+rightLen-i)
		rightStart := max(0, i-leftLen)
		rightEnd := min(rightLen, i)

		leftSlice := left[leftStart:leftEnd]
		rightSlice := right[rightStart:rightEnd]
		if len(leftSlice) != len(rightSlice) {
			continue
		}

		matches := 0
		for k := range leftSlice {
			if segmentsMatch(leftSlice[k], rightSlice[k], wordLevel, m.FuzzyThreshold) {
				matches++
			}
		}

		score := float64(matches)/float64(i) + epsilon
		if matches >= m.MinMatchCount && score > bestScore {
			bestScore = score
			best = &alignment{leftStart: leftStart, leftEnd: leftEnd, rightStart: rightStart, rightEnd: rightEnd, matches: matches}
		}
	}

	return best
}

func segmentsMatch(a, b Segment, wordLevel bool, fuzzyThreshold float64) bool {
	if wordLevel {
		return a.Text == b.Text
	}
	return similarityRatio(a.Text, b.Text) > fuzzyThreshold
}

func adjustTimestamps(segments []Segment, offset int64) []Segment {
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		out[i] = Segment{
			Text:           seg.Text,
			TranslatedText: seg.TranslatedText,
			StartTimeMS:    seg.StartTimeMS + offset,
			EndTimeMS:      seg.EndTimeMS + offset,
		}
	}
	return out
}

// extractOverlapSegments returns the trailing (fromEnd=true) or leading
// (fromEnd=false) segments of segments that fall within duration of its
// boundary, for use as the overlap region fed to findBestAlignment.
func extractOverlapSegments(segments []Segment, fromEnd bool, duration int64) []Segment {
	if len(segments) == 0 {
		return nil
	}

	var overlap []Segment
	if fromEnd {
		threshold := segments[len(segments)-1].EndTimeMS - duration
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i].StartTimeMS >= threshold {
				overlap = append([]Segment{segments[i]}, overlap...)
			} else {
				break
			}
		}
	} else {
		threshold := segments[0].StartTimeMS + duration
		for _, seg := range segments {
			if seg.EndTimeMS <= threshold {
				overlap = append(overlap, seg)
			} else {
				break
			}
		}
	}
	return overlap
}

func inferChunkOffsets(chunks []Transcript, overlapDuration int64) []int64 {
	offsets := make([]int64, len(chunks))
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		if len(prev.Segments) == 0 {
			offsets[i] = offsets[i-1]
			continue
		}
		prevEnd := prev.Segments[len(prev.Segments)-1].EndTimeMS
		next := offsets[i-1] + prevEnd - overlapDuration
		if next < offsets[i-1] {
			next = offsets[i-1]
		}
		offsets[i] = next
	}
	return offsets
}
