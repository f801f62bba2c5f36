package asr

import "testing"

func wordSegments(words []string, start int64) []Segment {
	segments := make([]Segment, 0, len(words))
	cur := start
	for _, w := range words {
		dur := int64(len(w)) * 80
		segments = append(segments, Segment{Text: w, StartTimeMS: cur, EndTimeMS: cur + dur})
		cur += dur + 100
	}
	return segments
}

func TestIsWordTimestamp(t *testing.T) {
	word := Transcript{Segments: wordSegments([]string{"the", "quick", "brown", "fox"}, 0)}
	if !word.IsWordTimestamp() {
		t.Fatal("expected single-word segments to be detected as word-level")
	}

	sentence := Transcript{Segments: []Segment{
		{Text: "the quick brown fox jumps", StartTimeMS: 0, EndTimeMS: 2000},
		{Text: "over the lazy dog", StartTimeMS: 2200, EndTimeMS: 4000},
	}}
	if sentence.IsWordTimestamp() {
		t.Fatal("expected multi-word sentences to not be detected as word-level")
	}
}

func TestMergeChunks_SingleChunkReturnedUnchanged(t *testing.T) {
	merger := NewChunkMerger()
	chunk := Transcript{Segments: []Segment{{Text: "hello", StartTimeMS: 0, EndTimeMS: 500}}}
	got, err := merger.MergeChunks([]Transcript{chunk}, nil, 10000)
	if err != nil {
		t.Fatalf("MergeChunks: %v", err)
	}
	if len(got.Segments) != 1 || got.Segments[0].Text != "hello" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestMergeChunks_RejectsEmptyInput(t *testing.T) {
	merger := NewChunkMerger()
	if _, err := merger.MergeChunks(nil, nil, 10000); err == nil {
		t.Fatal("expected error for empty chunk list")
	}
}

func TestMergeChunks_WordLevelExactOverlapAligns(t *testing.T) {
	merger := NewChunkMerger()

	// Chunk A covers "the quick brown fox jumps over", chunk B re-recognizes
	// the trailing overlap "fox jumps over the lazy dog" from its own t=0 —
	// offsets make the overlap identical in both chunks' absolute time.
	chunkA := Transcript{Segments: wordSegments([]string{"the", "quick", "brown", "fox", "jumps", "over"}, 0)}
	overlapStart := chunkA.Segments[3].StartTimeMS // "fox"
	chunkB := Transcript{Segments: wordSegments([]string{"fox", "jumps", "over", "the", "lazy", "dog"}, 0)}

	merged, err := merger.MergeChunks([]Transcript{chunkA, chunkB}, []int64{0, overlapStart}, 2000)
	if err != nil {
		t.Fatalf("MergeChunks: %v", err)
	}

	var text []string
	for _, seg := range merged.Segments {
		text = append(text, seg.Text)
	}

	// The duplicated "fox jumps over" run must appear once, not twice, and
	// the tail unique to chunk B must be present.
	seen := map[string]int{}
	for _, w := range text {
		seen[w]++
	}
	if seen["fox"] > 1 || seen["jumps"] > 1 || seen["over"] > 1 {
		t.Fatalf("expected overlap words deduplicated, got %v", text)
	}
	if seen["lazy"] != 1 || seen["dog"] != 1 {
		t.Fatalf("expected chunk B's unique tail preserved, got %v", text)
	}
}

func TestMergeChunks_NoOverlapConcatenates(t *testing.T) {
	merger := NewChunkMerger()
	chunkA := Transcript{Segments: []Segment{{Text: "first chunk text", StartTimeMS: 0, EndTimeMS: 1000}}}
	chunkB := Transcript{Segments: []Segment{{Text: "second chunk text", StartTimeMS: 0, EndTimeMS: 1000}}}

	merged, err := merger.MergeChunks([]Transcript{chunkA, chunkB}, []int64{0, 50000}, 2000)
	if err != nil {
		t.Fatalf("MergeChunks: %v", err)
	}
	if len(merged.Segments) != 2 {
		t.Fatalf("expected straight concatenation when no overlap, got %d segments", len(merged.Segments))
	}
}

func TestSimilarityRatio(t *testing.T) {
	if r := similarityRatio("hello world", "hello world"); r != 1.0 {
		t.Fatalf("expected identical strings to score 1.0, got %f", r)
	}
	if r := similarityRatio("", ""); r != 1.0 {
		t.Fatalf("expected two empty strings to score 1.0, got %f", r)
	}
	if r := similarityRatio("completely different", "xyz123"); r > 0.3 {
		t.Fatalf("expected dissimilar strings to score low, got %f", r)
	}
	close := similarityRatio("the quick brown fox", "the quick brown fax")
	if close < 0.8 {
		t.Fatalf("expected near-identical strings to score high, got %f", close)
	}
}
