package asr

import "context"

// Engine transcribes one audio file into a Transcript. Implementations wrap
// remote HTTP ASR services, OpenAI-compatible speech endpoints, or local
// binaries run as subprocesses; the Transcribe stage is agnostic to which.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}

// ChunkingEngine additionally knows how to split long audio into overlapping
// chunks, transcribe each, and report the chunk boundaries it used so the
// caller can merge them with ChunkMerger. Engines that transcribe a whole
// file in one call need not implement this.
type ChunkingEngine interface {
	Engine
	TranscribeChunks(ctx context.Context, audioPath string, chunkDurationMS, overlapMS int64) ([]Transcript, []int64, error)
}

// TranscribeLong runs engine over audioPath, merging per-chunk results with
// merger when engine supports chunking; otherwise it falls back to a single
// whole-file transcription.
func TranscribeLong(ctx context.Context, engine Engine, merger *ChunkMerger, audioPath string, chunkDurationMS, overlapMS int64) (Transcript, error) {
	chunking, ok := engine.(ChunkingEngine)
	if !ok {
		return engine.Transcribe(ctx, audioPath)
	}

	chunks, offsets, err := chunking.TranscribeChunks(ctx, audioPath, chunkDurationMS, overlapMS)
	if err != nil {
		return Transcript{}, err
	}
	return merger.MergeChunks(chunks, offsets, overlapMS)
}
