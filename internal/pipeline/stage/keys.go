package stage

// Context keys shared across stages. Stages only communicate through
// pipeline.Context.Get/Set under these keys plus the bundle_dir filesystem.
const (
	KeySourceType      = "source_type"
	KeySourceURL       = "source_url"
	KeyLocalInputType  = "local_input_type"
	KeyLocalInputPath  = "local_input_path"
	KeyVideoDuration   = "video_duration"
	KeyVideoWidth      = "video_width"
	KeyVideoHeight     = "video_height"
	KeyVideoFPS        = "video_fps"
	KeyVideoBitrate    = "video_bitrate"
	KeySubtitlePath    = "subtitle_path"
	KeyVideoPath       = "video_path"
	KeyAudioPath       = "audio_path"
	KeyAudioTrackIndex = "audio_track_index"

	KeyASRData              = "asr_data"
	KeySubtitleSegmentCount = "subtitle_segment_count"
	KeySubtitleValid        = "subtitle_valid"
	KeySubtitleCoverage     = "subtitle_coverage_ratio"
	KeySubtitleDensity      = "subtitle_density"

	KeyTranscriptTokenCount   = "transcript_token_count"
	KeyTranscriptSegmentCount = "transcript_segment_count"
	KeyIsSilent               = "is_silent"
	KeyAudioRMS               = "audio_rms"
	KeyTokensPerMinute        = "tokens_per_minute"

	KeySummaryText = "summary_text"

	KeySourceName = "source_name"
)

// Thresholds carries the tunable limits stages read when deciding validity.
// One instance is shared (read-only) across all stages of a run.
type Thresholds struct {
	SubtitleCoverageMin   float64
	TranscriptTokenPerMin float64
	MaxInputChars         int
}
