package stage

import (
	"github.com/vidsum-dev/vidsum/internal/pipeline"
)

// Config bundles everything needed to register the canonical stage library
// into a pipeline.Registry under the node type names used by job DAG
// construction.
type Config struct {
	FFmpegPath    string
	FFprobePath   string
	Limiters      *Limiters
	Thresholds    Thresholds
	DownloadVideo DownloadVideoConfig
	Transcribe    TranscribeConfig
	TextSummarize TextSummarizeConfig
}

// Node type names as declared in job DAG NodeConfig.Type.
const (
	TypeInput            = "input"
	TypeFetchMetadata    = "fetch_metadata"
	TypeDownloadSubtitle = "download_subtitle"
	TypeDownloadVideo    = "download_video"
	TypeParseSubtitle    = "parse_subtitle"
	TypeValidateSubtitle = "validate_subtitle"
	TypeExtractAudio     = "extract_audio"
	TypeDetectSilence    = "detect_silence"
	TypeTranscribe       = "transcribe"
	TypeTextSummarize    = "text_summarize"
)

// Register installs every canonical stage factory into reg.
func Register(reg *pipeline.Registry, cfg Config) {
	reg.Register(TypeInput, NewInput)
	reg.Register(TypeFetchMetadata, NewFetchMetadata)
	reg.Register(TypeDownloadSubtitle, NewDownloadSubtitle)
	reg.Register(TypeDownloadVideo, NewDownloadVideoFactory(cfg.DownloadVideo))
	reg.Register(TypeParseSubtitle, NewParseSubtitle)
	reg.Register(TypeValidateSubtitle, NewValidateSubtitleFactory(cfg.Thresholds))
	reg.Register(TypeExtractAudio, NewExtractAudioFactory(cfg.FFmpegPath, cfg.Limiters))
	reg.Register(TypeDetectSilence, NewDetectSilenceFactory(cfg.Thresholds))
	reg.Register(TypeTranscribe, NewTranscribeFactory(cfg.Transcribe))
	reg.Register(TypeTextSummarize, NewTextSummarizeFactory(cfg.TextSummarize))
}
