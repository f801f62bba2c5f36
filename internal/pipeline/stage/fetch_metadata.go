package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/vidsum-dev/vidsum/internal/pipeline"
)

// FetchMetadataConfig configures the ffprobe binary used to read media
// metadata from a local file.
type FetchMetadataConfig struct {
	FFprobePath string
}

// FetchMetadata populates duration, width, height, fps, and bitrate by
// probing a local file (video_path or local_input_path) or, for the URL
// flow, the source URL directly — ffprobe reads http(s) streams without a
// full download, which is why fetch_metadata runs in parallel with the
// subtitle branch rather than after download_video.
type FetchMetadata struct {
	ffprobePath string
}

func NewFetchMetadata(params map[string]any) (pipeline.Stage, error) {
	path := "ffprobe"
	if v, ok := params["ffprobe_path"].(string); ok && v != "" {
		path = v
	}
	return &FetchMetadata{ffprobePath: path}, nil
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

func (s *FetchMetadata) Run(ctx *pipeline.Context, params map[string]any) error {
	pathVal, ok := ctx.Get(KeyVideoPath)
	if !ok {
		pathVal, ok = ctx.Get(KeyLocalInputPath)
	}
	path, _ := pathVal.(string)

	if !ok || path == "" {
		if urlVal, urlOK := ctx.Get(KeySourceURL); urlOK {
			path, _ = urlVal.(string)
			ok = path != ""
		}
	} else if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("fetch_metadata: input file missing: %w", err)
	}

	if !ok || path == "" {
		return fmt.Errorf("fetch_metadata: no input file or source_url available to probe")
	}

	out, err := s.probe(path)
	if err != nil {
		return fmt.Errorf("fetch_metadata: %w", err)
	}

	duration, _ := strconv.ParseFloat(out.Format.Duration, 64)
	bitrate, _ := strconv.ParseInt(out.Format.BitRate, 10, 64)
	ctx.Set(KeyVideoDuration, duration)
	ctx.Set(KeyVideoBitrate, bitrate)

	for _, st := range out.Streams {
		if st.CodecType != "video" {
			continue
		}
		ctx.Set(KeyVideoWidth, st.Width)
		ctx.Set(KeyVideoHeight, st.Height)
		ctx.Set(KeyVideoFPS, parseFrameRate(st.AvgFrameRate, st.RFrameRate))
		break
	}

	return nil
}

func (s *FetchMetadata) probe(path string) (*ffprobeOutput, error) {
	cmd := exec.CommandContext(context.Background(), s.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	return &out, nil
}

func parseFrameRate(rates ...string) float64 {
	for _, rate := range rates {
		parts := strings.SplitN(rate, "/", 2)
		if len(parts) != 2 {
			continue
		}
		num, errA := strconv.ParseFloat(parts[0], 64)
		den, errB := strconv.ParseFloat(parts[1], 64)
		if errA == nil && errB == nil && den != 0 {
			return num / den
		}
	}
	return 0
}
