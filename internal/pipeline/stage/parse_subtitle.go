package stage

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vidsum-dev/vidsum/internal/pipeline"
	"github.com/vidsum-dev/vidsum/internal/pipeline/asr"
)

// ParseSubtitle reads subtitle_path (WebVTT or SRT) into the shared asr.Transcript
// representation. Parse failure is non-fatal: it clears asr_data rather than
// aborting the run, since a missing subtitle simply routes the job to the
// transcription fallback. No ecosystem subtitle-parsing library surfaced in
// the reference corpus, so this hand-rolls the narrow cue-block grammar both
// formats share.
type ParseSubtitle struct{}

func NewParseSubtitle(params map[string]any) (pipeline.Stage, error) {
	return &ParseSubtitle{}, nil
}

func (s *ParseSubtitle) Run(ctx *pipeline.Context, params map[string]any) error {
	pathVal, ok := ctx.Get(KeySubtitlePath)
	path, _ := pathVal.(string)
	if !ok || path == "" {
		ctx.Set(KeyASRData, nil)
		return nil
	}

	segments, err := parseCueFile(path)
	if err != nil {
		ctx.Set(KeyASRData, nil)
		return nil
	}

	ctx.Set(KeyASRData, asr.Transcript{Segments: segments})
	ctx.Set(KeySubtitleSegmentCount, len(segments))
	return nil
}

func parseCueFile(path string) ([]asr.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var segments []asr.Segment
	var textLines []string
	var start, end int64
	inCue := false

	flush := func() {
		if inCue && len(textLines) > 0 {
			segments = append(segments, asr.Segment{
				Text:        strings.Join(textLines, " "),
				StartTimeMS: start,
				EndTimeMS:   end,
			})
		}
		textLines = nil
		inCue = false
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			flush()
			continue
		}
		if line == "WEBVTT" || isIndexLine(line) {
			continue
		}

		if ts, ok := parseCueTimestampLine(line); ok {
			flush()
			start, end = ts[0], ts[1]
			inCue = true
			continue
		}

		if inCue {
			textLines = append(textLines, stripCueTags(line))
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("parse_subtitle: no cues found")
	}
	return segments, nil
}

func isIndexLine(line string) bool {
	_, err := strconv.Atoi(line)
	return err == nil
}

// parseCueTimestampLine parses "00:00:01,000 --> 00:00:04,000" (SRT) or
// "00:00:01.000 --> 00:00:04.000" (VTT) style lines into millisecond bounds.
func parseCueTimestampLine(line string) ([2]int64, bool) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return [2]int64{}, false
	}
	start, ok1 := parseTimestampMS(strings.TrimSpace(parts[0]))
	end, ok2 := parseTimestampMS(strings.TrimSpace(strings.Fields(parts[1])[0]))
	if !ok1 || !ok2 {
		return [2]int64{}, false
	}
	return [2]int64{start, end}, true
}

func parseTimestampMS(ts string) (int64, bool) {
	ts = strings.ReplaceAll(ts, ",", ".")
	fields := strings.Split(ts, ":")
	if len(fields) != 3 {
		return 0, false
	}
	hours, err1 := strconv.Atoi(fields[0])
	minutes, err2 := strconv.Atoi(fields[1])
	seconds, err3 := strconv.ParseFloat(fields[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	totalMS := int64(hours)*3600000 + int64(minutes)*60000 + int64(seconds*1000)
	return totalMS, true
}

func stripCueTags(line string) string {
	var b strings.Builder
	inTag := false
	for _, r := range line {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
