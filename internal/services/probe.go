package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// StreamInfo is one stream of a probed file.
type StreamInfo struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

// ProbeResult is what ffprobe reports about a media file. DurationSeconds is
// NaN when ffprobe could not determine it.
type ProbeResult struct {
	DurationSeconds float64
	FormatName      string
	Streams         []StreamInfo
}

// HasStream reports whether the file has at least one stream of codecType
// ("audio", "video").
func (p *ProbeResult) HasStream(codecType string) bool {
	return p.CountStreams(codecType) > 0
}

// CountStreams counts streams of codecType.
func (p *ProbeResult) CountStreams(codecType string) int {
	n := 0
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			n++
		}
	}
	return n
}

// ValidDuration reports whether d is usable as a media duration.
func ValidDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0
}

type ffprobeOutput struct {
	Format  ffprobeFormat `json:"format"`
	Streams []StreamInfo  `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// Probe runs ffprobe on path and parses its JSON report.
func (s *FFmpegService) Probe(ctx context.Context, path string, timeout time.Duration) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-print_format", "json",
		path,
	}

	var stdout bytes.Buffer
	tail := newLineTail(s.tailLines)
	if err := s.exec(ctx, "probe", s.ffprobePath, timeout, args, &stdout, tail); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbeOutput(stdout.Bytes())
}

// ParseProbeOutput decodes ffprobe's -print_format json output. A missing or
// "N/A" duration is reported as NaN rather than an error so callers decide
// whether it is fatal.
func ParseProbeOutput(raw []byte) (*ProbeResult, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("ffprobe produced no output")
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}

	duration := math.NaN()
	if d := strings.TrimSpace(parsed.Format.Duration); d != "" && d != "N/A" {
		v, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration %q: %w", d, err)
		}
		duration = v
	}

	return &ProbeResult{
		DurationSeconds: duration,
		FormatName:      parsed.Format.FormatName,
		Streams:         parsed.Streams,
	}, nil
}
