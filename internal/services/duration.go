package services

import (
	"fmt"
	"math"

	"github.com/bobarin/reelrender/internal/filtergraph"
)

const (
	// DurationTolerance is the video/audio mismatch left uncorrected.
	DurationTolerance = 0.1
	// ValidationTolerance is how far the final artifact may drift from the audio.
	ValidationTolerance = 0.5

	DefaultAudioBitrate = "192k"
)

// FixKind is the correction applied to the joined video before muxing.
type FixKind string

const (
	FixNone   FixKind = "none"
	FixExtend FixKind = "extend"
	FixTrim   FixKind = "trim"
)

// DurationFix is a planned correction. Extend holds the seconds of cloned
// last frame to add; Target is the audio duration the video must match.
type DurationFix struct {
	Kind   FixKind
	Extend float64
	Target float64
}

// PlanDurationFix compares the audio duration with the video duration.
// Audio is authoritative: a short video is extended by cloning its last frame
// and a long one is trimmed to the audio.
func PlanDurationFix(audioDuration, videoDuration float64) DurationFix {
	diff := audioDuration - videoDuration
	switch {
	case math.Abs(diff) <= DurationTolerance:
		return DurationFix{Kind: FixNone, Target: audioDuration}
	case diff > 0:
		return DurationFix{Kind: FixExtend, Extend: diff, Target: audioDuration}
	default:
		return DurationFix{Kind: FixTrim, Target: audioDuration}
	}
}

// ExtendArgs re-encodes input with its last frame held for seconds more.
func ExtendArgs(inputPath, outputPath string, seconds float64, enc EncodeSettings) []string {
	vf := filtergraph.From("").Then("tpad",
		filtergraph.Str("stop_mode", "clone"),
		filtergraph.Float("stop_duration", seconds),
	)
	args := []string{"-i", inputPath, "-vf", vf.String()}
	args = append(args, enc.args()...)
	return append(args, "-an", "-movflags", "+faststart", outputPath)
}

// TrimArgs cuts input to target seconds by stream copy.
func TrimArgs(inputPath, outputPath string, target float64) []string {
	return []string{
		"-i", inputPath,
		"-t", filtergraph.Num(target),
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}
}

// MuxArgs combines the video (copied) with the audio (AAC at bitrate). The
// output duration is forced to audioDuration instead of ending with the
// shorter stream, so audio is never cut short by a slightly short video.
func MuxArgs(videoPath, audioPath, outputPath string, audioDuration float64, bitrate string) []string {
	if bitrate == "" {
		bitrate = DefaultAudioBitrate
	}
	return []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", bitrate,
		"-t", filtergraph.Num(audioDuration),
		"-movflags", "+faststart",
		outputPath,
	}
}

// ValidateArtifact is the last check before a render is returned: the file
// must carry audio and video and last as long as the audio within tolerance.
func ValidateArtifact(p *ProbeResult, targetDuration float64) error {
	if p == nil {
		return fmt.Errorf("no probe result")
	}
	if !p.HasStream("audio") {
		return fmt.Errorf("artifact has no audio stream")
	}
	if !p.HasStream("video") {
		return fmt.Errorf("artifact has no video stream")
	}
	if !ValidDuration(p.DurationSeconds) {
		return fmt.Errorf("artifact duration is invalid (%v)", p.DurationSeconds)
	}
	if diff := math.Abs(p.DurationSeconds - targetDuration); diff > ValidationTolerance {
		return fmt.Errorf("artifact duration %.3fs differs from audio %.3fs by %.3fs", p.DurationSeconds, targetDuration, diff)
	}
	return nil
}
