package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums
type SegmentType string

const (
	SegmentTypeOpener  SegmentType = "opener"
	SegmentTypeFeature SegmentType = "feature"
	SegmentTypeCTA     SegmentType = "cta"
)

// Normalize maps unknown or empty segment types to feature.
func (t SegmentType) Normalize() SegmentType {
	switch SegmentType(strings.ToLower(strings.TrimSpace(string(t)))) {
	case SegmentTypeOpener:
		return SegmentTypeOpener
	case SegmentTypeCTA:
		return SegmentTypeCTA
	default:
		return SegmentTypeFeature
	}
}

type TextStyle string

const (
	TextStylePlain TextStyle = "plain"
	TextStyleBold  TextStyle = "bold"
)

type HighlightKind string

const (
	HighlightDot     HighlightKind = "dot"
	HighlightCircle  HighlightKind = "circle"
	HighlightCorners HighlightKind = "corners"
)

// CanvasPolicy selects how a still image is fitted to the Ken Burns canvas.
type CanvasPolicy string

const (
	CanvasPad  CanvasPolicy = "pad"  // full image visible, solid borders
	CanvasCrop CanvasPolicy = "crop" // fill the frame, center-cropped
)

// ParseCanvasPolicy returns the policy for s, or false when s names neither.
func ParseCanvasPolicy(s string) (CanvasPolicy, bool) {
	switch CanvasPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case CanvasPad:
		return CanvasPad, true
	case CanvasCrop:
		return CanvasCrop, true
	}
	return "", false
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Stage is one step of the render state machine. Stages run strictly in the
// order listed; failed is the only terminal state reachable from any stage.
type Stage string

const (
	StageInit              Stage = "init"
	StageDownloadImages    Stage = "download_images"
	StageDownloadAudio     Stage = "download_audio"
	StageSynthesizeClips   Stage = "synthesize_clips"
	StageConcatenate       Stage = "concatenate"
	StageReconcileDuration Stage = "reconcile_duration"
	StageMuxAudio          Stage = "mux_audio"
	StageValidate          Stage = "validate"
	StageReadArtifact      Stage = "read_artifact"
	StageCleanup           Stage = "cleanup"
	StageComplete          Stage = "complete"
	StageFailed            Stage = "failed"
)

// Terminal reports whether no further stages follow.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// DefaultSegmentDuration replaces missing or non-positive segment durations.
const DefaultSegmentDuration = 3.0

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ToJSONB round-trips any JSON-serializable value into a JSONB map.
func ToJSONB(v interface{}) (JSONB, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var j JSONB
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return j, nil
}

// FromJSONB decodes a JSONB map into v.
func FromJSONB(j JSONB, v interface{}) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Models

type TextTiming struct {
	Start    float64 `json:"start" yaml:"start"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// Highlight is an animated indicator drawn over a segment. X and Y are the
// center as fractions of the frame; Size 0 uses the style default and
// Duration 0 runs to the end of the clip.
type Highlight struct {
	Kind     HighlightKind `json:"kind" yaml:"kind"`
	X        float64       `json:"x" yaml:"x"`
	Y        float64       `json:"y" yaml:"y"`
	Size     int           `json:"size,omitempty" yaml:"size,omitempty"`
	Start    float64       `json:"start,omitempty" yaml:"start,omitempty"`
	Duration float64       `json:"duration,omitempty" yaml:"duration,omitempty"`
	Pulses   int           `json:"pulses,omitempty" yaml:"pulses,omitempty"`
}

type Segment struct {
	ImageURL    string      `json:"image_url" yaml:"image_url"`
	Duration    float64     `json:"duration" yaml:"duration"`
	Type        SegmentType `json:"type" yaml:"type"`
	TextOverlay *string     `json:"text_overlay,omitempty" yaml:"text_overlay,omitempty"`
	TextTiming  *TextTiming `json:"text_timing,omitempty" yaml:"text_timing,omitempty"`
	TextStyle   TextStyle   `json:"text_style,omitempty" yaml:"text_style,omitempty"`
	Highlight   *Highlight  `json:"highlight,omitempty" yaml:"highlight,omitempty"`
}

// EffectiveDuration returns the segment duration, defaulting non-positive values.
func (s Segment) EffectiveDuration() float64 {
	if s.Duration > 0 {
		return s.Duration
	}
	return DefaultSegmentDuration
}

// Text returns the trimmed overlay text, or "" when there is none.
func (s Segment) Text() string {
	if s.TextOverlay == nil {
		return ""
	}
	return strings.TrimSpace(*s.TextOverlay)
}

// RenderOptions are the caller-supplied knobs. Zero or invalid values fall
// back to defaults in Resolve.
type RenderOptions struct {
	TransitionType     string  `json:"transition_type,omitempty" yaml:"transition_type,omitempty"`
	TransitionDuration float64 `json:"transition_duration,omitempty" yaml:"transition_duration,omitempty"`
	Width              int     `json:"width,omitempty" yaml:"width,omitempty"`
	Height             int     `json:"height,omitempty" yaml:"height,omitempty"`
	FPS                int     `json:"fps,omitempty" yaml:"fps,omitempty"`
	CanvasPolicy       string  `json:"canvas_policy,omitempty" yaml:"canvas_policy,omitempty"`
}

type RenderRequest struct {
	Segments []Segment      `json:"segments" yaml:"segments"`
	AudioURL string         `json:"audio_url" yaml:"audio_url"`
	Options  *RenderOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// Validate checks the request shape before any pipeline work is done.
func (r *RenderRequest) Validate() error {
	if r == nil || len(r.Segments) == 0 {
		return NewRenderError(ErrInputValidation, StageInit, fmt.Errorf("at least one segment is required"))
	}
	if strings.TrimSpace(r.AudioURL) == "" {
		return NewRenderError(ErrInputValidation, StageInit, fmt.Errorf("audio_url is required"))
	}
	for i, seg := range r.Segments {
		if strings.TrimSpace(seg.ImageURL) == "" {
			return NewRenderError(ErrInputValidation, StageInit, fmt.Errorf("segment %d has no image_url", i))
		}
	}
	return nil
}

// TotalDuration is the design video duration: the sum of effective segment durations.
func (r *RenderRequest) TotalDuration() float64 {
	total := 0.0
	for _, seg := range r.Segments {
		total += seg.EffectiveDuration()
	}
	return total
}

type RenderResult struct {
	Video           []byte  `json:"-"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type ProgressEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	Stage    Stage     `json:"stage"`
	Progress int       `json:"progress"`
}

type Job struct {
	ID              uuid.UUID  `json:"id"`
	Status          JobStatus  `json:"status"`
	Stage           Stage      `json:"stage"`
	Progress        int        `json:"progress"`
	Request         JSONB      `json:"request,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	ArtifactPath    *string    `json:"artifact_path,omitempty"`
	ErrorKind       *string    `json:"error_kind,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DTOs for API responses
type CreateRenderResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

type JobResponse struct {
	Job
	DownloadURL *string `json:"download_url,omitempty"`
}

type ListRendersResponse struct {
	Renders []JobResponse `json:"renders"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

type ErrorResponse struct {
	Error string    `json:"error"`
	Kind  ErrorKind `json:"kind,omitempty"`
	Stage Stage     `json:"stage,omitempty"`
}
