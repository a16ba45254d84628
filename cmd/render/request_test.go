package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bobarin/reelrender/internal/models"
)

const yamlRequest = `
audio_url: https://cdn.example.com/voice.mp3
options:
  transition_type: slide-left
  transition_duration: 0.4
segments:
  - image_url: https://cdn.example.com/a.jpg
    duration: 3
    type: opener
    text_overlay: "Fresh catch"
  - image_url: https://cdn.example.com/b.jpg
    duration: 4
    text_style: bold
    text_timing:
      start: 1
      duration: 2
`

func TestParseRequestYAML(t *testing.T) {
	req, err := parseRequest([]byte(yamlRequest), ".yml")
	if err != nil {
		t.Fatalf("parseRequest error: %v", err)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("parsed request invalid: %v", err)
	}
	if len(req.Segments) != 2 || req.Options == nil || req.Options.TransitionDuration != 0.4 {
		t.Fatalf("unexpected request: %+v", req)
	}
	first := req.Segments[0]
	if first.Type != models.SegmentTypeOpener || first.Text() != "Fresh catch" {
		t.Fatalf("unexpected first segment: %+v", first)
	}
	second := req.Segments[1]
	if second.TextStyle != models.TextStyleBold || second.TextTiming == nil || second.TextTiming.Start != 1 {
		t.Fatalf("unexpected second segment: %+v", second)
	}
}

func TestParseRequestJSON(t *testing.T) {
	data := []byte(`{"audio_url":"https://cdn.example.com/v.mp3","segments":[{"image_url":"https://cdn.example.com/a.jpg","duration":2.5}]}`)
	req, err := parseRequest(data, ".JSON")
	if err != nil {
		t.Fatalf("parseRequest error: %v", err)
	}
	if req.TotalDuration() != 2.5 {
		t.Fatalf("total duration = %v", req.TotalDuration())
	}
}

func TestParseRequestErrors(t *testing.T) {
	if _, err := parseRequest([]byte("{}"), ".toml"); err == nil {
		t.Errorf("expected error for unsupported extension")
	}
	if _, err := parseRequest([]byte("{not json"), ".json"); err == nil {
		t.Errorf("expected error for malformed JSON")
	}
}

func TestLoadRequest(t *testing.T) {
	if _, err := loadRequest(""); err == nil {
		t.Fatalf("expected error without a path")
	}

	path := filepath.Join(t.TempDir(), "request.yaml")
	if err := os.WriteFile(path, []byte(yamlRequest), 0644); err != nil {
		t.Fatal(err)
	}
	req, err := loadRequest(path)
	if err != nil {
		t.Fatalf("loadRequest error: %v", err)
	}
	if len(req.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(req.Segments))
	}

	if _, err := loadRequest(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
