package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestDecodeJob(t *testing.T) {
	id := uuid.New()
	raw, err := json.Marshal(Job{ID: id, Type: "render", Attempt: 2})
	if err != nil {
		t.Fatal(err)
	}

	job, err := DecodeJob(raw)
	if err != nil {
		t.Fatalf("DecodeJob error: %v", err)
	}
	if job.ID != id || job.Type != "render" || job.Attempt != 2 {
		t.Fatalf("unexpected job: %+v", job)
	}

	if _, err := DecodeJob([]byte(`{"type":"render"}`)); err == nil {
		t.Errorf("expected error for envelope without id")
	}
	if _, err := DecodeJob([]byte(`not json`)); err == nil {
		t.Errorf("expected error for malformed envelope")
	}
}

func TestProgressChannel(t *testing.T) {
	id := uuid.MustParse("6f1c2a9e-8d1b-4a55-9a53-2c4d6e8f0a1b")
	if got := ProgressChannel(id); got != "render:progress:6f1c2a9e-8d1b-4a55-9a53-2c4d6e8f0a1b" {
		t.Fatalf("ProgressChannel = %q", got)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("http://localhost:6379"); err == nil {
		t.Fatalf("expected error for non-redis scheme")
	}
}
