package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"vdiff/internal/media/frames"
	"vdiff/internal/services"
)

const recorded = `{
  "streams": {
    "candidate": [
      {"frame": 2, "detections": [{"class_name": "Wifi", "confidence": 0.8, "bbox": {"x": 1, "y": 1, "w": 2, "h": 2}}]},
      {"frame": 2, "detections": [{"class_name": "Hots", "confidence": 0.7, "bbox": {"x": 0, "y": 0, "w": 1, "h": 1}}]}
    ],
    "reference": [
      {"frame": 2, "detections": [{"class_name": "Wifi", "confidence": 0.9, "bbox": {"x": 1, "y": 1, "w": 2, "h": 2}}]}
    ]
  }
}`

func TestFileClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	if err := os.WriteFile(path, []byte(recorded), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	ctx := context.Background()
	dets, err := fc.Detect(ctx, "candidate", frames.Frame{Index: 2})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 2 || dets[1].Label != "Hots" {
		t.Fatalf("expected merged entries, got %+v", dets)
	}
	dets, err = fc.Detect(ctx, "candidate", frames.Frame{Index: 3})
	if err != nil || len(dets) != 0 {
		t.Fatalf("expected no detections for unrecorded frame, got %v %v", dets, err)
	}
	if dets, _ := fc.Detect(ctx, "reference", frames.Frame{Index: 2}); len(dets) != 1 {
		t.Fatalf("expected reference detection, got %v", dets)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := ParseRecorded("inline", []byte(`{"streams":{"candidate":[{"frame":0}]}}`)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for frame 0, got %v", err)
	}
	if _, err := ParseRecorded("inline", []byte(`{`)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad JSON, got %v", err)
	}
}
