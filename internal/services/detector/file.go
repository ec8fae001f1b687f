package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"vdiff/internal/labels"
	"vdiff/internal/media/frames"
	"vdiff/internal/services"
)

// recordedFile is the on-disk layout of precomputed detections:
//
//	{"streams": {"candidate": [{"frame": 3, "detections": [...]}]}}
//
// Frames without an entry have no detections.
type recordedFile struct {
	Streams map[string][]recordedFrame `json:"streams"`
}

type recordedFrame struct {
	Frame      int             `json:"frame"`
	Detections []wireDetection `json:"detections"`
}

// FileClassifier serves detections recorded ahead of time.
type FileClassifier struct {
	path   string
	frames map[string]map[int][]labels.Detection
}

// LoadFile reads a recorded detections file.
func LoadFile(path string) (*FileClassifier, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "detector", "load detections", "detections_file required", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "detector", "load detections", path, err)
		}
		return nil, services.Wrap(services.ErrExternalTool, "detector", "load detections", path, err)
	}
	return ParseRecorded(path, data)
}

// ParseRecorded decodes recorded detections from data; name is used in errors.
func ParseRecorded(name string, data []byte) (*FileClassifier, error) {
	var file recordedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, services.Wrap(services.ErrValidation, "detector", "parse detections", name, err)
	}
	fc := &FileClassifier{path: name, frames: make(map[string]map[int][]labels.Detection, len(file.Streams))}
	for stream, entries := range file.Streams {
		byFrame := make(map[int][]labels.Detection, len(entries))
		for _, entry := range entries {
			if entry.Frame < 1 {
				return nil, services.Wrap(services.ErrValidation, "detector", "parse detections",
					fmt.Sprintf("%s: stream %q has frame %d (frames start at 1)", name, stream, entry.Frame), nil)
			}
			byFrame[entry.Frame] = append(byFrame[entry.Frame], toDetections(entry.Detections)...)
		}
		fc.frames[stream] = byFrame
	}
	return fc, nil
}

// Detect returns the recorded detections for the frame.
func (f *FileClassifier) Detect(ctx context.Context, stream string, frame frames.Frame) ([]labels.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recorded := f.frames[stream][frame.Index]
	out := make([]labels.Detection, len(recorded))
	copy(out, recorded)
	return out, nil
}

// Streams lists the stream names present in the file.
func (f *FileClassifier) Streams() []string {
	names := make([]string, 0, len(f.frames))
	for name := range f.frames {
		names = append(names, name)
	}
	return names
}
