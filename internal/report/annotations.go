package report

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"vdiff/internal/pipeline"
	"vdiff/internal/services"
)

// annotationRecord is one line of the sidecar.
type annotationRecord struct {
	Frame       int                   `json:"frame"`
	Time        float64               `json:"time"`
	Evaluated   bool                  `json:"evaluated"`
	Gated       bool                  `json:"gated,omitempty"`
	Similarity  float64               `json:"similarity,omitempty"`
	Divergent   bool                  `json:"divergent"`
	Cause       []string              `json:"cause,omitempty"`
	Annotations []pipeline.Annotation `json:"annotations"`
}

// AnnotationWriter streams frame events as JSON lines. The first write error
// is kept and returned by Close; later events are dropped.
type AnnotationWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	err  error
}

// NewAnnotationWriter creates (truncating) path.
func NewAnnotationWriter(path string) (*AnnotationWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "report", "create annotations", path, err)
	}
	buf := bufio.NewWriter(file)
	return &AnnotationWriter{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Record writes one event. It matches the pipeline frame hook signature.
func (w *AnnotationWriter) Record(event pipeline.FrameEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	rec := annotationRecord{
		Frame:       event.Frame.Index,
		Time:        event.Frame.Time,
		Evaluated:   event.Evaluated,
		Gated:       event.Gated,
		Divergent:   event.Decision.Divergent,
		Annotations: event.Annotations,
	}
	if event.Evaluated {
		rec.Similarity = event.Similarity
		rec.Cause = event.Decision.Cause.Sorted()
	}
	if rec.Annotations == nil {
		rec.Annotations = []pipeline.Annotation{}
	}
	w.err = w.enc.Encode(rec)
}

// Close flushes and closes the file.
func (w *AnnotationWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	switch {
	case w.err != nil:
		return w.err
	case flushErr != nil:
		return flushErr
	default:
		return closeErr
	}
}
