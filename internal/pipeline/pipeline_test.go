package pipeline_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"sync"
	"testing"

	"vdiff/internal/divergence"
	"vdiff/internal/labels"
	"vdiff/internal/media/frames"
	"vdiff/internal/metrics"
	"vdiff/internal/pipeline"
	"vdiff/internal/segment"
	"vdiff/internal/services"
	"vdiff/internal/similarity"
)

const testFPS = 10.0

type sliceSource struct {
	frames []frames.Frame
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (frames.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frames.Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return frames.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func source(images ...image.Image) *sliceSource {
	src := &sliceSource{}
	for i, img := range images {
		idx := i + 1
		src.frames = append(src.frames, frames.Frame{Index: idx, Time: float64(idx) / testFPS, Image: img})
	}
	return src
}

func repeat(img image.Image, n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = img
	}
	return out
}

type scriptedDetector struct {
	mu      sync.Mutex
	byFrame map[string]map[int][]labels.Detection
	calls   map[string][]int
	hook    func(stream string, index int)
}

func newScriptedDetector() *scriptedDetector {
	return &scriptedDetector{byFrame: map[string]map[int][]labels.Detection{}, calls: map[string][]int{}}
}

func (d *scriptedDetector) set(stream string, index int, ids ...string) {
	if d.byFrame[stream] == nil {
		d.byFrame[stream] = map[int][]labels.Detection{}
	}
	for _, id := range ids {
		d.byFrame[stream][index] = append(d.byFrame[stream][index], labels.Detection{Label: id, Confidence: 0.9, Box: image.Rect(1, 1, 4, 4)})
	}
}

func (d *scriptedDetector) Detect(ctx context.Context, stream string, frame frames.Frame) ([]labels.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.calls[stream] = append(d.calls[stream], frame.Index)
	hook := d.hook
	dets := d.byFrame[stream][frame.Index]
	d.mu.Unlock()
	if hook != nil {
		hook(stream, frame.Index)
	}
	return dets, nil
}

func newVocab(t *testing.T) *labels.Vocabulary {
	t.Helper()
	vocab, err := labels.NewVocabulary([]string{"BT", "Wifi", "Cel", "Hots", "Bri", "Dev"}, []string{"Cel", "Hots"})
	if err != nil {
		t.Fatalf("NewVocabulary: %v", err)
	}
	return vocab
}

func newRunner(t *testing.T, cfg pipeline.Config, det pipeline.Detector, opts ...pipeline.Option) *pipeline.Runner {
	t.Helper()
	vocab := newVocab(t)
	extractor, err := labels.NewExtractor(vocab, 0.5)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	classifier, err := divergence.New(cfg.Mode, vocab)
	if err != nil {
		t.Fatalf("divergence.New: %v", err)
	}
	gate, err := similarity.NewFilter(0.8, 0)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	runner, err := pipeline.New(cfg, pipeline.Components{
		Extractor:  extractor,
		Classifier: classifier,
		Gate:       gate,
		Detector:   det,
	}, opts...)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return runner
}

func singleConfig(start, debounce int) pipeline.Config {
	return pipeline.Config{
		Mode:     divergence.ModeSingle,
		Stride:   1,
		Policy:   labels.PolicyAbort,
		Prefetch: 2,
		Segment:  segment.Config{StartConfirmationFrames: start, EndDebounceFrames: debounce},
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSingleStreamConcreteScenario(t *testing.T) {
	det := newScriptedDetector()
	for _, idx := range []int{2, 3, 6} {
		det.set(pipeline.StreamCandidate, idx, "Wifi", "Hots")
	}
	runner := newRunner(t, singleConfig(1, 2), det)

	result, err := runner.Run(context.Background(), source(repeat(solid(color.Black), 7)...), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []struct {
		start, end float64
		snapshot   int
	}{{0.3, 0.5, 3}, {0.6, 0.7, 6}}
	if len(result.Findings) != len(want) {
		t.Fatalf("got %d findings, want %d: %+v", len(result.Findings), len(want), result.Findings)
	}
	for i, w := range want {
		f := result.Findings[i]
		if !approx(f.Interval.Start, w.start) || !approx(f.Interval.End, w.end) {
			t.Fatalf("finding %d = {%v, %v}, want {%v, %v}", i, f.Interval.Start, f.Interval.End, w.start, w.end)
		}
		if f.SnapshotFrame != w.snapshot || f.Snapshot == nil {
			t.Fatalf("finding %d snapshot from frame %d, want %d", i, f.SnapshotFrame, w.snapshot)
		}
		if !f.Interval.Cause.Equal(labels.NewSet("Hots")) {
			t.Fatalf("finding %d cause = %v", i, f.Interval.Cause)
		}
	}
	if result.FramesDecoded != 7 || result.FramesEvaluated != 7 || result.Partial {
		t.Fatalf("unexpected counters %+v", result)
	}
	if result.RunID == "" {
		t.Fatalf("expected a generated run id")
	}
}

func TestDualStreamGateSkipsClassifier(t *testing.T) {
	black := solid(color.Black)
	white := solid(color.White)
	ref := source(repeat(black, 6)...)
	cand := source(black, white, white, white, black, black)

	det := newScriptedDetector()
	for idx := 2; idx <= 4; idx++ {
		det.set(pipeline.StreamReference, idx, "Wifi")
		det.set(pipeline.StreamCandidate, idx, "Wifi", "BT")
	}
	m := metrics.New()
	cfg := singleConfig(0, 1)
	cfg.Mode = divergence.ModeDual
	runner := newRunner(t, cfg, det, pipeline.WithMetrics(m))

	result, err := runner.Run(context.Background(), cand, ref)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, stream := range []string{pipeline.StreamReference, pipeline.StreamCandidate} {
		if got := det.calls[stream]; len(got) != 3 || got[0] != 2 || got[2] != 4 {
			t.Fatalf("%s classified frames %v, want [2 3 4]", stream, got)
		}
	}
	if len(result.Findings) != 1 {
		t.Fatalf("expected one finding, got %+v", result.Findings)
	}
	f := result.Findings[0]
	if !approx(f.Interval.Start, 0.2) || !approx(f.Interval.End, 0.5) || !f.Interval.Cause.Equal(labels.NewSet("BT")) {
		t.Fatalf("unexpected finding %+v", f.Interval)
	}
	snap := m.Snapshot()
	if snap.GateCandidates != 3 || snap.ClassifierCalls != 6 || snap.Intervals != 1 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestStrideSkipsFramesButReportsThem(t *testing.T) {
	det := newScriptedDetector()
	det.set(pipeline.StreamCandidate, 2, "Cel")
	cfg := singleConfig(0, 1)
	cfg.Stride = 2

	var events []pipeline.FrameEvent
	runner := newRunner(t, cfg, det, pipeline.WithFrameHook(func(ev pipeline.FrameEvent) {
		events = append(events, ev)
	}))
	result, err := runner.Run(context.Background(), source(repeat(solid(color.Black), 6)...), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := det.calls[pipeline.StreamCandidate]; len(got) != 3 || got[0] != 2 || got[1] != 4 || got[2] != 6 {
		t.Fatalf("classified frames %v, want [2 4 6]", got)
	}
	if len(events) != 6 {
		t.Fatalf("expected an event per decoded frame, got %d", len(events))
	}
	if events[0].Evaluated || !events[1].Evaluated {
		t.Fatalf("unexpected evaluation flags")
	}
	// Frame 3 is off the stride and reuses frame 2's annotations.
	if len(events[2].Annotations) != 1 || !events[2].Annotations[0].Alert {
		t.Fatalf("expected frame 3 to carry frame 2 annotations, got %+v", events[2].Annotations)
	}
	if result.FramesEvaluated != 3 || len(result.Findings) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !approx(result.Findings[0].Interval.End, 0.4) {
		t.Fatalf("interval should close on the next evaluated frame, got %+v", result.Findings[0].Interval)
	}
}

func TestUnknownLabelPolicy(t *testing.T) {
	det := newScriptedDetector()
	det.set(pipeline.StreamCandidate, 2, "Airplane", "Hots")

	runner := newRunner(t, singleConfig(0, 1), det)
	_, err := runner.Run(context.Background(), source(repeat(solid(color.Black), 3)...), nil)
	var unknown *labels.UnknownLabelError
	if !errors.As(err, &unknown) || unknown.Label != "Airplane" {
		t.Fatalf("expected UnknownLabelError under abort policy, got %v", err)
	}

	cfg := singleConfig(0, 1)
	cfg.Policy = labels.PolicySkip
	m := metrics.New()
	runner = newRunner(t, cfg, det, pipeline.WithMetrics(m))
	result, err := runner.Run(context.Background(), source(repeat(solid(color.Black), 3)...), nil)
	if err != nil {
		t.Fatalf("skip policy should continue, got %v", err)
	}
	if len(result.Findings) != 1 || m.Snapshot().RejectedDets != 1 {
		t.Fatalf("expected one finding and one rejection, got %+v / %+v", result.Findings, m.Snapshot())
	}
}

func TestMisalignedStreamsAbort(t *testing.T) {
	black := solid(color.Black)
	cfg := singleConfig(0, 1)
	cfg.Mode = divergence.ModeDual
	runner := newRunner(t, cfg, newScriptedDetector())

	_, err := runner.Run(context.Background(), source(repeat(black, 4)...), source(repeat(black, 2)...))
	var decodeErr *frames.DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Path != pipeline.StreamReference {
		t.Fatalf("expected DecodeError for the short reference, got %v", err)
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode marker, got %v", err)
	}
}

func TestDecodeFailureInGateAborts(t *testing.T) {
	cfg := singleConfig(0, 1)
	cfg.Mode = divergence.ModeDual
	runner := newRunner(t, cfg, newScriptedDetector())

	_, err := runner.Run(context.Background(), source(nil), source(solid(color.Black)))
	var decodeErr *similarity.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected similarity DecodeError, got %v", err)
	}
}

func TestCancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	det := newScriptedDetector()
	for idx := 1; idx <= 10; idx++ {
		det.set(pipeline.StreamCandidate, idx, "Hots")
	}
	det.hook = func(_ string, index int) {
		if index == 4 {
			cancel()
		}
	}
	runner := newRunner(t, singleConfig(0, 2), det)

	result, err := runner.Run(ctx, source(repeat(solid(color.Black), 10)...), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || !result.Partial {
		t.Fatalf("expected a partial result, got %+v", result)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("expected the open interval to be finalized, got %+v", result.Findings)
	}
	if f := result.Findings[0].Interval; !approx(f.Start, 0.1) || !approx(f.End, 0.4) {
		t.Fatalf("unexpected partial interval %+v", f)
	}
}

func TestNewRejectsMismatchedComponents(t *testing.T) {
	vocab := newVocab(t)
	extractor, _ := labels.NewExtractor(vocab, 0.5)
	classifier, _ := divergence.New(divergence.ModeSingle, vocab)
	cfg := singleConfig(0, 1)
	cfg.Mode = divergence.ModeDual

	_, err := pipeline.New(cfg, pipeline.Components{Extractor: extractor, Classifier: classifier, Detector: newScriptedDetector()})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	cfg = singleConfig(0, 1)
	cfg.Stride = 0
	_, err = pipeline.New(cfg, pipeline.Components{Extractor: extractor, Classifier: classifier, Detector: newScriptedDetector()})
	var cfgErr *services.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "engine.sampling_stride" {
		t.Fatalf("expected stride ConfigError, got %v", err)
	}
}

func TestAnnotate(t *testing.T) {
	vocab := newVocab(t)
	dets := []labels.Detection{
		{Label: "Wifi", Confidence: 0.9},
		{Label: "Hots", Confidence: 0.8},
		{Label: "BT", Confidence: 0.7},
	}

	single := pipeline.Annotate(dets, nil, vocab)
	if single[0].Alert || !single[1].Alert || single[2].Alert {
		t.Fatalf("single mode should only flag error-class labels: %+v", single)
	}
	if single[1].Color != pipeline.ColorAlert || single[0].Color != pipeline.ColorNormal {
		t.Fatalf("unexpected colours %+v", single)
	}

	dual := pipeline.Annotate(dets, labels.NewSet("Wifi"), vocab)
	if dual[0].Alert || !dual[1].Alert || !dual[2].Alert {
		t.Fatalf("dual mode should flag novel labels: %+v", dual)
	}
	if dets[0].Label != "Wifi" || len(dets) != 3 {
		t.Fatalf("input detections were modified")
	}
	if pipeline.Annotate(nil, nil, vocab) != nil {
		t.Fatalf("expected nil annotations for no detections")
	}
}
