package logging

// ProgressSampler thins per-frame progress into one log line per step of
// completion. Streams with an unknown frame count never report.
type ProgressSampler struct {
	total int
	step  float64
	next  float64
}

// NewProgressSampler returns a sampler for totalFrames frames that reports
// every stepPercent (default 10).
func NewProgressSampler(totalFrames int, stepPercent float64) *ProgressSampler {
	if stepPercent <= 0 {
		stepPercent = 10
	}
	return &ProgressSampler{total: totalFrames, step: stepPercent, next: stepPercent}
}

// Observe returns the completion percentage at frame index (1-based) and
// whether it reached the next reporting step.
func (s *ProgressSampler) Observe(index int) (float64, bool) {
	if s == nil || s.total <= 0 || index <= 0 {
		return 0, false
	}
	percent := min(float64(index)/float64(s.total)*100, 100)
	if percent < s.next {
		return percent, false
	}
	for s.next <= percent {
		s.next += s.step
	}
	return percent, true
}
