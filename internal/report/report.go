package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vdiff/internal/labels"
	"vdiff/internal/metrics"
	"vdiff/internal/pipeline"
)

// Entry is one interval as presented to users.
type Entry struct {
	Seq       int      `json:"seq"`
	Start     float64  `json:"start"`
	End       float64  `json:"end"`
	Cause     []string `json:"cause"`
	CauseText string   `json:"cause_text"`
	Snapshot  string   `json:"snapshot,omitempty"`
}

// Report is the serialisable summary of a run.
type Report struct {
	RunID      string           `json:"run_id"`
	Mode       string           `json:"mode"`
	Reference  string           `json:"reference,omitempty"`
	Candidate  string           `json:"candidate"`
	FPS        float64          `json:"fps"`
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Counters   metrics.Snapshot `json:"counters"`
	Intervals  []Entry          `json:"intervals"`
}

// Meta carries run details that the pipeline result does not hold.
type Meta struct {
	Reference  string
	Candidate  string
	FPS        float64
	Status     string
	Error      error
	StartedAt  time.Time
	FinishedAt time.Time
	Counters   metrics.Snapshot
}

// SnapshotName returns the file name of the seq-th snapshot (1-based).
func SnapshotName(seq int) string {
	return fmt.Sprintf("image_%d.jpg", seq)
}

// Build assembles a report. Cause labels are rendered through loc in
// vocabulary order.
func Build(result *pipeline.Result, vocab *labels.Vocabulary, loc labels.Localizer, meta Meta) Report {
	rep := Report{
		Reference:  meta.Reference,
		Candidate:  meta.Candidate,
		FPS:        meta.FPS,
		Status:     meta.Status,
		StartedAt:  meta.StartedAt,
		FinishedAt: meta.FinishedAt,
		Counters:   meta.Counters,
		Intervals:  []Entry{},
	}
	if meta.Error != nil {
		rep.Error = meta.Error.Error()
	}
	if result == nil {
		return rep
	}
	rep.RunID = result.RunID
	rep.Mode = string(result.Mode)
	for i, finding := range result.Findings {
		seq := i + 1
		entry := Entry{
			Seq:       seq,
			Start:     finding.Interval.Start,
			End:       finding.Interval.End,
			Cause:     orderedCause(vocab, finding.Interval.Cause),
			CauseText: loc.Join(vocab, finding.Interval.Cause),
		}
		if finding.Snapshot != nil {
			entry.Snapshot = SnapshotName(seq)
		}
		rep.Intervals = append(rep.Intervals, entry)
	}
	return rep
}

// Text renders the plain-text report.
func Text(rep Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "vdiff %s run %s (%s)\n", rep.Mode, rep.RunID, rep.Status)
	if rep.Reference != "" {
		fmt.Fprintf(&b, "Reference: %s\n", rep.Reference)
	}
	fmt.Fprintf(&b, "Candidate: %s\n", rep.Candidate)
	if rep.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rep.Error)
	}
	if len(rep.Intervals) == 0 {
		b.WriteString("No divergence detected.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Divergent intervals: %d\n", len(rep.Intervals))
	for _, entry := range rep.Intervals {
		b.WriteString(Line(entry))
		b.WriteByte('\n')
	}
	return b.String()
}

// Line renders one interval as "- 1.2s ~ 3.4s : causes . image_1.jpg".
func Line(entry Entry) string {
	start, end := Span(entry.Start, entry.End)
	line := fmt.Sprintf("- %s ~ %s", start, end)
	if entry.CauseText != "" {
		line += " : " + entry.CauseText
	}
	if entry.Snapshot != "" {
		line += " . " + entry.Snapshot
	}
	return line
}

func orderedCause(vocab *labels.Vocabulary, cause labels.Set) []string {
	out := make([]string, 0, cause.Len())
	seen := make(labels.Set, cause.Len())
	for _, id := range vocab.IDs() {
		if cause.Has(id) {
			out = append(out, id)
			seen.Add(id)
		}
	}
	for _, id := range cause.Sorted() {
		if !seen.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// Span formats an interval's bounds to a tenth of a second, adding digits
// until the two differ.
func Span(start, end float64) (string, string) {
	for prec := 1; ; prec++ {
		a := strconv.FormatFloat(start, 'f', prec, 64) + "s"
		b := strconv.FormatFloat(end, 'f', prec, 64) + "s"
		if a != b || prec >= 3 {
			return a, b
		}
	}
}
