// Package segment turns per-frame divergence decisions into non-overlapping
// divergence intervals.
//
// A Segmenter is a three-state machine (Idle, PendingStart, InDivergence).
// Onsets need a run of divergent frames before they confirm, and intervals
// close only after a run of clear frames, so single-frame detector blips
// neither open nor split intervals. Segmenters are not safe for concurrent
// use; the pipeline drives one per run from a single goroutine.
package segment
