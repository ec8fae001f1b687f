// Package report renders comparison results: a plain-text summary with one
// line per divergence interval, a JSON report, JPEG snapshots and an optional
// per-frame annotation sidecar.
package report
