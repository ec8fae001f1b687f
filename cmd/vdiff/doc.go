// Command vdiff compares a candidate video against a reference (or scans a
// single video) for divergent UI states and reports the time intervals where
// they occur.
//
// Subcommands:
//   - compare <reference> <candidate>: dual-stream comparison
//   - scan <video>: single-stream error-class scan
//   - runs list|show|prune: inspect the run history
//   - config init|validate|show: configuration utilities
//   - deps: check ffmpeg/ffprobe and run the preflight checks
//   - test-notify: send a test ntfy notification
package main
