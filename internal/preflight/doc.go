// Package preflight provides readiness checks for the filesystem paths and
// external services a comparison run depends on.
//
// These checks run in two contexts:
//   - The compare and scan commands call RunAll before opening any stream.
//     If a check fails the run stops before decoding a single frame.
//   - The CLI "vdiff deps" command shows the same results next to the
//     binary checks.
//
// Checks that do not apply to the configured detector mode are skipped.
package preflight
