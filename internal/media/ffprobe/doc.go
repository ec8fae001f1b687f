// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties, including the frame rate and
//     dimensions the frame source needs
//
// Inspect runs ffprobe; VideoStream and Stream.FrameRate pick out the values
// used to derive frame timestamps, the sampling stride and the confirmation
// window.
package ffprobe
