// Package frames decodes video files into numbered RGB frames.
//
// A Reader runs ffmpeg with a rawvideo rgb24 pipe and slices its stdout into
// fixed-size frames. Frame indices start at 1 and timestamps are derived from
// the probed frame rate, so every stream opened at the same rate yields
// aligned indices.
package frames
