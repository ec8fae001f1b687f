// Package similarity implements the pixel-level pre-filter used in dual-stream
// comparisons.
//
// Frames are reduced to Rec. 601 luma, scaled to a common analysis size with
// golang.org/x/image/draw and compared with SSIM over 8x8 windows. Frames whose
// score falls below the configured threshold become candidates for label
// classification; everything else is treated as visually identical.
package similarity
