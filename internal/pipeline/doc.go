// Package pipeline drives a comparison run: it pulls frames from one or two
// sources, gates dual-stream pairs on pixel similarity, classifies eligible
// frames, and feeds the resulting decisions to a segmenter.
//
// Decoding runs one frame pair ahead of the engine in a single prefetch
// goroutine bounded by Config.Prefetch; classification and segmentation stay
// on the caller's goroutine in strict frame order. Cancelling the context
// stops decoding, closes any open interval at the last observed frame and
// returns the partial result together with the context error.
package pipeline
