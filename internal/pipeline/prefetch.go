package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"vdiff/internal/media/frames"
)

type framePair struct {
	ref  *frames.Frame
	cand frames.Frame
	err  error
}

// prefetch decodes frame pairs ahead of the engine. The channel closes after
// the last pair, after an error pair, or when ctx is done.
func prefetch(ctx context.Context, depth int, candidate, reference Source) <-chan framePair {
	out := make(chan framePair, depth)
	go func() {
		defer close(out)
		for {
			pair := readPair(ctx, candidate, reference)
			if errors.Is(pair.err, io.EOF) {
				return
			}
			select {
			case out <- pair:
			case <-ctx.Done():
				return
			}
			if pair.err != nil {
				return
			}
		}
	}()
	return out
}

func readPair(ctx context.Context, candidate, reference Source) framePair {
	cand, candErr := candidate.Next(ctx)
	if reference == nil {
		return framePair{cand: cand, err: candErr}
	}
	ref, refErr := reference.Next(ctx)

	candEOF := errors.Is(candErr, io.EOF)
	refEOF := errors.Is(refErr, io.EOF)
	switch {
	case candErr != nil && !candEOF:
		return framePair{err: candErr}
	case refErr != nil && !refEOF:
		return framePair{err: refErr}
	case candEOF && refEOF:
		return framePair{err: io.EOF}
	case candEOF:
		return framePair{err: &frames.DecodeError{Path: StreamCandidate, Index: ref.Index, Reason: "stream ended before the reference"}}
	case refEOF:
		return framePair{err: &frames.DecodeError{Path: StreamReference, Index: cand.Index, Reason: "stream ended before the candidate"}}
	case ref.Index != cand.Index:
		return framePair{err: &frames.DecodeError{Path: StreamReference, Index: ref.Index, Reason: fmt.Sprintf("misaligned with candidate frame %d", cand.Index)}}
	}
	return framePair{ref: &ref, cand: cand}
}
