package pipeline

import (
	"image"
	"image/color"

	"vdiff/internal/labels"
)

var (
	// ColorAlert marks error-class and novel labels.
	ColorAlert = color.RGBA{R: 0xff, A: 0xff}
	// ColorNormal marks every other label.
	ColorNormal = color.RGBA{G: 0xff, A: 0xff}
)

// Annotation is one box to draw over a frame.
type Annotation struct {
	Box        image.Rectangle `json:"box"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Alert      bool            `json:"alert"`
	Color      color.RGBA      `json:"-"`
}

// Annotate lists the boxes for dets. A label is an alert when it belongs to
// the error class or, when reference is non-nil, is missing from it. The
// input is never modified.
func Annotate(dets []labels.Detection, reference labels.Set, vocab *labels.Vocabulary) []Annotation {
	if len(dets) == 0 {
		return nil
	}
	out := make([]Annotation, 0, len(dets))
	for _, det := range dets {
		alert := vocab.IsErrorClass(det.Label) || (reference != nil && !reference.Has(det.Label))
		col := ColorNormal
		if alert {
			col = ColorAlert
		}
		out = append(out, Annotation{
			Box:        det.Box,
			Label:      det.Label,
			Confidence: det.Confidence,
			Alert:      alert,
			Color:      col,
		})
	}
	return out
}
