package detector

import (
	"image"
	"math"

	"vdiff/internal/labels"
)

type wireBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type wireDetection struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       wireBox `json:"bbox"`
}

type wireResponse struct {
	Detections []wireDetection `json:"detections"`
	Error      string          `json:"error,omitempty"`
}

func toDetections(in []wireDetection) []labels.Detection {
	out := make([]labels.Detection, 0, len(in))
	for _, det := range in {
		x0 := int(math.Round(det.BBox.X))
		y0 := int(math.Round(det.BBox.Y))
		out = append(out, labels.Detection{
			Label:      det.ClassName,
			Confidence: det.Confidence,
			Box:        image.Rect(x0, y0, x0+int(math.Round(det.BBox.W)), y0+int(math.Round(det.BBox.H))),
		})
	}
	return out
}
