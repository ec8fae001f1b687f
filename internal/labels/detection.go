package labels

import "image"

// Detection is one object reported by the detector for a frame. Only Label
// and Confidence drive segmentation; Box is carried for annotations.
type Detection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}
