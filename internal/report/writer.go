package report

import (
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"vdiff/internal/fileutil"
	"vdiff/internal/pipeline"
	"vdiff/internal/services"
)

const (
	TextFileName        = "report.txt"
	JSONFileName        = "report.json"
	AnnotationsFileName = "annotations.jsonl"
)

// SnapshotOptions controls JPEG output.
type SnapshotOptions struct {
	Quality  int
	MaxWidth int
}

// Files lists what Write produced.
type Files struct {
	Text      string
	JSON      string
	Snapshots []string
}

// Write stores the text report, the JSON report and one snapshot per finding
// that has one in dir.
func Write(dir string, rep Report, findings []pipeline.Finding, opts SnapshotOptions) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, services.Wrap(services.ErrConfiguration, "report", "create dir", dir, err)
	}
	files := Files{
		Text: filepath.Join(dir, TextFileName),
		JSON: filepath.Join(dir, JSONFileName),
	}
	for i, finding := range findings {
		if finding.Snapshot == nil {
			continue
		}
		path := filepath.Join(dir, SnapshotName(i+1))
		if err := WriteSnapshot(path, finding.Snapshot, opts); err != nil {
			return files, err
		}
		files.Snapshots = append(files.Snapshots, path)
	}
	if err := fileutil.WriteFileAtomic(files.Text, []byte(Text(rep)), 0o644); err != nil {
		return files, services.Wrap(services.ErrExternalTool, "report", "write text", files.Text, err)
	}
	encoded, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return files, services.Wrap(services.ErrValidation, "report", "encode json", "", err)
	}
	if err := fileutil.WriteFileAtomic(files.JSON, append(encoded, '\n'), 0o644); err != nil {
		return files, services.Wrap(services.ErrExternalTool, "report", "write json", files.JSON, err)
	}
	return files, nil
}

// WriteSnapshot encodes img as JPEG at path, downscaling to opts.MaxWidth when
// the image is wider.
func WriteSnapshot(path string, img image.Image, opts SnapshotOptions) error {
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	scaled := Downscale(img, opts.MaxWidth)
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return jpeg.Encode(w, scaled, &jpeg.Options{Quality: quality})
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "report", "write snapshot", path, err)
	}
	return nil
}

// Downscale returns img scaled to maxWidth keeping the aspect ratio, or img
// unchanged when it already fits or maxWidth is not positive.
func Downscale(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return img
	}
	height := max(bounds.Dy()*maxWidth/bounds.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}
