package similarity

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"vdiff/internal/services"
)

const windowSize = 8

var (
	ssimC1 = math.Pow(0.01*255, 2)
	ssimC2 = math.Pow(0.03*255, 2)
)

// DecodeError reports a frame that cannot be compared.
type DecodeError struct {
	Frame  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s frame: %s", e.Frame, e.Reason)
}

func (e *DecodeError) Unwrap() error { return services.ErrDecode }

// SSIM returns the structural similarity of a and b in [-1, 1]. The candidate
// is rescaled to the reference size when they differ.
func SSIM(a, b image.Image) (float64, error) {
	return ssimAt(a, b, 0)
}

func ssimAt(ref, cand image.Image, width int) (float64, error) {
	if err := checkFrame("reference", ref); err != nil {
		return 0, err
	}
	if err := checkFrame("candidate", cand); err != nil {
		return 0, err
	}
	w, h := analysisSize(ref.Bounds(), width)
	return structural(luma(ref, w, h), luma(cand, w, h)), nil
}

func checkFrame(name string, img image.Image) error {
	if img == nil {
		return &DecodeError{Frame: name, Reason: "missing image"}
	}
	if img.Bounds().Empty() {
		return &DecodeError{Frame: name, Reason: "empty image"}
	}
	return nil
}

func analysisSize(bounds image.Rectangle, width int) (int, int) {
	w, h := bounds.Dx(), bounds.Dy()
	if width <= 0 || w <= width {
		return w, h
	}
	scaled := int(math.Round(float64(h) * float64(width) / float64(w)))
	return width, max(scaled, 1)
}

// luma renders img into a w x h grayscale buffer. image.Gray conversion uses
// the Rec. 601 weights.
func luma(img image.Image, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	src := img.Bounds()
	if src.Dx() == w && src.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// structural averages window SSIM over a and b, which must share bounds.
// Windows tile the image; the last row and column are shifted inward so
// every window stays full size.
func structural(a, b *image.Gray) float64 {
	bounds := a.Bounds()
	winW := min(windowSize, bounds.Dx())
	winH := min(windowSize, bounds.Dy())

	var total float64
	var count int
	for _, y := range windowOrigins(bounds.Dy(), winH) {
		for _, x := range windowOrigins(bounds.Dx(), winW) {
			total += windowSSIM(a, b, image.Rect(x, y, x+winW, y+winH))
			count++
		}
	}
	return total / float64(count)
}

func windowOrigins(extent, win int) []int {
	origins := make([]int, 0, extent/win+1)
	for pos := 0; pos+win <= extent; pos += win {
		origins = append(origins, pos)
	}
	if last := extent - win; len(origins) == 0 || origins[len(origins)-1] != last {
		origins = append(origins, last)
	}
	return origins
}

func windowSSIM(a, b *image.Gray, rect image.Rectangle) float64 {
	n := float64(rect.Dx() * rect.Dy())
	var sumA, sumB float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			sumA += float64(a.GrayAt(x, y).Y)
			sumB += float64(b.GrayAt(x, y).Y)
		}
	}
	meanA, meanB := sumA/n, sumB/n

	var varA, varB, cov float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			da := float64(a.GrayAt(x, y).Y) - meanA
			db := float64(b.GrayAt(x, y).Y) - meanB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n
	varB /= n
	cov /= n

	num := (2*meanA*meanB + ssimC1) * (2*cov + ssimC2)
	den := (meanA*meanA + meanB*meanB + ssimC1) * (varA + varB + ssimC2)
	return num / den
}
