package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-regions/internal/utils"
	"github.com/menta2k/image-regions/pkg/filter"
	"github.com/menta2k/image-regions/pkg/types"
)

// Processor handles the pixel side of a resolved request
type Processor struct {
	client *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch returns the raw bytes of a file path or an http(s) URL. Raw bytes are
// needed because the embedded metadata is read from the encoded stream.
func (p *Processor) Fetch(source string) ([]byte, error) {
	if utils.IsURL(source) {
		return p.fetchURL(source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

func (p *Processor) fetchURL(imageURL string) ([]byte, error) {
	if _, err := url.Parse(imageURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Image-Regions/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// Decode decodes image bytes, falling back to the libwebp decoder for WebP
// streams the pure Go decoder rejects.
func (p *Processor) Decode(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Apply crops img to the committed decision and scales it to the output
// size. Fit-in results are scaled to fit inside the target instead of
// filling it.
func (p *Processor) Apply(img image.Image, res filter.Result) (image.Image, error) {
	out := img
	if res.ShouldCrop {
		bounds := img.Bounds()
		rect := res.Crop.Rectangle().Add(bounds.Min).Intersect(bounds)
		if rect.Empty() {
			return nil, fmt.Errorf("empty crop rectangle %+v", res.Crop)
		}
		out = imaging.Crop(img, rect)
	}

	size := res.OutputSize()
	switch {
	case size.Width > 0 && size.Height > 0 && res.FitIn:
		out = imaging.Fit(out, size.Width, size.Height, imaging.Lanczos)
	case size.Width > 0 && size.Height > 0:
		out = imaging.Fill(out, size.Width, size.Height, imaging.Center, imaging.Lanczos)
	case size.Width > 0:
		out = imaging.Resize(out, size.Width, 0, imaging.Lanczos)
	case size.Height > 0:
		out = imaging.Resize(out, 0, size.Height, imaging.Lanczos)
	}
	return out, nil
}

// Encode writes img in the given format (jpg, png or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return png.Encode(w, img)
	case "jpg", "jpeg", "":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// Overlay lists the geometry drawn by CreateDebugOverlay, in source pixels
type Overlay struct {
	Crop    types.Crop
	Safe    types.Rect
	HasSafe bool
	Pivot   types.Point
}

// CreateDebugOverlay draws the crop rectangle, the safe area and the pivot
// on a copy of img.
func (p *Processor) CreateDebugOverlay(img image.Image, o Overlay) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	gold := color.NRGBA{255, 204, 0, 255} // crop
	green := color.NRGBA{0, 255, 0, 255}  // safe area
	red := color.NRGBA{255, 0, 0, 255}    // pivot
	blue := color.NRGBA{0, 170, 255, 255} // image center
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	if o.HasSafe {
		drawRect(nrgba, o.Safe.Round().Rectangle(), green, stroke)
	}
	drawRect(nrgba, o.Crop.Rectangle(), gold, stroke)

	px, py := int(math.Round(o.Pivot.X)), int(math.Round(o.Pivot.Y))
	drawHLine(nrgba, py, px-cross, px+cross, red)
	drawVLine(nrgba, px, py-cross, py+cross, red)

	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, 0), min(x1, img.Bounds().Dx())
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0, y1 = max(y0, 0), min(y1, img.Bounds().Dy())
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
