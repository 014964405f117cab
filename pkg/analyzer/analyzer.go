package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-regions/pkg/metadata"
	"github.com/menta2k/image-regions/pkg/types"
	"github.com/menta2k/image-regions/pkg/xmp"
)

// ImageAnalyzer reads what the resolver needs from an encoded image: its
// pixel size and its embedded metadata. Pixels are never decoded.
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
}

// DefaultConfig accepts every decodable format and any non-empty image
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
		MinImageSize:     1,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains the inspected properties of an image
type ImageInfo struct {
	Format      string            `json:"format"`
	Size        types.Size        `json:"size"`
	AspectRatio float64           `json:"aspect_ratio"`
	Metadata    metadata.MapStore `json:"-"`
	HasMetadata bool              `json:"has_metadata"`
}

// InspectFile inspects the image at path
func (a *ImageAnalyzer) InspectFile(path string) (ImageInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to open image file: %w", err)
	}
	return a.Inspect(data)
}

// InspectReader inspects an image stream
func (a *ImageAnalyzer) InspectReader(reader io.Reader) (ImageInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to read image: %w", err)
	}
	return a.Inspect(data)
}

// Inspect decodes the image header and the XMP packet of data. An image
// without a packet yields an empty store.
func (a *ImageAnalyzer) Inspect(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	if !a.isFormatSupported(format) {
		return ImageInfo{}, fmt.Errorf("unsupported image format: %s", format)
	}

	size := types.Size{Width: cfg.Width, Height: cfg.Height}
	if err := a.ValidateSize(size); err != nil {
		return ImageInfo{}, err
	}

	store, err := xmp.Decode(data)
	switch {
	case errors.Is(err, xmp.ErrNoPacket):
		store = metadata.MapStore{}
	case err != nil:
		return ImageInfo{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	return ImageInfo{
		Format:      format,
		Size:        size,
		AspectRatio: size.Aspect(),
		Metadata:    store,
		HasMetadata: len(store) > 0,
	}, nil
}

// ValidateSize checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateSize(size types.Size) error {
	if size.Width < a.config.MinImageSize || size.Height < a.config.MinImageSize || !size.Valid() {
		return fmt.Errorf("image too small: %v (minimum: %d)", size, a.config.MinImageSize)
	}
	return nil
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
