// Package imageproc validates image bytes and re-encodes them into the single
// format the vision model receives.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/example/ecoclassify/internal/domain"
)

var (
	ErrEmptyImage        = errors.New("image is empty")
	ErrImageTooLarge     = errors.New("image exceeds size limit")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrDecode            = errors.New("cannot decode image")
)

// Options bound the work done on untrusted input.
type Options struct {
	MaxBytes    int64
	MaxPixels   int
	JPEGQuality int
}

// DefaultOptions allows 10 MiB files and 40 megapixel images.
func DefaultOptions() Options {
	return Options{
		MaxBytes:    10 << 20,
		MaxPixels:   40_000_000,
		JPEGQuality: 95,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxBytes <= 0 {
		o.MaxBytes = def.MaxBytes
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = def.MaxPixels
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = def.JPEGQuality
	}
	return o
}

// Normalize sniffs, decodes and re-encodes data as an RGB JPEG. Transparent
// pixels are composited onto white. declaredType is only used in error
// messages; the content itself decides the format.
func Normalize(data []byte, declaredType string, opts Options) (*domain.Image, error) {
	opts = opts.withDefaults()

	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, len(data), opts.MaxBytes)
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s (declared %q)", ErrUnsupportedFormat, detected.String(), declaredType)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrDecode, detected.String(), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty dimensions %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > opts.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d pixels, limit %d", ErrImageTooLarge, cfg.Width, cfg.Height, opts.MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrDecode, format, err)
	}

	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &domain.Image{
		Data:         buf.Bytes(),
		MIMEType:     "image/jpeg",
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		SourceFormat: format,
	}, nil
}
