// Package watermark renders public preview images: EXIF orientation is
// applied, the image is bounded in size and a tiled, rotated text overlay
// is composited over it.
package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrUndecodable is returned for input that is not a supported image.
// It is permanent; retrying the same bytes will not help.
var ErrUndecodable = errors.New("undecodable image")

// Options controls the preview. Zero values fall back to defaults, except
// Angle where zero means horizontal text.
type Options struct {
	Text         string
	Opacity      float64 // 0..1
	Angle        float64 // degrees, counter-clockwise
	Spacing      int     // gap between tiles in pixels
	FontSize     float64 // cap height in pixels
	MaxDimension int     // longest side of the output
	Quality      int     // JPEG quality
	// MaxPixels rejects inputs whose declared size exceeds it, before any
	// pixel is decoded.
	MaxPixels int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Text:         "PREVIEW",
		Opacity:      0.35,
		Angle:        -30,
		Spacing:      120,
		FontSize:     48,
		MaxDimension: 1600,
		Quality:      80,
		MaxPixels:    50_000_000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Text == "" {
		o.Text = d.Text
	}
	if o.Opacity <= 0 || o.Opacity > 1 {
		o.Opacity = d.Opacity
	}
	if o.Spacing <= 0 {
		o.Spacing = d.Spacing
	}
	if o.FontSize <= 0 {
		o.FontSize = d.FontSize
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = d.MaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = d.Quality
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = d.MaxPixels
	}
	return o
}

// Render produces a watermarked JPEG preview of data.
func Render(data []byte, opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUndecodable, cfg.Width, cfg.Height, opts.MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	img := Orient(src, ReadOrientation(data))

	b := img.Bounds()
	if b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension {
		limit := uint(opts.MaxDimension)
		img = resize.Thumbnail(limit, limit, img, resize.Lanczos3)
	}

	b = img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)

	mask := Mask(canvas.Bounds(), opts)
	draw.DrawMask(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, mask, canvas.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadOrientation returns the EXIF orientation tag of data, or 1 when the
// image carries no usable EXIF block.
func ReadOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}
