package watermark

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

var face = basicfont.Face7x13

// glyph renders text once at the native font size.
func glyph(text string) *image.Alpha {
	w := font.MeasureString(face, text).Ceil()
	img := image.NewAlpha(image.Rect(0, 0, w, face.Height))
	d := font.Drawer{
		Dst:  img,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(text)
	return img
}

type tileGeometry struct {
	scale        float64
	tileW, tileH float64
	stepX, stepY int
}

func geometry(opts Options) tileGeometry {
	scale := opts.FontSize / float64(face.Height)
	tileW := float64(font.MeasureString(face, opts.Text).Ceil()) * scale
	tileH := float64(face.Height) * scale
	return tileGeometry{
		scale: scale,
		tileW: tileW,
		tileH: tileH,
		stepX: int(math.Ceil(tileW)) + opts.Spacing,
		stepY: int(math.Ceil(tileH)) + opts.Spacing,
	}
}

func center(bounds image.Rectangle) (float64, float64) {
	return float64(bounds.Min.X) + float64(bounds.Dx())/2, float64(bounds.Min.Y) + float64(bounds.Dy())/2
}

// Layout returns the top-left anchors of every text tile, in the unrotated
// frame of bounds. The grid covers the circle circumscribing bounds, so it
// still covers the image after rotation about its centre. Alternate rows
// are offset by half a step.
func Layout(bounds image.Rectangle, opts Options) []image.Point {
	opts = opts.withDefaults()
	if bounds.Empty() {
		return nil
	}
	g := geometry(opts)

	cx, cy := center(bounds)
	half := int(math.Ceil(math.Hypot(float64(bounds.Dx()), float64(bounds.Dy()))/2)) + g.stepX

	x0, y0 := int(cx)-half, int(cy)-half
	x1, y1 := int(cx)+half, int(cy)+half

	var points []image.Point
	for row, y := 0, y0; y <= y1; row, y = row+1, y+g.stepY {
		offset := 0
		if row%2 == 1 {
			offset = g.stepX / 2
		}
		for x := x0 - offset; x <= x1; x += g.stepX {
			points = append(points, image.Point{X: x, Y: y})
		}
	}
	return points
}

// Mask returns the alpha mask of the text overlay for an image of the given
// bounds. It depends only on its arguments.
func Mask(bounds image.Rectangle, opts Options) *image.Alpha {
	opts = opts.withDefaults()
	mask := image.NewAlpha(bounds)
	if bounds.Empty() {
		return mask
	}

	g := geometry(opts)
	src := glyph(opts.Text)
	cx, cy := center(bounds)

	rad := opts.Angle * math.Pi / 180
	// Image y grows downwards, so negate to keep positive angles counter-clockwise.
	sin, cos := math.Sincos(-rad)

	for _, p := range Layout(bounds, opts) {
		px, py := float64(p.X)-cx, float64(p.Y)-cy
		s2d := f64.Aff3{
			cos * g.scale, -sin * g.scale, cos*px - sin*py + cx,
			sin * g.scale, cos * g.scale, sin*px + cos*py + cy,
		}
		draw.BiLinear.Transform(mask, s2d, src, src.Bounds(), draw.Over, nil)
	}

	for i, a := range mask.Pix {
		mask.Pix[i] = uint8(math.Round(float64(a) * opts.Opacity))
	}
	return mask
}
