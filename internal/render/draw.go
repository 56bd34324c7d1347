package render

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// textFace is the fixed bitmap face every render uses. A bitmap face keeps
// text output byte-identical across platforms, which the determinism
// contract depends on.
var textFace = basicfont.Face7x13

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

// drawCover scales src to fill dst completely while preserving aspect ratio,
// centring it and cropping the overflow. The media frame is never
// letterboxed.
func drawCover(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return
	}
	tb := dst.Bounds()
	tw, th := tb.Dx(), tb.Dy()

	scaleX := float64(tw) / float64(sb.Dx())
	scaleY := float64(th) / float64(sb.Dy())
	scale := scaleX
	if scaleY > scale {
		scale = scaleY
	}

	scaledW := int(float64(sb.Dx())*scale + 0.5)
	scaledH := int(float64(sb.Dy())*scale + 0.5)
	offX := tb.Min.X + (tw-scaledW)/2
	offY := tb.Min.Y + (th-scaledH)/2

	dr := image.Rect(offX, offY, offX+scaledW, offY+scaledH)
	xdraw.ApproxBiLinear.Scale(dst, dr, src, sb, xdraw.Src, nil)
}

// textWidth measures a string in the shared face.
func textWidth(s string) int {
	return font.MeasureString(textFace, s).Ceil()
}

// drawText draws a string with its baseline at (x, y).
func drawText(dst *image.RGBA, s string, x, y int, c color.RGBA) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: textFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawBorder(dst *image.RGBA, thickness int, c color.RGBA) {
	b := dst.Bounds()
	fillRect(dst, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+thickness), c)
	fillRect(dst, image.Rect(b.Min.X, b.Max.Y-thickness, b.Max.X, b.Max.Y), c)
	fillRect(dst, image.Rect(b.Min.X, b.Min.Y, b.Min.X+thickness, b.Max.Y), c)
	fillRect(dst, image.Rect(b.Max.X-thickness, b.Min.Y, b.Max.X, b.Max.Y), c)
}

func drawCornerMarks(dst *image.RGBA, length, thickness int, c color.RGBA) {
	b := dst.Bounds()
	corners := []struct {
		x, y   int
		dx, dy int
	}{
		{b.Min.X, b.Min.Y, 1, 1},
		{b.Max.X, b.Min.Y, -1, 1},
		{b.Min.X, b.Max.Y, 1, -1},
		{b.Max.X, b.Max.Y, -1, -1},
	}
	for _, cr := range corners {
		// Horizontal arm.
		x0, x1 := cr.x, cr.x+cr.dx*length
		if x0 > x1 {
			x0, x1 = x1, x0
		}
		y0, y1 := cr.y, cr.y+cr.dy*thickness
		if y0 > y1 {
			y0, y1 = y1, y0
		}
		fillRect(dst, image.Rect(x0, y0, x1, y1), c)

		// Vertical arm.
		x0, x1 = cr.x, cr.x+cr.dx*thickness
		if x0 > x1 {
			x0, x1 = x1, x0
		}
		y0, y1 = cr.y, cr.y+cr.dy*length
		if y0 > y1 {
			y0, y1 = y1, y0
		}
		fillRect(dst, image.Rect(x0, y0, x1, y1), c)
	}
}
