// Package render composites one frame of the composition: active media
// clip, overlay layers and the caption window, drawn onto a raster target
// for a single timestamp.
//
// Render is deterministic: called twice with identical arguments it
// produces pixel-identical output. Interactive preview and export drive the
// same function, which is what makes an export reproduce exactly what the
// preview showed.
package render

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"

	"github.com/reelforge/reelforge-agent/internal/captions"
	"github.com/reelforge/reelforge-agent/internal/media"
	"github.com/reelforge/reelforge-agent/internal/overlay"
	"github.com/reelforge/reelforge-agent/internal/timeline"
)

// Renderer holds the loaded media sources and caption window size shared by
// every frame of a session. It carries no per-frame state.
type Renderer struct {
	lib         *media.Library
	contextSize int
}

func New(lib *media.Library, captionContext int) *Renderer {
	if captionContext <= 0 {
		captionContext = 3
	}
	return &Renderer{lib: lib, contextSize: captionContext}
}

// Render composites the frame at time t onto target:
// background, cover-fit media, active overlays, caption window.
func (r *Renderer) Render(ctx context.Context, target *image.RGBA, t float64, tl *timeline.Timeline, layers []overlay.Layer, words []captions.Word, style Style) error {
	// 1. Background.
	draw.Draw(target, target.Bounds(), image.NewUniform(style.Background), image.Point{}, draw.Src)

	// 2. Active media clip, cover-fit.
	if iv, ok := tl.IntervalAt(t); ok {
		clip, found := tl.Clip(iv.Index)
		if !found {
			return fmt.Errorf("interval at %.3fs references missing clip %s", t, iv.ClipID)
		}
		src, err := r.lib.Get(clip.ID)
		if err != nil {
			return err
		}
		local := t - iv.Start
		if local < 0 {
			local = 0
		}
		frame, err := src.FrameAt(ctx, clip.SourceOffset(local))
		if err != nil {
			return fmt.Errorf("sample clip %s: %w", clip.ID, err)
		}
		drawCover(target, frame)
	}

	// 3. Overlay layers, in list order.
	for _, l := range layers {
		if !overlay.IsActive(l, t) {
			continue
		}
		if err := r.drawLayer(ctx, target, l, style); err != nil {
			return err
		}
	}

	// 4. Caption window.
	if len(words) > 0 {
		r.drawCaptions(target, words, t, style)
	}

	return nil
}

func (r *Renderer) drawLayer(ctx context.Context, target *image.RGBA, l overlay.Layer, style Style) error {
	switch l.Kind {
	case overlay.LayerKindText:
		switch l.Style {
		case StyleCredit:
			drawCredit(target, l.Content, style)
		case StyleFrame:
			drawFrame(target, style)
		default:
			drawHeadline(target, l.Content, style)
		}
	case overlay.LayerKindImage:
		if l.Style == StyleFrame {
			drawFrame(target, style)
			return nil
		}
		src, err := r.lib.Get(l.ID)
		if err != nil {
			return fmt.Errorf("overlay %s: %w", l.ID, err)
		}
		img, err := src.FrameAt(ctx, 0)
		if err != nil {
			return fmt.Errorf("overlay %s: %w", l.ID, err)
		}
		drawLogo(target, img, l.Style, style)
	}
	return nil
}

func drawHeadline(target *image.RGBA, text string, style Style) {
	if text == "" {
		return
	}
	b := target.Bounds()
	metrics := textFace.Metrics()
	lineH := metrics.Height.Ceil()
	padX, padY := 16, 10

	w := textWidth(text)
	boxW := w + 2*padX
	boxH := lineH + 2*padY
	x0 := b.Min.X + (b.Dx()-boxW)/2
	y0 := b.Min.Y + int(float64(b.Dy())*style.HeadlineTopFrac)

	fillRect(target, image.Rect(x0, y0, x0+boxW, y0+boxH), style.HeadlineBox)
	drawText(target, text, x0+padX, y0+padY+metrics.Ascent.Ceil(), style.HeadlineText)
}

func drawCredit(target *image.RGBA, text string, style Style) {
	if text == "" {
		return
	}
	b := target.Bounds()
	metrics := textFace.Metrics()
	x := b.Min.X + 16
	y := b.Max.Y - 16 - metrics.Descent.Ceil()
	drawText(target, text, x, y, style.CreditText)
}

func drawFrame(target *image.RGBA, style Style) {
	b := target.Bounds()
	barH := int(float64(b.Dy()) * style.FrameBarFrac)
	fillRect(target, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+barH), style.FrameBars)
	fillRect(target, image.Rect(b.Min.X, b.Max.Y-barH, b.Max.X, b.Max.Y), style.FrameBars)
	drawBorder(target, style.FrameBorderPx, style.FrameBorder)
	drawCornerMarks(target, style.FrameCornerPx, style.FrameBorderPx, style.FrameBorder)
}

func drawLogo(target *image.RGBA, img image.Image, styleName string, style Style) {
	b := target.Bounds()
	logoH := uint(float64(b.Dy()) * style.LogoHeightFrac)
	if logoH == 0 {
		return
	}
	scaled := resize.Resize(0, logoH, img, resize.Lanczos3)
	sb := scaled.Bounds()
	inset := style.LogoInsetPx

	var x, y int
	switch styleName {
	case StyleLogoTopRight:
		x, y = b.Max.X-inset-sb.Dx(), b.Min.Y+inset
	case StyleLogoBottomLeft:
		x, y = b.Min.X+inset, b.Max.Y-inset-sb.Dy()
	case StyleLogoBottomRight:
		x, y = b.Max.X-inset-sb.Dx(), b.Max.Y-inset-sb.Dy()
	default: // top-left
		x, y = b.Min.X+inset, b.Min.Y+inset
	}

	dr := image.Rect(x, y, x+sb.Dx(), y+sb.Dy())
	draw.Draw(target, dr.Intersect(target.Bounds()), scaled, sb.Min, draw.Over)
}

func (r *Renderer) drawCaptions(target *image.RGBA, words []captions.Word, t float64, style Style) {
	window := captions.ActiveWindow(words, t, r.contextSize)
	if len(window) == 0 {
		return
	}

	b := target.Bounds()
	metrics := textFace.Metrics()
	lineH := metrics.Height.Ceil()
	padX, padY := 20, 12
	wordGap := textWidth(" ")

	totalW := 0
	for i, ww := range window {
		if i > 0 {
			totalW += wordGap
		}
		totalW += textWidth(ww.Text)
	}

	boxW := totalW + 2*padX
	boxH := lineH + 2*padY + 4 // room for the sweep bar
	x0 := b.Min.X + (b.Dx()-boxW)/2
	y0 := b.Max.Y - int(float64(b.Dy())*style.CaptionBottomFrac) - boxH

	fillRect(target, image.Rect(x0, y0, x0+boxW, y0+boxH), style.CaptionPanel)

	x := x0 + padX
	baseline := y0 + padY + metrics.Ascent.Ceil()
	for i, ww := range window {
		if i > 0 {
			x += wordGap
		}
		w := textWidth(ww.Text)

		c := style.CaptionUpcoming
		switch {
		case ww.IsActive:
			c = style.CaptionActive
		case ww.IsPast:
			c = style.CaptionPast
		}
		drawText(target, ww.Text, x, baseline, c)

		// Sweep highlight: a bar under the active word growing with its
		// fractional progress.
		if ww.IsActive && ww.Progress > 0 {
			barW := int(float64(w) * ww.Progress)
			barY := baseline + metrics.Descent.Ceil() + 2
			fillRect(target, image.Rect(x, barY, x+barW, barY+3), style.CaptionActive)
		}

		x += w
	}
}
