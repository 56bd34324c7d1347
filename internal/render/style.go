package render

import "image/color"

// Overlay layer styles resolved by the renderer. Text layers default to
// StyleHeadline; image layers default to a top-left logo.
const (
	StyleHeadline = "headline"
	StyleCredit   = "credit"
	StyleFrame    = "frame"

	StyleLogoTopLeft     = "logo-top-left"
	StyleLogoTopRight    = "logo-top-right"
	StyleLogoBottomLeft  = "logo-bottom-left"
	StyleLogoBottomRight = "logo-bottom-right"
)

// Style carries every colour and proportion the renderer uses. It is plain
// data: two renders with the same Style value draw identical pixels.
type Style struct {
	Background color.RGBA

	// Caption panel and word colours.
	CaptionPanel    color.RGBA
	CaptionUpcoming color.RGBA
	CaptionActive   color.RGBA
	CaptionPast     color.RGBA

	// Fraction of target height from the bottom edge to the caption panel.
	CaptionBottomFrac float64

	// Headline box.
	HeadlineBox  color.RGBA
	HeadlineText color.RGBA
	// Fraction of target height from the top edge to the headline box.
	HeadlineTopFrac float64

	CreditText color.RGBA

	// Frame decoration.
	FrameBorder color.RGBA
	FrameBars   color.RGBA
	// Border thickness and corner mark length in pixels.
	FrameBorderPx int
	FrameCornerPx int
	// Fraction of target height each letterbox-style bar covers.
	FrameBarFrac float64

	// Logo height as a fraction of target height, and corner inset pixels.
	LogoHeightFrac float64
	LogoInsetPx    int
}

// DefaultStyle is the stock look: dark background, white captions with a
// yellow sweep highlight, translucent panels.
func DefaultStyle() Style {
	return Style{
		Background: color.RGBA{R: 16, G: 16, B: 20, A: 255},

		CaptionPanel:    color.RGBA{R: 0, G: 0, B: 0, A: 160},
		CaptionUpcoming: color.RGBA{R: 235, G: 235, B: 235, A: 255},
		CaptionActive:   color.RGBA{R: 255, G: 214, B: 10, A: 255},
		CaptionPast:     color.RGBA{R: 140, G: 140, B: 140, A: 255},

		CaptionBottomFrac: 0.18,

		HeadlineBox:     color.RGBA{R: 0, G: 0, B: 0, A: 190},
		HeadlineText:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
		HeadlineTopFrac: 0.08,

		CreditText: color.RGBA{R: 220, G: 220, B: 220, A: 255},

		FrameBorder:   color.RGBA{R: 255, G: 255, B: 255, A: 255},
		FrameBars:     color.RGBA{R: 0, G: 0, B: 0, A: 210},
		FrameBorderPx: 6,
		FrameCornerPx: 48,
		FrameBarFrac:  0.06,

		LogoHeightFrac: 0.07,
		LogoInsetPx:    24,
	}
}
