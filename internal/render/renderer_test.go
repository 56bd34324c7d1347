package render

import (
	"context"
	"crypto/sha256"
	"image"
	"image/color"
	"testing"

	"github.com/reelforge/reelforge-agent/internal/captions"
	"github.com/reelforge/reelforge-agent/internal/media"
	"github.com/reelforge/reelforge-agent/internal/overlay"
	"github.com/reelforge/reelforge-agent/internal/timeline"
)

// solidSource is a deterministic stand-in for decoded media.
type solidSource struct {
	c    color.RGBA
	w, h int
}

func (s *solidSource) Kind() string { return media.KindImage }

func (s *solidSource) FrameAt(ctx context.Context, offset float64) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			img.SetRGBA(x, y, s.c)
		}
	}
	return img, nil
}

func (s *solidSource) Close() error { return nil }

func testComposition() (*timeline.Timeline, *media.Library) {
	tl := timeline.New()
	tl.Add(
		timeline.Clip{ID: "red", Kind: timeline.ClipKindImage, AssignedDuration: 2, TrimStart: 0, TrimEnd: 1},
		timeline.Clip{ID: "blue", Kind: timeline.ClipKindImage, AssignedDuration: 2, TrimStart: 0, TrimEnd: 1},
	)

	lib := media.NewLibrary()
	lib.Put("red", &solidSource{c: color.RGBA{R: 255, A: 255}, w: 40, h: 80})
	lib.Put("blue", &solidSource{c: color.RGBA{B: 255, A: 255}, w: 40, h: 80})
	return tl, lib
}

func frameHash(t *testing.T, r *Renderer, ts float64, tl *timeline.Timeline, layers []overlay.Layer, words []captions.Word) [32]byte {
	t.Helper()
	target := image.NewRGBA(image.Rect(0, 0, 108, 192))
	if err := r.Render(context.Background(), target, ts, tl, layers, words, DefaultStyle()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return sha256.Sum256(target.Pix)
}

func TestRender_Deterministic(t *testing.T) {
	tl, lib := testComposition()
	defer lib.Close()
	r := New(lib, 3)

	layers := []overlay.Layer{
		{ID: "h", Kind: overlay.LayerKindText, Content: "Big News", Style: StyleHeadline, Start: 0, Duration: 4},
		{ID: "c", Kind: overlay.LayerKindText, Content: "source: archive", Style: StyleCredit, Start: 0, Duration: 4},
	}
	words := []captions.Word{
		{Text: "Halo", Start: 0, End: 0.5},
		{Text: "dunia", Start: 0.5, End: 1.0},
	}

	h1 := frameHash(t, r, 0.7, tl, layers, words)
	h2 := frameHash(t, r, 0.7, tl, layers, words)
	if h1 != h2 {
		t.Error("identical arguments produced different pixels")
	}
}

func TestRender_DifferentTimesDiffer(t *testing.T) {
	tl, lib := testComposition()
	defer lib.Close()
	r := New(lib, 3)

	// 0.5s is inside the red clip, 2.5s inside the blue clip.
	h1 := frameHash(t, r, 0.5, tl, nil, nil)
	h2 := frameHash(t, r, 2.5, tl, nil, nil)
	if h1 == h2 {
		t.Error("frames from different clips hashed identically")
	}
}

func TestRender_CoverFitFillsTarget(t *testing.T) {
	tl, lib := testComposition()
	defer lib.Close()
	r := New(lib, 3)

	target := image.NewRGBA(image.Rect(0, 0, 100, 50))
	if err := r.Render(context.Background(), target, 0.5, tl, nil, nil, DefaultStyle()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// A narrow tall source cover-fit into a wide target must fill the
	// corners; letterboxing would leave background there.
	bg := DefaultStyle().Background
	for _, pt := range []image.Point{{0, 0}, {99, 0}, {0, 49}, {99, 49}, {50, 25}} {
		got := target.RGBAAt(pt.X, pt.Y)
		if got == bg {
			t.Errorf("pixel %v still background: media not cover-fit", pt)
		}
	}
}

func TestRender_EmptyTimelineIsBackground(t *testing.T) {
	lib := media.NewLibrary()
	defer lib.Close()
	r := New(lib, 3)

	target := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if err := r.Render(context.Background(), target, 0, timeline.New(), nil, nil, DefaultStyle()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	bg := DefaultStyle().Background
	if got := target.RGBAAt(5, 5); got != bg {
		t.Errorf("pixel = %v, want background %v", got, bg)
	}
}

func TestRender_InactiveLayerNotDrawn(t *testing.T) {
	tl, lib := testComposition()
	defer lib.Close()
	r := New(lib, 3)

	active := []overlay.Layer{{ID: "h", Kind: overlay.LayerKindText, Content: "Title", Start: 0, Duration: 4}}
	inactive := []overlay.Layer{{ID: "h", Kind: overlay.LayerKindText, Content: "Title", Start: 10, Duration: 4}}

	withActive := frameHash(t, r, 0.5, tl, active, nil)
	withInactive := frameHash(t, r, 0.5, tl, inactive, nil)
	bare := frameHash(t, r, 0.5, tl, nil, nil)

	if withActive == bare {
		t.Error("active layer had no visible effect")
	}
	if withInactive != bare {
		t.Error("inactive layer was drawn")
	}
}

func TestRender_ImageOverlayCorners(t *testing.T) {
	tl, lib := testComposition()
	defer lib.Close()
	lib.Put("logo", &solidSource{c: color.RGBA{G: 255, A: 255}, w: 30, h: 30})
	r := New(lib, 3)

	styles := []string{StyleLogoTopLeft, StyleLogoTopRight, StyleLogoBottomLeft, StyleLogoBottomRight}
	hashes := make(map[[32]byte]string)
	for _, s := range styles {
		layers := []overlay.Layer{{ID: "logo", Kind: overlay.LayerKindImage, Style: s, Start: 0, Duration: 4}}
		h := frameHash(t, r, 0.5, tl, layers, nil)
		if prev, dup := hashes[h]; dup {
			t.Errorf("styles %s and %s rendered identically", prev, s)
		}
		hashes[h] = s
	}
}

func TestRender_MissingOverlaySourceFails(t *testing.T) {
	tl, lib := testComposition()
	defer lib.Close()
	r := New(lib, 3)

	layers := []overlay.Layer{{ID: "ghost", Kind: overlay.LayerKindImage, Start: 0, Duration: 4}}
	target := image.NewRGBA(image.Rect(0, 0, 20, 20))
	if err := r.Render(context.Background(), target, 0.5, tl, layers, nil, DefaultStyle()); err == nil {
		t.Error("missing overlay source should fail the render")
	}
}

func TestRender_CaptionsChangePixels(t *testing.T) {
	tl, lib := testComposition()
	defer lib.Close()
	r := New(lib, 3)

	words := []captions.Word{{Text: "Halo", Start: 0, End: 1}}
	with := frameHash(t, r, 0.5, tl, nil, words)
	without := frameHash(t, r, 0.5, tl, nil, nil)
	if with == without {
		t.Error("caption window had no visible effect")
	}
}

func TestRender_FrameStyle(t *testing.T) {
	tl, lib := testComposition()
	defer lib.Close()
	r := New(lib, 3)

	layers := []overlay.Layer{{ID: "f", Kind: overlay.LayerKindText, Style: StyleFrame, Start: 0, Duration: 4}}
	target := image.NewRGBA(image.Rect(0, 0, 100, 200))
	if err := r.Render(context.Background(), target, 0.5, tl, layers, nil, DefaultStyle()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	border := DefaultStyle().FrameBorder
	if got := target.RGBAAt(0, 0); got != border {
		t.Errorf("corner pixel = %v, want border %v", got, border)
	}
}
