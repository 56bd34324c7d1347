// Package captions maps a playback timestamp to a bounded, highlighted
// window of transcribed words. Word timings come from an external
// transcription service and are not assumed well-formed: entries may
// overlap, run backwards or carry gaps, and are clamped rather than
// rejected.
package captions

import "sort"

// Word is a single transcribed word with its span in seconds.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// WindowWord is a word in the active caption window with its display flags.
// Progress is the fractional position of t inside the active word's span,
// used for a sweep-highlight effect; it is zero for non-active words.
type WindowWord struct {
	Word
	IsActive bool
	IsPast   bool
	Progress float64
}

// Normalize returns a sanitised copy of words: sorted by start time, with
// negative times clamped to zero, inverted spans collapsed, and overlaps
// clamped so the result is non-overlapping and ascending. The input is not
// modified; the caption list is replaced wholesale on every regeneration.
func Normalize(words []Word) []Word {
	out := make([]Word, len(words))
	copy(out, words)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})

	for i := range out {
		if out[i].Start < 0 {
			out[i].Start = 0
		}
		if out[i].End < out[i].Start {
			out[i].End = out[i].Start
		}
		if i > 0 && out[i].Start < out[i-1].End {
			out[i].Start = out[i-1].End
			if out[i].End < out[i].Start {
				out[i].End = out[i].Start
			}
		}
	}
	return out
}

// ActiveWindow returns a bounded slice of up to contextSize words around t.
//
// Edge rules:
//   - before the first word's start: the first contextSize words, none
//     active, none past
//   - inside a gap between two words: the window anchors to the preceding
//     word, which is already past
//   - after the last word's end: the trailing contextSize words, all past
//
// A timestamp with no matching word is not an error; the window simply
// carries no active entry.
func ActiveWindow(words []Word, t float64, contextSize int) []WindowWord {
	if len(words) == 0 || contextSize <= 0 {
		return nil
	}
	words = Normalize(words)

	anchor := anchorIndex(words, t)

	start := anchor - contextSize/2
	if start > len(words)-contextSize {
		start = len(words) - contextSize
	}
	if start < 0 {
		start = 0
	}
	end := start + contextSize
	if end > len(words) {
		end = len(words)
	}

	window := make([]WindowWord, 0, end-start)
	for _, w := range words[start:end] {
		ww := WindowWord{Word: w}
		ww.IsActive = t >= w.Start && t < w.End
		ww.IsPast = t >= w.End
		if ww.IsActive {
			span := w.End - w.Start
			if span > 0 {
				ww.Progress = (t - w.Start) / span
			} else {
				ww.Progress = 1
			}
			if ww.Progress > 1 {
				ww.Progress = 1
			}
		}
		window = append(window, ww)
	}
	return window
}

// anchorIndex locates the word the window centres on: the active word when t
// falls inside a span, the preceding word when t falls in a gap, 0 before
// the first word and the last index after the final word.
func anchorIndex(words []Word, t float64) int {
	if t < words[0].Start {
		return 0
	}
	last := len(words) - 1
	if t >= words[last].End {
		return last
	}
	for i, w := range words {
		if t >= w.Start && t < w.End {
			return i
		}
		if i < last && t >= w.End && t < words[i+1].Start {
			return i
		}
	}
	return last
}
