// Package timeline derives a gapless, time-ordered interval sequence from a
// list of trimmed, reorderable media clips. Mutations never fail: invalid
// input is clamped to the nearest valid value at the boundary.
package timeline

const (
	ClipKindVideo = "video"
	ClipKindImage = "image"

	// MinTrimGap is the smallest allowed span between trim fractions.
	MinTrimGap = 0.1
)

// Clip is a media item placed on the primary track. AssignedDuration is the
// nominal length in seconds before trimming; TrimStart/TrimEnd are fractions
// of that nominal length with TrimEnd-TrimStart >= MinTrimGap.
type Clip struct {
	ID               string
	Kind             string
	Source           string
	AssignedDuration float64
	TrimStart        float64
	TrimEnd          float64
}

// EffectiveDuration is the clip's contribution to the media track in seconds.
func (c Clip) EffectiveDuration() float64 {
	return c.AssignedDuration * (c.TrimEnd - c.TrimStart)
}

// SourceOffset converts an offset into the composed clip span to an offset
// into the underlying source, accounting for the leading trim.
func (c Clip) SourceOffset(local float64) float64 {
	return c.AssignedDuration*c.TrimStart + local
}

// Interval is one derived entry of the composed sequence. Intervals are
// half-open [Start, End) except the last, which is closed at its right edge.
type Interval struct {
	ClipID string
	Index  int
	Start  float64
	End    float64
}

// Duration returns the interval length in seconds.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// Timeline owns the ordered clip list and the state needed to derive the
// total composition length: the media track, the narration length and the
// furthest overlay end. The derived intervals are recomputed from scratch
// after every mutation and never mutated in place.
type Timeline struct {
	clips     []Clip
	intervals []Interval

	narrationDuration float64
	maxLayerEnd       float64
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{}
}

// Add appends clips to the end of the track, clamping their trim fractions.
func (tl *Timeline) Add(clips ...Clip) {
	for _, c := range clips {
		if c.AssignedDuration < 0 {
			c.AssignedDuration = 0
		}
		c.TrimStart, c.TrimEnd = clampTrim(c.TrimStart, c.TrimEnd)
		tl.clips = append(tl.clips, c)
	}
	tl.Recompute()
}

// Remove deletes the clip at index. Out-of-range indices are ignored.
func (tl *Timeline) Remove(index int) {
	if index < 0 || index >= len(tl.clips) {
		return
	}
	tl.clips = append(tl.clips[:index], tl.clips[index+1:]...)
	tl.Recompute()
}

// Reorder rearranges clips according to newOrder, a permutation of current
// indices. Invalid or duplicate entries are dropped; clips not named keep
// their relative order at the end. The result always contains every clip
// exactly once.
func (tl *Timeline) Reorder(newOrder []int) {
	seen := make(map[int]bool, len(tl.clips))
	reordered := make([]Clip, 0, len(tl.clips))
	for _, idx := range newOrder {
		if idx < 0 || idx >= len(tl.clips) || seen[idx] {
			continue
		}
		seen[idx] = true
		reordered = append(reordered, tl.clips[idx])
	}
	for i, c := range tl.clips {
		if !seen[i] {
			reordered = append(reordered, c)
		}
	}
	tl.clips = reordered
	tl.Recompute()
}

// SetTrim updates a clip's trim fractions, clamping adversarial input so the
// trim invariant always holds. Inverted ranges are swapped, not rejected.
func (tl *Timeline) SetTrim(index int, start, end float64) {
	if index < 0 || index >= len(tl.clips) {
		return
	}
	tl.clips[index].TrimStart, tl.clips[index].TrimEnd = clampTrim(start, end)
	tl.Recompute()
}

// SetDuration updates a clip's nominal duration. Negative input clamps to 0.
func (tl *Timeline) SetDuration(index int, seconds float64) {
	if index < 0 || index >= len(tl.clips) {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	tl.clips[index].AssignedDuration = seconds
	tl.Recompute()
}

// SetNarrationDuration records the narration track length used when deriving
// the total composition length.
func (tl *Timeline) SetNarrationDuration(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	tl.narrationDuration = seconds
}

// SetMaxLayerEnd records the furthest overlay layer end time.
func (tl *Timeline) SetMaxLayerEnd(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	tl.maxLayerEnd = seconds
}

// Recompute rebuilds the derived interval list as a pure fold over the clip
// list. It is idempotent: calling it twice without a mutation yields the
// same sequence.
func (tl *Timeline) Recompute() {
	intervals := make([]Interval, 0, len(tl.clips))
	cursor := 0.0
	for i, c := range tl.clips {
		d := c.EffectiveDuration()
		intervals = append(intervals, Interval{
			ClipID: c.ID,
			Index:  i,
			Start:  cursor,
			End:    cursor + d,
		})
		cursor += d
	}
	tl.intervals = intervals
}

// Clips returns a copy of the ordered clip list.
func (tl *Timeline) Clips() []Clip {
	out := make([]Clip, len(tl.clips))
	copy(out, tl.clips)
	return out
}

// Clip returns the clip at index and whether it exists.
func (tl *Timeline) Clip(index int) (Clip, bool) {
	if index < 0 || index >= len(tl.clips) {
		return Clip{}, false
	}
	return tl.clips[index], true
}

// Len returns the number of clips on the track.
func (tl *Timeline) Len() int {
	return len(tl.clips)
}

// Intervals returns a copy of the derived interval sequence.
func (tl *Timeline) Intervals() []Interval {
	out := make([]Interval, len(tl.intervals))
	copy(out, tl.intervals)
	return out
}

// MediaEnd returns the end of the media track in seconds.
func (tl *Timeline) MediaEnd() float64 {
	if len(tl.intervals) == 0 {
		return 0
	}
	return tl.intervals[len(tl.intervals)-1].End
}

// Total returns the full composition length:
// max(media track end, narration duration, furthest layer end).
func (tl *Timeline) Total() float64 {
	total := tl.MediaEnd()
	if tl.narrationDuration > total {
		total = tl.narrationDuration
	}
	if tl.maxLayerEnd > total {
		total = tl.maxLayerEnd
	}
	return total
}

// IntervalAt maps a timestamp to the interval containing it. Every t in
// [0, media end] maps to exactly one interval: timestamps inside the track
// resolve half-open, t at or beyond the track end clamps to the last
// interval, and negative t clamps to the first. The boolean is false only
// when the track is empty.
func (tl *Timeline) IntervalAt(t float64) (Interval, bool) {
	if len(tl.intervals) == 0 {
		return Interval{}, false
	}
	if t < 0 {
		t = 0
	}
	last := tl.intervals[len(tl.intervals)-1]
	if t >= last.End {
		return last, true
	}
	for _, iv := range tl.intervals {
		if t >= iv.Start && t < iv.End {
			return iv, true
		}
	}
	// Zero-duration intervals can leave t unmatched by the half-open scan;
	// the first interval reaching past t owns it.
	for _, iv := range tl.intervals {
		if iv.End > t {
			return iv, true
		}
	}
	return last, true
}

// clampTrim forces (start, end) into a valid trim range: ordered, inside
// [0,1], and at least MinTrimGap apart.
func clampTrim(start, end float64) (float64, float64) {
	if start > end {
		start, end = end, start
	}
	if start < 0 {
		start = 0
	}
	if end > 1 {
		end = 1
	}
	if start > 1-MinTrimGap {
		start = 1 - MinTrimGap
	}
	if end-start < MinTrimGap {
		end = start + MinTrimGap
		if end > 1 {
			end = 1
			start = 1 - MinTrimGap
		}
	}
	return start, end
}
