// Package overlay schedules freely-positioned overlay layers (text, image)
// against the shared composition clock. Layers carry independent start and
// duration and have no ordering relationship with the clip track; a layer
// may extend past the media track's end.
//
// Interactive trim/move gestures go through an explicit
// begin/update/commit-or-cancel state machine instead of raw pointer
// events, so any input device can drive them.
package overlay

const (
	LayerKindText  = "text"
	LayerKindImage = "image"

	// MinDuration is the shortest a layer can be resized to, in seconds.
	MinDuration = 0.5
)

// Drag modes.
const (
	DragMove        = "move"
	DragResizeStart = "resize_start"
	DragResizeEnd   = "resize_end"
)

// Layer is an overlay rendered above the media track. Content is a reference
// the renderer resolves per kind: text payload for text layers, a media
// source handle for image layers. Style selects the draw treatment (frame,
// logo corner, credit, headline).
type Layer struct {
	ID       string
	Kind     string
	Content  string
	Style    string
	Start    float64
	Duration float64
}

// End returns the layer's end time.
func (l Layer) End() float64 {
	return l.Start + l.Duration
}

// IsActive reports whether the layer is visible at t. The span is half-open:
// [Start, Start+Duration).
func IsActive(l Layer, t float64) bool {
	return t >= l.Start && t < l.End()
}

// MaxEnd returns the furthest end time across layers, 0 for none.
func MaxEnd(layers []Layer) float64 {
	max := 0.0
	for _, l := range layers {
		if l.End() > max {
			max = l.End()
		}
	}
	return max
}

// Clamp forces a layer into a valid range: non-negative start and a duration
// of at least MinDuration. Invalid input never errors.
func Clamp(l Layer) Layer {
	if l.Start < 0 {
		l.Start = 0
	}
	if l.Duration < MinDuration {
		l.Duration = MinDuration
	}
	return l
}

// Drag is an in-flight gesture on a single layer. The original layer is kept
// so CancelDrag can restore it; Update applies the accumulated delta from
// the gesture origin, clamped on every step.
type Drag struct {
	mode     string
	original Layer
	current  Layer
	active   bool
}

// Scheduler owns the layer list and at most one in-flight drag gesture.
type Scheduler struct {
	layers []Layer
	drag   Drag
}

// NewScheduler returns a scheduler over the given layers.
func NewScheduler(layers []Layer) *Scheduler {
	s := &Scheduler{layers: make([]Layer, len(layers))}
	for i, l := range layers {
		s.layers[i] = Clamp(l)
	}
	return s
}

// Layers returns a copy of the current layer list, including any in-flight
// drag preview state.
func (s *Scheduler) Layers() []Layer {
	out := make([]Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Layer returns the layer with the given ID.
func (s *Scheduler) Layer(id string) (Layer, bool) {
	for _, l := range s.layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Add appends a layer, clamped into a valid range.
func (s *Scheduler) Add(l Layer) {
	s.layers = append(s.layers, Clamp(l))
}

// Remove deletes the layer with the given ID. Unknown IDs are ignored.
func (s *Scheduler) Remove(id string) {
	for i, l := range s.layers {
		if l.ID == id {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			return
		}
	}
}

// ActiveAt returns the layers visible at t, in list order.
func (s *Scheduler) ActiveAt(t float64) []Layer {
	var out []Layer
	for _, l := range s.layers {
		if IsActive(l, t) {
			out = append(out, l)
		}
	}
	return out
}

// MaxEnd returns the furthest end time across all layers.
func (s *Scheduler) MaxEnd() float64 {
	return MaxEnd(s.layers)
}

// BeginDrag starts a gesture on the layer with the given ID. Starting a new
// gesture while one is in flight cancels the previous one. Returns false for
// an unknown layer or mode.
func (s *Scheduler) BeginDrag(id, mode string) bool {
	switch mode {
	case DragMove, DragResizeStart, DragResizeEnd:
	default:
		return false
	}
	if s.drag.active {
		s.CancelDrag()
	}
	for _, l := range s.layers {
		if l.ID == id {
			s.drag = Drag{mode: mode, original: l, current: l, active: true}
			return true
		}
	}
	return false
}

// UpdateDrag applies the accumulated delta in seconds from the gesture
// origin and returns the preview layer. Move shifts start only; resize moves
// the respective edge. Every update re-clamps from the original, so partial
// gestures never accumulate clamping artifacts.
func (s *Scheduler) UpdateDrag(deltaSeconds float64) (Layer, bool) {
	if !s.drag.active {
		return Layer{}, false
	}

	l := s.drag.original
	switch s.drag.mode {
	case DragMove:
		l.Start += deltaSeconds
		if l.Start < 0 {
			l.Start = 0
		}
	case DragResizeStart:
		// Dragging the left edge trades start for duration; the right
		// edge stays put until a clamp engages.
		end := l.End()
		l.Start += deltaSeconds
		if l.Start < 0 {
			l.Start = 0
		}
		if l.Start > end-MinDuration {
			l.Start = end - MinDuration
			if l.Start < 0 {
				l.Start = 0
			}
		}
		l.Duration = end - l.Start
	case DragResizeEnd:
		l.Duration += deltaSeconds
		if l.Duration < MinDuration {
			l.Duration = MinDuration
		}
	}

	s.drag.current = Clamp(l)
	s.applyDragPreview()
	return s.drag.current, true
}

// CommitDrag finalises the in-flight gesture, keeping the previewed state.
func (s *Scheduler) CommitDrag() (Layer, bool) {
	if !s.drag.active {
		return Layer{}, false
	}
	committed := s.drag.current
	s.drag = Drag{}
	return committed, true
}

// CancelDrag aborts the in-flight gesture and restores the layer to its
// state at BeginDrag.
func (s *Scheduler) CancelDrag() {
	if !s.drag.active {
		return
	}
	s.drag.current = s.drag.original
	s.applyDragPreview()
	s.drag = Drag{}
}

// Dragging reports whether a gesture is in flight.
func (s *Scheduler) Dragging() bool {
	return s.drag.active
}

func (s *Scheduler) applyDragPreview() {
	for i, l := range s.layers {
		if l.ID == s.drag.current.ID {
			s.layers[i] = s.drag.current
			return
		}
	}
}
