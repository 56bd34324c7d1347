package project

import (
	"github.com/reelforge/reelforge-agent/internal/overlay"
	"github.com/reelforge/reelforge-agent/internal/timeline"
)

// ComposeTimeline builds the derived track for a project snapshot. Preview,
// the timeline endpoint, EDL export and the export pipeline all resolve the
// clip sequence through here, so the artifact reproduces what the preview
// showed.
//
// For an unedited project with narration, the narration length is spread
// evenly across the clips. Any explicit edit pins the stored durations and
// trims; narration then only floors the total.
func ComposeTimeline(p *Project, clips []*MediaClip, layers []overlay.Layer) *timeline.Timeline {
	tl := timeline.New()
	if !compositionEdited(p, clips) && p.NarrationDuration > 0 && len(clips) > 0 {
		per := p.NarrationDuration / float64(len(clips))
		for _, c := range clips {
			tl.Add(timeline.Clip{ID: c.ID, Kind: c.Kind, Source: c.Path, AssignedDuration: per, TrimStart: 0, TrimEnd: 1})
		}
	} else {
		for _, c := range clips {
			tl.Add(timeline.Clip{ID: c.ID, Kind: c.Kind, Source: c.Path, AssignedDuration: c.AssignedDuration, TrimStart: c.TrimStart, TrimEnd: c.TrimEnd})
		}
	}
	tl.SetNarrationDuration(p.NarrationDuration)
	tl.SetMaxLayerEnd(overlay.MaxEnd(layers))
	return tl
}

// compositionEdited prefers the stored marker. A non-default trim also
// counts, so rows persisted before the marker existed keep their edited
// track.
func compositionEdited(p *Project, clips []*MediaClip) bool {
	if p.Edited {
		return true
	}
	for _, c := range clips {
		if c.TrimStart != 0 || c.TrimEnd != 1 {
			return true
		}
	}
	return false
}
