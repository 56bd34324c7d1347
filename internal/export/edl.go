package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/reelforge/reelforge-agent/internal/project"
	"github.com/reelforge/reelforge-agent/internal/timeline"
)

// GenerateEDL renders the composed clip sequence as a CMX3600-style edit
// decision list for handoff to desktop NLEs. Source in/out come from each
// clip's trim window; record in/out come from the derived intervals, so the
// record track is gapless by construction.
func GenerateEDL(tl *timeline.Timeline, clips []*project.MediaClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	byID := make(map[string]*project.MediaClip, len(clips))
	for _, c := range clips {
		byID[c.ID] = c
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, 64))}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, iv := range tl.Intervals() {
		clip, ok := byID[iv.ClipID]
		if !ok {
			continue
		}

		srcInMs := int(math.Round(clip.AssignedDuration * clip.TrimStart * 1000))
		srcOutMs := int(math.Round(clip.AssignedDuration * clip.TrimEnd * 1000))
		recInMs := int(math.Round(iv.Start * 1000))
		recOutMs := int(math.Round(iv.End * 1000))

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				msToTimecode(srcInMs, fps), msToTimecode(srcOutMs, fps),
				msToTimecode(recInMs, fps), msToTimecode(recOutMs, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", SanitizeName(clipDisplayName(clip), 64)),
			fmt.Sprintf("* MEDIA PATH:  %s", clip.Path),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func clipDisplayName(c *project.MediaClip) string {
	path := c.Path
	if idx := strings.LastIndexAny(path, "/\\"); idx >= 0 {
		path = path[idx+1:]
	}
	return path
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
