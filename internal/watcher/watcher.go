// Package watcher polls the media files referenced by projects and tracks
// which ones have gone missing, so previews and exports can fail with a
// useful message instead of a decode error.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/reelforge/reelforge-agent/internal/logging"
	"github.com/reelforge/reelforge-agent/internal/project"
)

const defaultPollInterval = 15 * time.Second

// Watcher periodically stats every clip and narration path known to the
// repository. Paths that fail to stat are reported missing until they
// reappear.
type Watcher struct {
	repo         project.Repository
	logger       *slog.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	missing map[string]bool

	onChange func(path string, present bool)
}

func New(repo project.Repository, logger *slog.Logger) *Watcher {
	return &Watcher{
		repo:         repo,
		logger:       logger,
		pollInterval: defaultPollInterval,
		missing:      make(map[string]bool),
	}
}

// OnChange registers a callback fired when a path's presence flips. The
// callback runs on the polling goroutine.
func (w *Watcher) OnChange(callback func(path string, present bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = callback
}

// Start polls until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("media watcher started", "interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("media watcher stopping")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Missing returns the sorted list of referenced paths that currently fail
// to stat.
func (w *Watcher) Missing() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.missing))
	for p := range w.missing {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// IsMissing reports whether a specific path failed its last stat.
func (w *Watcher) IsMissing(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.missing[path]
}

func (w *Watcher) poll(ctx context.Context) {
	paths, err := w.referencedPaths(ctx)
	if err != nil {
		w.logger.Error("media watcher poll failed", "error", err)
		return
	}

	for path := range paths {
		_, statErr := os.Stat(path)
		present := statErr == nil

		w.mu.Lock()
		wasMissing := w.missing[path]
		if present {
			delete(w.missing, path)
		} else {
			w.missing[path] = true
		}
		callback := w.onChange
		w.mu.Unlock()

		if wasMissing == present {
			if present {
				w.logger.Info("media file reappeared", "path", logging.SanitizePath(path))
			} else {
				w.logger.Warn("media file missing", "path", logging.SanitizePath(path))
			}
			if callback != nil {
				callback(path, present)
			}
		}
	}

	// Forget paths no project references anymore.
	w.mu.Lock()
	for path := range w.missing {
		if !paths[path] {
			delete(w.missing, path)
		}
	}
	w.mu.Unlock()
}

func (w *Watcher) referencedPaths(ctx context.Context) (map[string]bool, error) {
	projects, err := w.repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]bool)
	for _, p := range projects {
		if p.NarrationPath != "" {
			paths[p.NarrationPath] = true
		}
		clips, err := w.repo.ListClips(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range clips {
			paths[c.Path] = true
		}
	}
	return paths, nil
}
