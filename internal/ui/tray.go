package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/reelforge/reelforge-agent/internal/export"
)

type Tray struct {
	runner *export.Runner
	logger *slog.Logger

	statusItem   *systray.MenuItem
	projectsItem *systray.MenuItem
	pauseItem    *systray.MenuItem

	mu sync.Mutex

	onOpenArtifacts func() error
	onQuit          func()
}

type TrayConfig struct {
	Runner          *export.Runner
	Logger          *slog.Logger
	OnOpenArtifacts func() error
	OnQuit          func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		runner:          cfg.Runner,
		logger:          cfg.Logger,
		onOpenArtifacts: cfg.OnOpenArtifacts,
		onQuit:          cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("ReelForge")
	systray.SetTooltip("ReelForge Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current export status")
	t.statusItem.Disable()

	t.projectsItem = systray.AddMenuItem("Projects: 0", "Known projects")
	t.projectsItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause Exports", "Pause the export queue")

	artifactsItem := systray.AddMenuItem("Open Artifacts Folder...", "Show finished exports")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit ReelForge Agent")

	go func() {
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-artifactsItem.ClickedCh:
				t.handleOpenArtifacts()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause Exports")
		t.statusItem.SetTitle("Status: Idle")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume Exports")
		t.statusItem.SetTitle("Status: Paused")
	}
}

func (t *Tray) handleOpenArtifacts() {
	if t.onOpenArtifacts != nil {
		if err := t.onOpenArtifacts(); err != nil {
			t.logger.Error("failed to open artifacts folder", "error", err)
		}
	}
}

// UpdateStatus shows export progress in the tray. Suppressed while the queue
// is paused so the pause label stays visible.
func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner != nil && t.runner.IsPaused() {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) UpdateProjectsCount(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.projectsItem.SetTitle(fmt.Sprintf("Projects: %d", count))
}

func (t *Tray) Quit() {
	systray.Quit()
}
