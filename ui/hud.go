// Package ui draws the heads-up display of the raylib driver.
package ui

import (
	"fmt"
	"log/slog"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/slime/telemetry"
)

// Controls is the part of the running simulation the HUD reads and toggles.
type Controls interface {
	FrameNumber() uint64
	Paused() bool
	SetPaused(bool)
	AgentsVisible() bool
	SetAgentsVisible(bool)
	Perf() telemetry.PerfStats
	LastField() telemetry.FieldStats
	SaveSnapshot() error
}

// HUD renders status text and toggle buttons over the trail map.
type HUD struct {
	title  string
	agents int
	hidden bool // whole HUD hidden with H
}

// NewHUD creates a HUD.
func NewHUD(title string, agents int) *HUD {
	return &HUD{title: title, agents: agents}
}

// HandleInput applies keyboard shortcuts. Call once per frame before drawing.
func (h *HUD) HandleInput(c Controls) {
	if rl.IsKeyPressed(rl.KeySpace) {
		c.SetPaused(!c.Paused())
	}
	if rl.IsKeyPressed(rl.KeyA) {
		c.SetAgentsVisible(!c.AgentsVisible())
	}
	if rl.IsKeyPressed(rl.KeyS) {
		h.snapshot(c)
	}
	if rl.IsKeyPressed(rl.KeyH) {
		h.hidden = !h.hidden
	}
	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
}

// Draw renders the HUD. It runs inside the presenter's drawing block.
func (h *HUD) Draw(c Controls) {
	if h.hidden {
		return
	}

	rl.DrawRectangle(0, 0, 330, 150, rl.Fade(rl.Black, 0.6))
	rl.DrawText(h.title, 10, 10, 20, rl.White)

	perf := c.Perf()
	rl.DrawText(
		fmt.Sprintf("Frame: %d | FPS: %.0f | Agents: %d", c.FrameNumber(), perf.FPS, h.agents),
		10, 35, 16, rl.LightGray,
	)
	field := c.LastField()
	rl.DrawText(
		fmt.Sprintf("Trail mean: %.3f | Coverage: %.1f%%", field.MeanIntensity, field.Coverage*100),
		10, 55, 16, rl.LightGray,
	)

	statusText := "Running"
	if c.Paused() {
		statusText = "PAUSED"
	}
	rl.DrawText(statusText, 10, 75, 16, rl.Yellow)

	if gui.Button(rl.Rectangle{X: 10, Y: 100, Width: 100, Height: 30}, toggleText(c.Paused(), "Resume", "Pause")) {
		c.SetPaused(!c.Paused())
	}
	if gui.Button(rl.Rectangle{X: 115, Y: 100, Width: 100, Height: 30}, toggleText(c.AgentsVisible(), "Hide agents", "Show agents")) {
		c.SetAgentsVisible(!c.AgentsVisible())
	}
	if gui.Button(rl.Rectangle{X: 220, Y: 100, Width: 100, Height: 30}, "Snapshot") {
		h.snapshot(c)
	}

	rl.DrawText("[Space] pause  [A] agents  [S] snapshot  [H] hud", 10, int32(rl.GetScreenHeight())-25, 14, rl.Gray)
}

func (h *HUD) snapshot(c Controls) {
	if err := c.SaveSnapshot(); err != nil {
		slog.Error("failed to save snapshot", "error", err)
	}
}

func toggleText(on bool, ifOn, ifOff string) string {
	if on {
		return ifOn
	}
	return ifOff
}
