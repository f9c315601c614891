package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/game"
	"github.com/pthm-cable/slime/gpu/soft"
	"github.com/pthm-cable/slime/renderer"
	"github.com/pthm-cable/slime/ui"
)

// runner starts a game on the software device with one of the drivers.
type runner struct {
	cfg       *config.Config
	maxFrames uint64
	device    soft.Options
	opts      game.Options
}

func (r runner) done(g *game.Game) bool {
	return r.maxFrames > 0 && g.FrameNumber() >= r.maxFrames
}

// headless renders into an offscreen surface until ctx ends or max frames.
func (r runner) headless(ctx context.Context) error {
	dev := soft.NewDevice(r.device)
	defer dev.Release()
	surface := soft.NewSurface(dev, int(r.cfg.Derived.ScreenW), int(r.cfg.Derived.ScreenH), nil)

	g, err := game.NewWithOptions(dev, surface, r.cfg, r.opts)
	if err != nil {
		return err
	}
	defer g.Release()

	slog.Info("starting headless simulation",
		"seed", r.cfg.RandomSeed,
		"max_frames", r.maxFrames,
		"stats_window", r.cfg.Telemetry.StatsWindow,
	)

	start := time.Now()
	if err := g.Run(ctx, r.maxFrames); err != nil {
		return err
	}
	slog.Info("headless simulation finished",
		"frames", g.FrameNumber(),
		"rendered", g.Rendered(),
		"skipped", g.Skipped(),
		"elapsed", time.Since(start),
	)
	return g.SaveSnapshot()
}

// window runs the raylib driver: the window is the surface, resizes are
// forwarded to the game and the HUD draws over every frame.
func (r runner) window(ctx context.Context) error {
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(r.cfg.Derived.ScreenW, r.cfg.Derived.ScreenH, "Slime")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(r.cfg.Screen.TargetFPS))

	dev := soft.NewDevice(r.device)
	defer dev.Release()

	win := renderer.NewWindow()
	defer win.Unload()
	surface := soft.NewSurface(dev, rl.GetScreenWidth(), rl.GetScreenHeight(), win)

	g, err := game.NewWithOptions(dev, surface, r.cfg, r.opts)
	if err != nil {
		return err
	}
	defer g.Release()

	hud := ui.NewHUD("Slime", r.cfg.NumAgents)
	win.Overlay = func() { hud.Draw(g) }

	for !rl.WindowShouldClose() && ctx.Err() == nil && !r.done(g) {
		hud.HandleInput(g)

		if rl.IsWindowResized() {
			w, h := rl.GetScreenWidth(), rl.GetScreenHeight()
			surface.SetWindowSize(w, h)
			if err := g.Resize(uint32(max(w, 0)), uint32(max(h, 0))); err != nil {
				return err
			}
		}

		if g.Paused() {
			win.Redraw()
			continue
		}
		if err := g.Frame(); err != nil {
			return err
		}
	}
	return nil
}

// terminal runs the tcell driver. Each terminal cell shows two surface rows.
func (r runner) terminal(ctx context.Context) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}
	defer screen.Fini()

	dev := soft.NewDevice(r.device)
	defer dev.Release()

	cols, rows := screen.Size()
	term := renderer.NewTerminal(screen)
	surface := soft.NewSurface(dev, cols, rows*2, term)

	g, err := game.NewWithOptions(dev, surface, r.cfg, r.opts)
	if err != nil {
		return err
	}
	defer g.Release()

	term.StatusLine = func() string {
		return fmt.Sprintf(" frame %d  fps %.0f  [space] pause  [a] agents  [q] quit ", g.FrameNumber(), g.Perf().FPS)
	}

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go pumpEvents(screen, events, quit)

	fps := r.cfg.Screen.TargetFPS
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for !r.done(g) {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				switch {
				case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC:
					return nil
				case ev.Key() == tcell.KeyRune && ev.Rune() == 'q':
					return nil
				case ev.Key() == tcell.KeyRune && ev.Rune() == ' ':
					g.SetPaused(!g.Paused())
				case ev.Key() == tcell.KeyRune && ev.Rune() == 'a':
					g.SetAgentsVisible(!g.AgentsVisible())
				}
			case *tcell.EventResize:
				cols, rows := ev.Size()
				surface.SetWindowSize(cols, rows*2)
				if err := g.Resize(uint32(max(cols, 0)), uint32(max(rows*2, 0))); err != nil {
					return err
				}
				screen.Sync()
			}

		case <-ticker.C:
			if err := g.Frame(); err != nil {
				return err
			}
		}
	}
	return nil
}

// pumpEvents forwards screen events until the screen is finalized or quit is
// closed.
func pumpEvents(screen tcell.Screen, events chan<- tcell.Event, quit <-chan struct{}) {
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case events <- ev:
		case <-quit:
			return
		}
	}
}
