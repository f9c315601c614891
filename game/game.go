// Package game runs the frame loop: it owns the simulation state and the
// four passes, records one command buffer per frame and applies the
// surface error policy.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/gpu"
	"github.com/pthm-cable/slime/pass"
	"github.com/pthm-cable/slime/sim"
	"github.com/pthm-cable/slime/systems"
	"github.com/pthm-cable/slime/telemetry"
)

// Options configures the optional parts of a Game.
type Options struct {
	// Programs overrides the kernel strategies run by host providers.
	Programs pass.Programs
	// LogStats logs perf and field statistics every stats window.
	LogStats bool
	// Output receives CSV telemetry; nil disables it.
	Output *telemetry.OutputManager
	// Metrics receives Prometheus observations; nil disables them.
	Metrics *telemetry.Metrics
	// StatsCallback, if set, is called with every field sample.
	StatsCallback func(telemetry.FieldStats)
}

// Game holds everything one running simulation needs.
type Game struct {
	dev     gpu.Device
	surface gpu.Surface
	cfg     *config.Config

	state      *sim.State
	world      *pass.SimulateWorld
	agents     *pass.SimulateAgents
	drawWorld  *pass.DrawWorld
	drawAgents *pass.DrawAgents

	surfaceCfg gpu.SurfaceConfiguration

	// State
	paused     atomic.Bool
	hideAgents bool
	rendered   uint64
	skipped    uint64

	// Telemetry
	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	metrics       *telemetry.Metrics
	logStats      bool
	statsCallback func(telemetry.FieldStats)
	lastField     telemetry.FieldStats
	bookmarks     *telemetry.BookmarkDetector
}

// New creates a game with default options.
func New(dev gpu.Device, surface gpu.Surface, cfg *config.Config) (*Game, error) {
	return NewWithOptions(dev, surface, cfg, Options{})
}

// NewWithOptions configures the surface, allocates the simulation state and
// builds the passes.
func NewWithOptions(dev gpu.Device, surface gpu.Surface, cfg *config.Config, opts Options) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}

	g := &Game{
		dev:           dev,
		surface:       surface,
		cfg:           cfg,
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		outputManager: opts.Output,
		metrics:       opts.Metrics,
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
		bookmarks:     telemetry.NewBookmarkDetector(cfg.Telemetry.BookmarkHistory),
	}

	w, h := uint32(cfg.Derived.ScreenW), uint32(cfg.Derived.ScreenH)
	if sz, ok := surface.(gpu.SurfaceSizer); ok {
		if sw, sh := sz.CurrentSize(); sw > 0 && sh > 0 {
			w, h = sw, sh
		}
	}
	g.surfaceCfg = gpu.SurfaceConfiguration{
		Width:       w,
		Height:      h,
		Format:      surface.Format(),
		PresentMode: gpu.PresentModeFifo,
	}
	if err := surface.Configure(g.surfaceCfg); err != nil {
		return nil, fmt.Errorf("game: configure surface: %w", err)
	}

	var err error
	g.state, err = sim.New(dev, cfg)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}

	progs := opts.Programs
	if g.world, err = pass.NewSimulateWorld(dev, g.state, systems.NewWorldParams(cfg.World), progs); err != nil {
		g.Release()
		return nil, fmt.Errorf("game: %w", err)
	}
	if g.agents, err = pass.NewSimulateAgents(dev, g.state, systems.NewAgentParams(cfg.Agent), progs); err != nil {
		g.Release()
		return nil, fmt.Errorf("game: %w", err)
	}
	if g.drawWorld, err = pass.NewDrawWorld(dev, g.state, g.surfaceCfg.Format, progs); err != nil {
		g.Release()
		return nil, fmt.Errorf("game: %w", err)
	}
	if g.drawAgents, err = pass.NewDrawAgents(dev, g.state, systems.NewDrawParams(cfg.Agent), g.surfaceCfg.Format, progs); err != nil {
		g.Release()
		return nil, fmt.Errorf("game: %w", err)
	}

	g.metrics.SetAgents(g.state.NumAgents())

	slog.Info("simulation ready",
		"trail_width", cfg.Width,
		"trail_height", cfg.Height,
		"agents", cfg.NumAgents,
		"seed", cfg.RandomSeed,
		"surface_width", w,
		"surface_height", h,
		"format", g.surfaceCfg.Format.String(),
	)
	return g, nil
}

// Resize reconfigures the surface for a new window size. Zero sizes, as
// reported while a window is minimized, are ignored.
func (g *Game) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	g.surfaceCfg.Width, g.surfaceCfg.Height = width, height
	if err := g.surface.Configure(g.surfaceCfg); err != nil {
		return fmt.Errorf("game: resize to %dx%d: %w", width, height, err)
	}
	return nil
}

// RenderFrame advances the simulation by one frame and presents it. It
// returns the acquisition error, untouched, if no surface texture was
// available; nothing is recorded in that case.
func (g *Game) RenderFrame() error {
	g.perfCollector.StartFrame()
	defer g.perfCollector.EndFrame()

	g.perfCollector.StartPhase(telemetry.PhaseUpdate)
	g.state.Update()

	g.perfCollector.StartPhase(telemetry.PhaseAcquire)
	tex, err := g.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("frame %d: acquire: %w", g.state.FrameNumber(), err)
	}
	defer tex.Release()

	view, err := tex.CreateView()
	if err != nil {
		return fmt.Errorf("frame %d: surface view: %w", g.state.FrameNumber(), err)
	}
	defer view.Release()

	enc, err := g.dev.CreateCommandEncoder("Frame Encoder")
	if err != nil {
		return fmt.Errorf("frame %d: %w", g.state.FrameNumber(), err)
	}
	defer enc.Release()

	g.perfCollector.StartPhase(telemetry.PhaseRecordCompute)
	cp := enc.BeginComputePass("Simulate")
	g.world.Record(cp, g.state)
	if err := g.agents.Record(cp, g.state); err != nil {
		cp.End()
		return fmt.Errorf("frame %d: %w", g.state.FrameNumber(), err)
	}
	if err := cp.End(); err != nil {
		return fmt.Errorf("frame %d: compute pass: %w", g.state.FrameNumber(), err)
	}

	g.perfCollector.StartPhase(telemetry.PhaseRecordRender)
	rp := enc.BeginRenderPass(&gpu.RenderPassDescriptor{
		Label: "Draw",
		ColorAttachment: gpu.RenderPassColorAttachment{
			View:       view,
			LoadOp:     gpu.LoadOpClear,
			ClearValue: gpu.Black,
		},
	})
	g.drawWorld.Record(rp, g.state)
	if !g.hideAgents {
		g.drawAgents.Record(rp, g.state)
	}
	if err := rp.End(); err != nil {
		return fmt.Errorf("frame %d: render pass: %w", g.state.FrameNumber(), err)
	}

	cmd, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("frame %d: finish: %w", g.state.FrameNumber(), err)
	}
	defer cmd.Release()

	g.perfCollector.StartPhase(telemetry.PhaseSubmit)
	if err := g.dev.Queue().Submit(cmd); err != nil {
		return fmt.Errorf("frame %d: submit: %w", g.state.FrameNumber(), err)
	}

	g.perfCollector.StartPhase(telemetry.PhasePresent)
	if err := g.surface.Present(); err != nil {
		return fmt.Errorf("frame %d: present: %w", g.state.FrameNumber(), err)
	}
	g.perfCollector.RecordPresent()
	return nil
}

// Frame renders one frame and applies the error policy: a lost or
// outdated surface is reconfigured and a timed out acquisition is skipped,
// both without error. Running out of memory, and anything else, is fatal.
// A paused game renders nothing.
func (g *Game) Frame() error {
	if g.paused.Load() {
		return nil
	}

	start := time.Now()
	err := g.RenderFrame()
	switch {
	case err == nil:
		g.rendered++
		g.metrics.ObserveFrame(g.state.FrameNumber(), time.Since(start).Seconds())
		g.flushTelemetry()
		return nil

	case errors.Is(err, gpu.ErrOutOfMemory):
		slog.Error("out of memory", "frame", g.state.FrameNumber(), "error", err)
		return err

	case gpu.IsTransient(err):
		g.skipped++
		g.metrics.ObserveSkip(g.state.FrameNumber(), telemetry.SkipReconfigured)
		slog.Info("reconfiguring surface", "frame", g.state.FrameNumber(), "error", err)
		return g.reconfigure()

	case errors.Is(err, gpu.ErrSurfaceTimeout):
		g.skipped++
		g.metrics.ObserveSkip(g.state.FrameNumber(), telemetry.SkipTimeout)
		slog.Warn("surface texture timed out", "frame", g.state.FrameNumber())
		return nil

	default:
		return err
	}
}

// reconfigure restores the surface after it was lost or outdated, at the
// window's current size when the surface can report it.
func (g *Game) reconfigure() error {
	if sz, ok := g.surface.(gpu.SurfaceSizer); ok {
		w, h := sz.CurrentSize()
		if w == 0 || h == 0 {
			return nil
		}
		g.surfaceCfg.Width, g.surfaceCfg.Height = w, h
	}
	if err := g.surface.Configure(g.surfaceCfg); err != nil {
		return fmt.Errorf("game: reconfigure surface: %w", err)
	}
	return nil
}

// pausePoll is how often a paused Run checks for resume.
const pausePoll = 20 * time.Millisecond

// Run calls Frame until ctx is cancelled, maxFrames frames have begun
// (0 = unlimited) or a frame fails. While paused it sleeps instead of
// rendering.
func (g *Game) Run(ctx context.Context, maxFrames uint64) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if maxFrames > 0 && g.state.FrameNumber() >= maxFrames {
			slog.Info("max frames reached", "frame", g.state.FrameNumber())
			return nil
		}
		if g.paused.Load() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pausePoll):
			}
			continue
		}
		if err := g.Frame(); err != nil {
			return err
		}
	}
}

// State returns the simulation state.
func (g *Game) State() *sim.State { return g.state }

// FrameNumber returns the number of frames begun, including skipped ones.
func (g *Game) FrameNumber() uint64 { return g.state.FrameNumber() }

// Rendered returns the number of frames presented.
func (g *Game) Rendered() uint64 { return g.rendered }

// Skipped returns the number of frames skipped for want of a surface texture.
func (g *Game) Skipped() uint64 { return g.skipped }

// SurfaceConfig returns the current surface configuration.
func (g *Game) SurfaceConfig() gpu.SurfaceConfiguration { return g.surfaceCfg }

// Paused reports whether the frame loop is paused.
func (g *Game) Paused() bool { return g.paused.Load() }

// SetPaused pauses or resumes the frame loop. It is safe to call while Run
// is looping on another goroutine.
func (g *Game) SetPaused(p bool) { g.paused.Store(p) }

// AgentsVisible reports whether agent glyphs are drawn. Glyphs are never
// drawn when the configured draw scale is zero.
func (g *Game) AgentsVisible() bool { return !g.hideAgents && g.drawAgents.Enabled() }

// SetAgentsVisible shows or hides agent glyphs.
func (g *Game) SetAgentsVisible(v bool) { g.hideAgents = !v }

// Perf returns the current perf statistics.
func (g *Game) Perf() telemetry.PerfStats { return g.perfCollector.Stats() }

// LastField returns the most recent trail map sample.
func (g *Game) LastField() telemetry.FieldStats { return g.lastField }

// Release frees the passes and the simulation state.
func (g *Game) Release() {
	if g.drawAgents != nil {
		g.drawAgents.Release()
	}
	if g.drawWorld != nil {
		g.drawWorld.Release()
	}
	if g.agents != nil {
		g.agents.Release()
	}
	if g.world != nil {
		g.world.Release()
	}
	if g.state != nil {
		g.state.Release()
	}
}
