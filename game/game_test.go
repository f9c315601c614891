package game

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/gpu"
	"github.com/pthm-cable/slime/gpu/soft"
	"github.com/pthm-cable/slime/systems"
	"github.com/pthm-cable/slime/telemetry"
)

type fixture struct {
	dev     *soft.Device
	surface *soft.Surface
	game    *Game
}

func newFixture(t *testing.T, cfg *config.Config, opts Options) *fixture {
	t.Helper()
	dev := soft.NewDevice(soft.Options{Workers: 2, Trace: true})
	surface := soft.NewSurface(dev, cfg.Width, cfg.Height, nil)
	g, err := NewWithOptions(dev, surface, cfg, opts)
	if err != nil {
		dev.Release()
		t.Fatalf("NewWithOptions: %v", err)
	}
	t.Cleanup(func() {
		g.Release()
		dev.Release()
	})
	return &fixture{dev: dev, surface: surface, game: g}
}

func smallConfig(w, h, agents int) *config.Config {
	cfg := config.Defaults()
	cfg.Width, cfg.Height, cfg.NumAgents = w, h, agents
	cfg.RandomSeed = 1
	cfg.Telemetry.StatsWindow = 0
	return cfg
}

// degenerate returns a config under which nothing changes: agents never
// move and the world pass copies the trail map unchanged.
func degenerate(w, h, agents int) *config.Config {
	cfg := smallConfig(w, h, agents)
	cfg.Agent.Speed = 0
	cfg.World.DecayRate = 0
	cfg.World.DiffuseRadius = 0
	return cfg
}

func readTrails(t *testing.T, f *fixture) [2]*image.RGBA {
	t.Helper()
	var out [2]*image.RGBA
	for i := range out {
		img, err := f.dev.ReadTexture(f.game.State().Texture(i))
		if err != nil {
			t.Fatalf("ReadTexture(%d): %v", i, err)
		}
		out[i] = img
	}
	return out
}

func TestRenderFrameSingleAgent(t *testing.T) {
	tests := []struct {
		name      string
		drawScale float64
		wantDraws int
	}{
		{"agents drawn", 0.05, 2},
		{"agents hidden", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig(4, 4, 1)
			cfg.Agent.DrawScale = tt.drawScale
			f := newFixture(t, cfg, Options{})

			before, err := f.game.State().ReadAgents(f.dev)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.game.RenderFrame(); err != nil {
				t.Fatalf("RenderFrame: %v", err)
			}

			s := f.game.State()
			if s.FrameNumber() != 1 || s.Parity() != 1 {
				t.Errorf("frame %d parity %d, want 1 and 1", s.FrameNumber(), s.Parity())
			}
			if f.surface.Presented() != 1 {
				t.Errorf("presented %d frames, want 1", f.surface.Presented())
			}

			trace := f.dev.Trace()
			var dispatches, clears, draws []soft.TraceEvent
			for _, ev := range trace {
				switch ev.Kind {
				case soft.TraceDispatch:
					dispatches = append(dispatches, ev)
				case soft.TraceClear:
					clears = append(clears, ev)
				case soft.TraceDraw:
					draws = append(draws, ev)
				}
			}
			if len(dispatches) != 2 || len(clears) != 1 || len(draws) != tt.wantDraws {
				t.Fatalf("trace = %+v", trace)
			}
			if trace[0].Kind != soft.TraceDispatch || trace[1].Kind != soft.TraceDispatch || trace[2].Kind != soft.TraceClear {
				t.Errorf("compute must precede the cleared render pass: %+v", trace)
			}
			if dispatches[0].Workgroups != [3]uint32{1, 1, 1} || dispatches[1].Workgroups != [3]uint32{1, 1, 1} {
				t.Errorf("workgroups = %v, %v", dispatches[0].Workgroups, dispatches[1].Workgroups)
			}
			if draws[0].VertexCount != 3 || draws[0].InstanceCount != 1 {
				t.Errorf("world draw = %+v", draws[0])
			}
			if tt.wantDraws == 2 && (draws[1].VertexCount != 4 || draws[1].InstanceCount != 1) {
				t.Errorf("agent draw = %+v", draws[1])
			}

			// parity 1 reads trail 1 and writes trail 0
			after, err := s.ReadAgents(f.dev)
			if err != nil {
				t.Fatal(err)
			}
			x, y := systems.TexelOf(after[0].Position, 4, 4)
			trails := readTrails(t, f)
			if got := trails[0].RGBAAt(x, y); got.R != 255 || got.A != 255 {
				t.Errorf("deposit at (%d,%d) = %v", x, y, got)
			}
			if before[0] == after[0] && cfg.Agent.Speed != 0 {
				t.Error("agent did not move")
			}
		})
	}
}

func TestZeroAgents(t *testing.T) {
	cfg := smallConfig(8, 8, 0)
	cfg.Agent.DrawScale = 0.05
	f := newFixture(t, cfg, Options{})

	if err := f.game.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	var draws []soft.TraceEvent
	worldDispatched := false
	for _, ev := range f.dev.Trace() {
		switch ev.Kind {
		case soft.TraceDispatch:
			switch ev.Pipeline {
			case "Simulate World Pipeline":
				worldDispatched = true
				if ev.Workgroups != [3]uint32{1, 1, 1} {
					t.Errorf("world dispatch = %v, want [1 1 1]", ev.Workgroups)
				}
			case "Simulate Agents Pipeline":
				if ev.Workgroups != [3]uint32{0, 1, 1} {
					t.Errorf("agent dispatch = %v, want [0 1 1]", ev.Workgroups)
				}
			}
		case soft.TraceDraw:
			draws = append(draws, ev)
		}
	}
	if !worldDispatched {
		t.Error("world pass did not run")
	}
	if len(draws) != 2 || draws[1].InstanceCount != 0 || draws[1].Fragments != 0 {
		t.Errorf("draws = %+v", draws)
	}
}

func TestDegenerateRunKeepsInitialState(t *testing.T) {
	f := newFixture(t, degenerate(16, 12, 20), Options{})

	initialAgents, err := f.game.State().ReadAgents(f.dev)
	if err != nil {
		t.Fatal(err)
	}
	initialTrails := readTrails(t, f)

	for i := 0; i < 7; i++ {
		if err := f.game.RenderFrame(); err != nil {
			t.Fatalf("frame %d: %v", i+1, err)
		}
		trails := readTrails(t, f)
		for j := range trails {
			if !bytes.Equal(trails[j].Pix, initialTrails[j].Pix) {
				t.Fatalf("frame %d: trail %d differs from its initial state", f.game.FrameNumber(), j)
			}
		}
	}

	agents, err := f.game.State().ReadAgents(f.dev)
	if err != nil {
		t.Fatal(err)
	}
	for i := range agents {
		if agents[i].Position != initialAgents[i].Position {
			t.Errorf("agent %d moved from %v to %v", i, initialAgents[i].Position, agents[i].Position)
		}
	}
}

func TestDegenerateRunWithoutAgentsStaysEmpty(t *testing.T) {
	f := newFixture(t, degenerate(8, 8, 0), Options{})
	for i := 0; i < 4; i++ {
		if err := f.game.RenderFrame(); err != nil {
			t.Fatalf("frame %d: %v", i+1, err)
		}
	}
	empty := make([]byte, 8*8*4)
	for i, img := range readTrails(t, f) {
		if !bytes.Equal(img.Pix, empty) {
			t.Errorf("trail %d is not empty", i)
		}
	}
}

func TestFrameErrorPolicy(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantSkipped uint64
		fatal       bool
	}{
		{"outdated", gpu.ErrSurfaceOutdated, 1, false},
		{"lost", fmt.Errorf("wrapped: %w", gpu.ErrSurfaceLost), 1, false},
		{"timeout", gpu.ErrSurfaceTimeout, 1, false},
		{"out of memory", gpu.ErrOutOfMemory, 0, true},
		{"unknown", errors.New("device exploded"), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := telemetry.NewMetrics()
			f := newFixture(t, smallConfig(4, 4, 3), Options{Metrics: metrics})

			f.surface.InjectError(tt.err)
			err := f.game.Frame()
			if tt.fatal {
				if !errors.Is(err, tt.err) {
					t.Fatalf("Frame() = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Frame() = %v, want nil", err)
			}
			if f.game.Skipped() != tt.wantSkipped || f.game.Rendered() != 0 {
				t.Errorf("skipped %d rendered %d", f.game.Skipped(), f.game.Rendered())
			}
			// the counter still advanced, nothing was recorded
			if f.game.FrameNumber() != 1 {
				t.Errorf("FrameNumber = %d, want 1", f.game.FrameNumber())
			}
			if len(f.dev.Trace()) != 0 || f.surface.Presented() != 0 {
				t.Errorf("skipped frame executed %d commands", len(f.dev.Trace()))
			}

			if err := f.game.Frame(); err != nil {
				t.Fatalf("next Frame() = %v", err)
			}
			if f.surface.Presented() != 1 {
				t.Errorf("presented %d, want 1", f.surface.Presented())
			}
		})
	}
}

func TestFrameReconfiguresToWindowSize(t *testing.T) {
	f := newFixture(t, smallConfig(4, 4, 1), Options{})

	f.surface.SetWindowSize(10, 6)
	if err := f.game.Frame(); err != nil {
		t.Fatalf("Frame() = %v", err)
	}
	if got := f.game.SurfaceConfig(); got.Width != 10 || got.Height != 6 {
		t.Errorf("surface configured %dx%d, want 10x6", got.Width, got.Height)
	}
	if err := f.game.Frame(); err != nil {
		t.Fatalf("Frame() = %v", err)
	}
	if last := f.surface.LastFrame(); last.Rect.Dx() != 10 || last.Rect.Dy() != 6 {
		t.Errorf("last frame is %v", last.Rect)
	}
}

func TestResize(t *testing.T) {
	f := newFixture(t, smallConfig(4, 4, 1), Options{})

	if err := f.game.Resize(0, 20); err != nil {
		t.Fatalf("Resize(0, 20) = %v", err)
	}
	if got := f.game.SurfaceConfig(); got.Width != 4 || got.Height != 4 {
		t.Errorf("zero resize changed surface to %dx%d", got.Width, got.Height)
	}
	if got := f.game.SurfaceConfig().PresentMode; got != gpu.PresentModeFifo {
		t.Errorf("present mode = %v, want fifo", got)
	}

	f.surface.SetWindowSize(8, 2)
	if err := f.game.Resize(8, 2); err != nil {
		t.Fatalf("Resize(8, 2) = %v", err)
	}
	if err := f.game.RenderFrame(); err != nil {
		t.Fatalf("RenderFrame after resize: %v", err)
	}
	// trail maps keep their size
	if w, h := f.game.State().Dimensions(); w != 4 || h != 4 {
		t.Errorf("trail map resized to %dx%d", w, h)
	}
}

func TestRunStopsAtMaxFrames(t *testing.T) {
	var samples []telemetry.FieldStats
	cfg := smallConfig(8, 8, 10)
	cfg.Telemetry.StatsWindow = 2
	f := newFixture(t, cfg, Options{
		StatsCallback: func(s telemetry.FieldStats) { samples = append(samples, s) },
	})

	if err := f.game.Run(context.Background(), 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.game.FrameNumber() != 5 || f.surface.Presented() != 5 {
		t.Errorf("frame %d, presented %d", f.game.FrameNumber(), f.surface.Presented())
	}
	if len(samples) != 2 || samples[0].Frame != 2 || samples[1].Frame != 4 {
		t.Errorf("samples = %+v", samples)
	}
	if samples[1].TotalTrail <= 0 {
		t.Error("sampled trail map is empty")
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, smallConfig(4, 4, 1), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.game.Run(ctx, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.game.FrameNumber() != 0 {
		t.Errorf("cancelled run rendered %d frames", f.game.FrameNumber())
	}
}

func TestRunWaitsWhilePaused(t *testing.T) {
	f := newFixture(t, smallConfig(4, 4, 1), Options{})
	f.game.SetPaused(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := f.game.Run(ctx, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.game.FrameNumber() != 0 || f.surface.Presented() != 0 {
		t.Errorf("paused run began %d frames", f.game.FrameNumber())
	}

	// Resuming from another goroutine lets the loop continue.
	go func() {
		time.Sleep(30 * time.Millisecond)
		f.game.SetPaused(false)
	}()
	if err := f.game.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.game.FrameNumber() != 3 {
		t.Errorf("frame = %d after resume, want 3", f.game.FrameNumber())
	}
}

func TestRunStopsOnFatalError(t *testing.T) {
	f := newFixture(t, smallConfig(4, 4, 1), Options{})
	f.surface.InjectError(gpu.ErrSurfaceTimeout)
	f.surface.InjectError(gpu.ErrOutOfMemory)

	err := f.game.Run(context.Background(), 100)
	if !errors.Is(err, gpu.ErrOutOfMemory) {
		t.Fatalf("Run() = %v, want out of memory", err)
	}
	if f.game.FrameNumber() != 2 {
		t.Errorf("FrameNumber = %d, want 2", f.game.FrameNumber())
	}
}

func TestPauseAndAgentToggle(t *testing.T) {
	cfg := smallConfig(4, 4, 1)
	cfg.Agent.DrawScale = 0.1
	f := newFixture(t, cfg, Options{})

	f.game.SetPaused(true)
	if err := f.game.Frame(); err != nil {
		t.Fatal(err)
	}
	if f.game.FrameNumber() != 0 {
		t.Error("paused game advanced")
	}
	f.game.SetPaused(false)

	if !f.game.AgentsVisible() {
		t.Fatal("agents hidden by default")
	}
	f.game.SetAgentsVisible(false)
	if err := f.game.Frame(); err != nil {
		t.Fatal(err)
	}
	for _, ev := range f.dev.Trace() {
		if ev.Kind == soft.TraceDraw && ev.Pipeline == "Draw Agents Pipeline" {
			t.Error("hidden agents were drawn")
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dev := soft.NewDevice(soft.Options{})
	defer dev.Release()
	cfg := smallConfig(0, 4, 1)
	if _, err := New(dev, soft.NewSurface(dev, 4, 4, nil), cfg); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New() = %v, want ErrInvalid", err)
	}
}

func TestSaveSnapshot(t *testing.T) {
	dir := t.TempDir()
	out, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	f := newFixture(t, smallConfig(4, 4, 2), Options{Output: out})
	if err := f.game.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if err := f.game.SaveSnapshot(); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	for _, name := range []string{"trail_00000001.png", "agents_00000001.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	snap, err := telemetry.LoadSnapshot(filepath.Join(dir, "agents_00000001.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Agents) != 2 || snap.Frame != 1 || snap.Width != 4 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestBookmarkWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	out, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Moving agents deposit every frame, so at least one of the four texels
	// is lit and coverage crosses the network threshold on the first sample.
	cfg := smallConfig(2, 2, 4)
	cfg.Telemetry.StatsWindow = 1
	cfg.Telemetry.SnapshotOnBookmark = true
	f := newFixture(t, cfg, Options{Output: out})

	if err := f.game.Frame(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "bookmarks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("network_formed")) {
		t.Errorf("bookmarks.csv = %q", data)
	}
	snap, err := telemetry.LoadSnapshot(filepath.Join(dir, "agents_00000001_network_formed.json"))
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap.Bookmark == nil || snap.Bookmark.Type != telemetry.BookmarkNetworkFormed || len(snap.Agents) != 4 {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, err := os.Stat(filepath.Join(dir, "trail_00000001.png")); err != nil {
		t.Error(err)
	}
}
