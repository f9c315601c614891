// Command slime-webgpu runs the simulation on the GPU in a GLFW window.
package main

import (
	"flag"
	"log/slog"
	"os"
	"runtime"

	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/game"
	"github.com/pthm-cable/slime/gpu/webgpu"
	"github.com/pthm-cable/slime/telemetry"
)

func init() {
	// GLFW and the surface must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml or config.json (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Uint64("seed", 0, "Agent RNG seed (0 = use config)")
	maxFrames := flag.Uint64("max-frames", 0, "Stop after N frames (0 = unlimited)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(*configPath, *logStats, *outputDir, *seed, *maxFrames); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logStats bool, outputDir string, seed, maxFrames uint64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if seed != 0 {
		cfg.RandomSeed = seed
	}

	output, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	defer output.Close()
	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(int(cfg.Derived.ScreenW), int(cfg.Derived.ScreenH), "Slime", nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	dev, surface, err := webgpu.New(wgpuglfw.GetSurfaceDescriptor(window))
	if err != nil {
		return err
	}
	defer dev.Release()
	defer surface.Release()

	surface.SetSizeFunc(func() (uint32, uint32) {
		w, h := window.GetFramebufferSize()
		return uint32(max(w, 0)), uint32(max(h, 0))
	})

	g, err := game.NewWithOptions(dev, surface, cfg, game.Options{
		LogStats: logStats,
		Output:   output,
	})
	if err != nil {
		return err
	}
	defer g.Release()

	var resizeErr error
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if err := g.Resize(uint32(max(width, 0)), uint32(max(height, 0))); err != nil {
			resizeErr = err
		}
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeySpace:
			g.SetPaused(!g.Paused())
		case glfw.KeyA:
			g.SetAgentsVisible(!g.AgentsVisible())
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		if resizeErr != nil {
			return resizeErr
		}
		if maxFrames > 0 && g.FrameNumber() >= maxFrames {
			break
		}
		if g.Paused() {
			glfw.WaitEvents()
			continue
		}
		if err := g.Frame(); err != nil {
			return err
		}
	}
	return nil
}
