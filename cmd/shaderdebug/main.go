// Shader debug tool - compiles the WGSL programs and renders a short run of
// the software backend to a PNG file for inspection.
//
// Usage: go run ./cmd/shaderdebug -frames 120 -out debug.png -spirv-dir spv
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/gogpu/naga"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/game"
	"github.com/pthm-cable/slime/gpu/soft"
	"github.com/pthm-cable/slime/systems/shaders"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outPath := flag.String("out", "debug.png", "Output PNG path (empty = skip rendering)")
	frames := flag.Uint64("frames", 120, "Frames to simulate before capturing")
	spirvDir := flag.String("spirv-dir", "", "Write compiled SPIR-V here (empty = compile only)")
	flag.Parse()

	if err := compileAll(*spirvDir); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *outPath == "" {
		return
	}
	if err := render(*configPath, *frames, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}
}

func compileAll(dir string) error {
	programs := shaders.All()
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	for _, name := range names {
		spirv, err := naga.Compile(programs[name])
		if err != nil {
			return fmt.Errorf("compile %s: %w", name, err)
		}
		fmt.Printf("%-16s %6d bytes SPIR-V\n", name, len(spirv))
		if dir == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name+".spv"), spirv, 0644); err != nil {
			return err
		}
	}
	return nil
}

func render(configPath string, frames uint64, outPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Telemetry.StatsWindow = 0

	dev := soft.NewDevice(soft.Options{})
	defer dev.Release()
	surface := soft.NewSurface(dev, int(cfg.Derived.ScreenW), int(cfg.Derived.ScreenH), nil)

	g, err := game.New(dev, surface, cfg)
	if err != nil {
		return err
	}
	defer g.Release()

	if err := g.Run(context.Background(), frames); err != nil {
		return err
	}
	img := surface.LastFrame()
	if img == nil {
		return fmt.Errorf("no frame presented after %d frames", frames)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Frame %d rendered to: %s (%dx%d)\n", g.FrameNumber(), outPath, img.Rect.Dx(), img.Rect.Dy())
	return nil
}
