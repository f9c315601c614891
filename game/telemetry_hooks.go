package game

import (
	"image"
	"log/slog"

	"github.com/pthm-cable/slime/gpu"
	"github.com/pthm-cable/slime/telemetry"
)

// flushTelemetry samples the trail map and flushes perf stats once per
// stats window.
func (g *Game) flushTelemetry() {
	window := uint64(g.cfg.Telemetry.StatsWindow)
	frame := g.state.FrameNumber()
	if window == 0 || frame%window != 0 {
		return
	}

	perfStats := g.perfCollector.Stats()

	img, err := g.readTrail()
	if err != nil {
		slog.Error("failed to read trail map", "frame", frame, "error", err)
	}
	if img != nil {
		stats := telemetry.ComputeFieldStats(frame, img)
		g.lastField = stats

		if g.statsCallback != nil {
			g.statsCallback(stats)
		}
		if g.logStats {
			stats.LogStats()
		}
		g.metrics.ObserveField(stats)
		if err := g.outputManager.WriteField(stats); err != nil {
			slog.Error("failed to write field stats", "error", err)
		}

		g.checkBookmarks(stats, img)
	}

	if g.logStats {
		perfStats.LogStats()
	}
	if err := g.outputManager.WritePerf(perfStats, frame); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
}

func (g *Game) checkBookmarks(stats telemetry.FieldStats, img *image.RGBA) {
	bookmarks := g.bookmarks.Check(stats)
	if len(bookmarks) == 0 {
		return
	}
	for _, b := range bookmarks {
		b.LogBookmark()
	}
	if err := g.outputManager.WriteBookmarks(bookmarks); err != nil {
		slog.Error("failed to write bookmarks", "error", err)
	}

	if g.outputManager == nil || !g.cfg.Telemetry.SnapshotOnBookmark {
		return
	}
	if err := g.outputManager.WriteSnapshot(stats.Frame, img); err != nil {
		slog.Error("failed to save bookmark snapshot", "error", err)
	}
	snap, err := g.agentSnapshot()
	if err != nil {
		slog.Error("failed to read agents", "error", err)
		return
	}
	if snap == nil {
		return
	}
	snap.Bookmark = &bookmarks[0]
	if _, err := g.outputManager.WriteAgents(snap); err != nil {
		slog.Error("failed to save bookmark snapshot", "error", err)
	}
}

// readTrail copies the most recently written trail map to the host. It
// returns nil without error when the device cannot read textures back.
func (g *Game) readTrail() (*image.RGBA, error) {
	r, ok := g.dev.(gpu.TextureReader)
	if !ok {
		return nil, nil
	}
	return r.ReadTexture(g.state.Texture(g.state.WriteIndex()))
}

// agentSnapshot reads the agent buffer back. It returns nil without error
// when the device cannot read buffers back.
func (g *Game) agentSnapshot() (*telemetry.Snapshot, error) {
	if _, ok := g.dev.(gpu.BufferReader); !ok {
		return nil, nil
	}
	agents, err := g.state.ReadAgents(g.dev)
	if err != nil {
		return nil, err
	}
	w, h := g.state.Dimensions()
	return telemetry.NewSnapshot(g.cfg.RandomSeed, w, h, g.state.FrameNumber(), agents), nil
}

// SaveSnapshot writes the latest trail map as a PNG and the agents as JSON
// into the output directory. It does nothing when output is disabled.
func (g *Game) SaveSnapshot() error {
	if g.outputManager == nil {
		return nil
	}
	img, err := g.readTrail()
	if err != nil {
		return err
	}
	if err := g.outputManager.WriteSnapshot(g.state.FrameNumber(), img); err != nil {
		return err
	}
	snap, err := g.agentSnapshot()
	if err != nil {
		return err
	}
	if _, err := g.outputManager.WriteAgents(snap); err != nil {
		return err
	}
	slog.Info("snapshot saved", "dir", g.outputManager.Dir(), "frame", g.state.FrameNumber())
	return nil
}
