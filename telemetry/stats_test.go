package telemetry

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pthm-cable/slime/config"
)

func TestComputeFieldStats(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	// one full-intensity texel, one at a third, rest empty
	img.SetRGBA(0, 0, color.RGBA{255, 255, 255, 255})
	img.SetRGBA(1, 1, color.RGBA{255, 0, 0, 255})

	s := ComputeFieldStats(9, img)

	if s.Frame != 9 {
		t.Errorf("Frame = %d", s.Frame)
	}
	wantMean := (1 + 1.0/3) / 8
	if math.Abs(s.MeanIntensity-wantMean) > 1e-9 {
		t.Errorf("MeanIntensity = %v, want %v", s.MeanIntensity, wantMean)
	}
	if s.MaxIntensity != 1 {
		t.Errorf("MaxIntensity = %v, want 1", s.MaxIntensity)
	}
	if s.Coverage != 0.25 {
		t.Errorf("Coverage = %v, want 0.25", s.Coverage)
	}
	if s.P50Intensity != 0 {
		t.Errorf("P50Intensity = %v, want 0", s.P50Intensity)
	}
	if math.Abs(s.TotalTrail-4.0/3) > 1e-9 {
		t.Errorf("TotalTrail = %v", s.TotalTrail)
	}
	if s.StdIntensity <= 0 {
		t.Errorf("StdIntensity = %v, want > 0", s.StdIntensity)
	}
}

func TestComputeFieldStatsUniform(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	s := ComputeFieldStats(0, img)
	if s.MeanIntensity != 0 || s.StdIntensity != 0 || s.Coverage != 0 {
		t.Errorf("empty field stats = %+v", s)
	}

	one := ComputeFieldStats(0, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if math.IsNaN(one.StdIntensity) {
		t.Error("single texel std is NaN")
	}
}

func TestOutputManager(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	if err := om.WriteConfig(config.Defaults()); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	for frame := uint64(1); frame <= 3; frame++ {
		if err := om.WriteField(FieldStats{Frame: frame, MeanIntensity: 0.5}); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := om.WritePerf(PerfStats{PhasePct: map[string]float64{}}, 60); err != nil {
		t.Fatalf("WritePerf: %v", err)
	}
	if err := om.WriteSnapshot(3, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := om.WriteBookmarks([]Bookmark{{Type: BookmarkCollapse, Frame: uint64(i), Description: "x"}}); err != nil {
			t.Fatalf("WriteBookmarks: %v", err)
		}
	}
	if _, err := om.WriteAgents(NewSnapshot(1, 2, 2, 3, nil)); err != nil {
		t.Fatalf("WriteAgents: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "field.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("field.csv has %d lines, want header + 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "frame,mean_intensity") {
		t.Errorf("field.csv header = %q", lines[0])
	}

	data, err = os.ReadFile(filepath.Join(dir, "bookmarks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "collapse"); got != 2 {
		t.Errorf("bookmarks.csv has %d rows, want 2", got)
	}

	for _, name := range []string{"config.yaml", "perf.csv", "trail_00000003.png", "agents_00000003.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	// nil manager is a no-op
	if err := om.WriteField(FieldStats{}); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveFrame(1, 0.004)
	m.ObserveFrame(2, 0.004)
	m.ObserveSkip(3, SkipTimeout)
	m.ObserveField(FieldStats{MeanIntensity: 0.25, Coverage: 0.5})
	m.SetAgents(100)

	if got := testutil.ToFloat64(m.FramesRendered); got != 2 {
		t.Errorf("frames rendered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FramesSkipped.WithLabelValues(SkipTimeout)); got != 1 {
		t.Errorf("frames skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FrameNumber); got != 3 {
		t.Errorf("frame number = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.TrailCoverage); got != 0.5 {
		t.Errorf("coverage = %v, want 0.5", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveFrame(1, 1) // must not panic
}
