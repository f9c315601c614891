package telemetry

import (
	"image"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CoverageThreshold is the intensity above which a texel counts as covered
// by trail.
const CoverageThreshold = 0.05

// FieldStats summarizes one trail map snapshot.
type FieldStats struct {
	Frame uint64 `csv:"frame"`

	MeanIntensity float64 `csv:"mean_intensity"`
	StdIntensity  float64 `csv:"std_intensity"`
	MaxIntensity  float64 `csv:"max_intensity"`
	P50Intensity  float64 `csv:"p50_intensity"`
	P90Intensity  float64 `csv:"p90_intensity"`

	// Fraction of texels above CoverageThreshold
	Coverage float64 `csv:"coverage"`

	// Sum of all intensities, in texels at full intensity
	TotalTrail float64 `csv:"total_trail"`
}

// Intensities returns the per-texel trail intensity, (r+g+b)/3 in [0, 1],
// in row-major order.
func Intensities(img *image.RGBA) []float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			sum := int(row[x]) + int(row[x+1]) + int(row[x+2])
			out = append(out, float64(sum)/(3*255))
		}
	}
	return out
}

// ComputeFieldStats summarizes a trail map read back at the given frame.
func ComputeFieldStats(frame uint64, img *image.RGBA) FieldStats {
	s := FieldStats{Frame: frame}
	values := Intensities(img)
	if len(values) == 0 {
		return s
	}

	s.MeanIntensity, s.StdIntensity = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdIntensity = 0
	}
	s.MaxIntensity = floats.Max(values)
	s.TotalTrail = floats.Sum(values)

	covered := 0
	for _, v := range values {
		if v > CoverageThreshold {
			covered++
		}
	}
	s.Coverage = float64(covered) / float64(len(values))

	sort.Float64s(values)
	s.P50Intensity = stat.Quantile(0.5, stat.Empirical, values, nil)
	s.P90Intensity = stat.Quantile(0.9, stat.Empirical, values, nil)

	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s FieldStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frame", s.Frame),
		slog.Float64("mean", s.MeanIntensity),
		slog.Float64("std", s.StdIntensity),
		slog.Float64("max", s.MaxIntensity),
		slog.Float64("p90", s.P90Intensity),
		slog.Float64("coverage", s.Coverage),
	)
}

// LogStats logs the field statistics.
func (s FieldStats) LogStats() {
	slog.Info("field",
		"frame", s.Frame,
		"mean", s.MeanIntensity,
		"std", s.StdIntensity,
		"coverage", s.Coverage,
	)
}
