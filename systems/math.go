package systems

import "math"

// Fast math functions for the per-agent hot path.
// These avoid float32->float64 conversions that Go's math package requires.

// fastSin approximates sin(x) using a polynomial. Accurate to ~0.001 for all x.
func fastSin(x float32) float32 {
	x = normalizeAngle(x)
	const pi = math.Pi
	const pi2 = pi * pi
	y := 4 * x * (pi - absf(x)) / pi2
	return 0.225*(y*absf(y)-y) + y
}

// fastCos approximates cos(x) using fastSin.
func fastCos(x float32) float32 {
	return fastSin(x + math.Pi/2)
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// clamp01 clamps a float32 value to the [0, 1] range.
func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeAngle wraps an angle to [-Pi, Pi].
func normalizeAngle(angle float32) float32 {
	if angle > 64*math.Pi || angle < -64*math.Pi {
		angle = float32(math.Remainder(float64(angle), 2*math.Pi))
	}
	for angle > math.Pi {
		angle -= 2 * math.Pi
	}
	for angle < -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}

// wrapSigned wraps a coordinate into [-1, 1).
func wrapSigned(v float32) float32 {
	if v >= -1 && v < 1 {
		return v
	}
	v = float32(math.Mod(float64(v+1), 2))
	if v < 0 {
		v += 2
	}
	v--
	if v >= 1 {
		v = -1
	}
	return v
}

// modInt wraps i into [0, n).
func modInt(i, n int) int {
	return ((i % n) + n) % n
}

// hash is the PCG output permutation, used as a stateless per-agent RNG.
func hash(x uint32) uint32 {
	state := x*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// unitHash maps a hash to [0, 1) with 24 bits of precision.
func unitHash(h uint32) float32 {
	return float32(h>>8) / (1 << 24)
}
