// Package systems holds the simulation kernels as host-side strategies and
// the parameter records both backends share.
package systems

// TexelReader gives a kernel read access to a trail map.
type TexelReader interface {
	Size() (width, height int)
	// Texel returns normalized RGBA. Coordinates are always in range.
	Texel(x, y int) [4]float32
}

// DecayDiffuser computes one output texel of the world update from the
// previous trail map. It must not depend on anything but src, the texel
// coordinates and the parameters.
type DecayDiffuser interface {
	Diffuse(src TexelReader, x, y int, p WorldParams) [4]float32
}

// BoxDecay averages the (2r+1)² toroidal neighbourhood of each texel and
// subtracts the decay rate, clamping to [0, 1]. With a zero radius and a
// zero decay rate the output equals the input.
type BoxDecay struct{}

func (BoxDecay) Diffuse(src TexelReader, x, y int, p WorldParams) [4]float32 {
	r := int(p.DiffuseRadius)
	if r == 0 {
		return decayTexel(src.Texel(x, y), p.DecayRate)
	}

	w, h := src.Size()
	var sum [4]float32
	for dy := -r; dy <= r; dy++ {
		sy := modInt(y+dy, h)
		for dx := -r; dx <= r; dx++ {
			t := src.Texel(modInt(x+dx, w), sy)
			sum[0] += t[0]
			sum[1] += t[1]
			sum[2] += t[2]
			sum[3] += t[3]
		}
	}
	n := float32((2*r + 1) * (2*r + 1))
	for i := range sum {
		sum[i] /= n
	}
	return decayTexel(sum, p.DecayRate)
}

func decayTexel(t [4]float32, rate float32) [4]float32 {
	if rate == 0 {
		return t
	}
	for i := range t {
		t[i] = clamp01(t[i] - rate)
	}
	return t
}

// Intensity is the scalar trail value of a texel.
func Intensity(t [4]float32) float32 {
	return (t[0] + t[1] + t[2]) / 3
}
