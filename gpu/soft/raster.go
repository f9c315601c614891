package soft

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/pthm-cable/slime/gpu"
)

// rasterParallelPixels is the bounding box area above which a triangle is
// split into row bands on the worker pool.
const rasterParallelPixels = 64 * 64

type clearCmd struct {
	label  string
	target *texture
	color  gpu.Color
}

func (c *clearCmd) exec(d *Device) error {
	if c.target.released {
		return fmt.Errorf("soft: clear %q: %w", c.label, ErrReleased)
	}
	d.record(TraceEvent{Kind: TraceClear, Pass: c.label})

	px := [4]uint8{
		unorm8(float32(c.color.R)),
		unorm8(float32(c.color.G)),
		unorm8(float32(c.color.B)),
		unorm8(float32(c.color.A)),
	}
	pix := c.target.img.Pix
	for i := 0; i < len(pix); i += 4 {
		copy(pix[i:i+4], px[:])
	}
	return nil
}

type drawCmd struct {
	pass     string
	pipeline *renderPipeline
	groups   [maxBindGroups]*bindGroup
	vertex   [gpu.MaxVertexLocations]*buffer
	target   *texture

	vertexCount, instanceCount uint32
	firstVertex, firstInstance uint32
}

func (c *drawCmd) exec(d *Device) error {
	if c.target.released {
		return fmt.Errorf("soft: draw %q: target %w", c.pass, ErrReleased)
	}

	res := &bindings{groups: c.groups}
	outs := make([]gpu.VertexOutput, c.vertexCount)
	tris := triangles(c.pipeline.topology, int(c.vertexCount))
	fragments := 0

	for inst := c.firstInstance; inst < c.firstInstance+c.instanceCount; inst++ {
		for v := uint32(0); v < c.vertexCount; v++ {
			in := gpu.VertexInput{VertexIndex: c.firstVertex + v, InstanceIndex: inst}
			if err := c.fetch(&in); err != nil {
				return err
			}
			outs[v] = c.pipeline.program.Vertex(res, in)
		}
		for _, t := range tris {
			fragments += c.rasterize(d, outs[t[0]], outs[t[1]], outs[t[2]])
		}
	}

	d.record(TraceEvent{
		Kind:          TraceDraw,
		Pass:          c.pass,
		Pipeline:      c.pipeline.label,
		VertexCount:   c.vertexCount,
		InstanceCount: c.instanceCount,
		Fragments:     fragments,
	})
	return nil
}

// fetch fills the vertex attributes of in from the bound vertex buffers.
func (c *drawCmd) fetch(in *gpu.VertexInput) error {
	for slot, layout := range c.pipeline.buffers {
		buf := c.vertex[slot]
		index := in.VertexIndex
		if layout.StepMode == gpu.VertexStepModeInstance {
			index = in.InstanceIndex
		}
		base := uint64(index) * layout.ArrayStride
		if base+layout.ArrayStride > uint64(len(buf.data)) {
			return fmt.Errorf("soft: draw %q: element %d overruns vertex buffer %q", c.pass, index, buf.label)
		}
		for _, a := range layout.Attributes {
			off := base + a.Offset
			for k := 0; k < a.Format.Components(); k++ {
				bits := binary.LittleEndian.Uint32(buf.data[off+uint64(k)*4:])
				in.Attributes[a.ShaderLocation][k] = math.Float32frombits(bits)
			}
		}
	}
	return nil
}

// triangles lists the vertex indices of each assembled triangle.
func triangles(topology gpu.PrimitiveTopology, n int) [][3]int {
	var out [][3]int
	switch topology {
	case gpu.PrimitiveTopologyTriangleStrip:
		for k := 0; k+2 < n; k++ {
			if k%2 == 0 {
				out = append(out, [3]int{k, k + 1, k + 2})
			} else {
				out = append(out, [3]int{k + 1, k, k + 2})
			}
		}
	default:
		for k := 0; k+2 < n; k += 3 {
			out = append(out, [3]int{k, k + 1, k + 2})
		}
	}
	return out
}

type screenVertex struct {
	x, y     float32
	varyings [4]float32
}

func (c *drawCmd) toScreen(o gpu.VertexOutput) screenVertex {
	w := o.Position[3]
	if w == 0 {
		w = 1
	}
	width := float32(c.target.img.Rect.Dx())
	height := float32(c.target.img.Rect.Dy())
	return screenVertex{
		x:        (o.Position[0]/w + 1) * 0.5 * width,
		y:        (1 - o.Position[1]/w) * 0.5 * height,
		varyings: o.Varyings,
	}
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// rasterize shades every pixel whose center lies inside the triangle and
// returns the number of fragments written.
func (c *drawCmd) rasterize(d *Device, o0, o1, o2 gpu.VertexOutput) int {
	v0, v1, v2 := c.toScreen(o0), c.toScreen(o1), c.toScreen(o2)
	area := edge(v0.x, v0.y, v1.x, v1.y, v2.x, v2.y)
	if area == 0 {
		return 0
	}

	img := c.target.img
	w, h := img.Rect.Dx(), img.Rect.Dy()
	minX := max(0, int(math.Floor(float64(min(v0.x, v1.x, v2.x)))))
	maxX := min(w-1, int(math.Ceil(float64(max(v0.x, v1.x, v2.x)))))
	minY := max(0, int(math.Floor(float64(min(v0.y, v1.y, v2.y)))))
	maxY := min(h-1, int(math.Ceil(float64(max(v0.y, v1.y, v2.y)))))
	if minX > maxX || minY > maxY {
		return 0
	}

	program := c.pipeline.program
	blend := c.pipeline.blend

	shadeRows := func(res *bindings, y0, y1 int) int {
		n := 0
		for y := y0; y < y1; y++ {
			py := float32(y) + 0.5
			for x := minX; x <= maxX; x++ {
				px := float32(x) + 0.5
				b0 := edge(v1.x, v1.y, v2.x, v2.y, px, py) / area
				b1 := edge(v2.x, v2.y, v0.x, v0.y, px, py) / area
				b2 := edge(v0.x, v0.y, v1.x, v1.y, px, py) / area
				if b0 < 0 || b1 < 0 || b2 < 0 {
					continue
				}
				in := gpu.FragmentInput{Position: [2]float32{px, py}}
				for i := range in.Varyings {
					in.Varyings[i] = b0*v0.varyings[i] + b1*v1.varyings[i] + b2*v2.varyings[i]
				}
				writePixel(img, x, y, program.Fragment(res, in), blend)
				n++
			}
		}
		return n
	}

	rows := maxY - minY + 1
	if rows*(maxX-minX+1) < rasterParallelPixels {
		return shadeRows(&bindings{groups: c.groups}, minY, maxY+1)
	}

	counts := make([]int, d.pool.chunks(rows))
	d.pool.run(rows, func(chunk, start, end int) {
		counts[chunk] = shadeRows(&bindings{groups: c.groups}, minY+start, minY+end)
	})
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

func writePixel(img *image.RGBA, x, y int, src [4]float32, blend gpu.BlendMode) {
	i := y*img.Stride + x*4
	p := img.Pix[i : i+4 : i+4]
	if blend == gpu.BlendAlphaOver {
		a := clampUnit(src[3])
		for k := 0; k < 3; k++ {
			dst := float32(p[k]) / 255
			p[k] = unorm8(src[k]*a + dst*(1-a))
		}
		p[3] = unorm8(a + float32(p[3])/255*(1-a))
		return
	}
	p[0] = unorm8(src[0])
	p[1] = unorm8(src[1])
	p[2] = unorm8(src[2])
	p[3] = unorm8(src[3])
}

func clampUnit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
