package pass

import (
	"math"

	"github.com/pthm-cable/slime/components"
	"github.com/pthm-cable/slime/gpu"
	"github.com/pthm-cable/slime/systems"
	"github.com/pthm-cable/slime/systems/shaders"
)

// Binding slots shared by the host programs and the WGSL sources.
var (
	slotParams  = gpu.Slot{Group: 0, Binding: 0}
	slotAgents  = gpu.Slot{Group: 0, Binding: 1}
	slotSampler = gpu.Slot{Group: 0, Binding: 0}
	slotSrc     = gpu.Slot{Group: 1, Binding: 0}
	slotDst     = gpu.Slot{Group: 1, Binding: 1}
)

var deposit = [4]float32{1, 1, 1, 1}

// trailView adapts a bound texture to systems.TexelReader.
type trailView struct {
	res  gpu.Resources
	slot gpu.Slot
	w, h int
}

func (t *trailView) Size() (int, int) { return t.w, t.h }

func (t *trailView) Texel(x, y int) [4]float32 { return t.res.Load(t.slot, x, y) }

// worldKernel runs a DecayDiffuser once per trail texel.
type worldKernel struct {
	diffuser systems.DecayDiffuser
}

func (worldKernel) WorkgroupSize() [3]uint32 { return [3]uint32{16, 16, 1} }

func (k worldKernel) Invoke(res gpu.Resources, id [3]uint32) {
	w, h := res.TextureSize(slotSrc)
	x, y := int(id[0]), int(id[1])
	if x >= w || y >= h {
		return
	}
	p, err := systems.ParseWorldParams(res.Uniform(slotParams))
	if err != nil {
		return
	}
	src := trailView{res: res, slot: slotSrc, w: w, h: h}
	res.Store(slotDst, x, y, k.diffuser.Diffuse(&src, x, y, p))
}

// agentKernel runs an AgentStepper once per agent record.
type agentKernel struct {
	stepper systems.AgentStepper
}

func (agentKernel) WorkgroupSize() [3]uint32 { return [3]uint32{64, 1, 1} }

func (k agentKernel) Invoke(res gpu.Resources, id [3]uint32) {
	agents := res.Storage(slotAgents)
	i := id[0]
	off := int(i) * components.AgentStride
	if off+components.AgentStride > len(agents) {
		return
	}
	p, err := systems.ParseAgentParams(res.Uniform(slotParams))
	if err != nil {
		return
	}
	w, h := res.TextureSize(slotSrc)
	trail := trailView{res: res, slot: slotSrc, w: w, h: h}

	rec := agents[off : off+components.AgentStride]
	a := components.DecodeAgent(rec)
	tx, ty, ok := k.stepper.Step(&a, i, &trail, p)
	a.Encode(rec)
	if ok {
		res.Store(slotDst, tx, ty, deposit)
	}
}

// worldProgram draws the trail map with a single triangle covering the
// viewport.
type worldProgram struct{}

func (worldProgram) Vertex(_ gpu.Resources, in gpu.VertexInput) gpu.VertexOutput {
	x := float32((in.VertexIndex << 1) & 2)
	y := float32(in.VertexIndex & 2)
	return gpu.VertexOutput{
		Position: [4]float32{x*2 - 1, y*2 - 1, 0, 1},
		Varyings: [4]float32{x, 1 - y},
	}
}

func (worldProgram) Fragment(res gpu.Resources, in gpu.FragmentInput) [4]float32 {
	c := res.Sample(slotSrc, slotSampler, in.Varyings[0], in.Varyings[1])
	c[3] = 1
	return c
}

// AgentColor is the fill color of agent glyphs.
var AgentColor = [4]float32{0.95, 0.75, 1.0, 0.85}

// agentProgram draws one rotated glyph per agent instance.
type agentProgram struct{}

func (agentProgram) Vertex(res gpu.Resources, in gpu.VertexInput) gpu.VertexOutput {
	p, _ := systems.ParseDrawParams(res.Uniform(slotParams))
	pos := in.Attributes[0]
	heading := float64(in.Attributes[1][0])
	v := in.Attributes[2]
	s, c := sincos(heading)
	vx, vy := v[0]*p.Scale, v[1]*p.Scale
	return gpu.VertexOutput{
		Position: [4]float32{pos[0] + vx*c - vy*s, pos[1] + vx*s + vy*c, 0, 1},
	}
}

func (agentProgram) Fragment(gpu.Resources, gpu.FragmentInput) [4]float32 {
	return AgentColor
}

func sincos(a float64) (float32, float32) {
	s, c := math.Sincos(a)
	return float32(s), float32(c)
}

// Programs pairs the host kernels with their WGSL. The strategies default
// to systems.BoxDecay and systems.SlimeStepper.
type Programs struct {
	Diffuser systems.DecayDiffuser
	Stepper  systems.AgentStepper
}

func (p Programs) simulateWorld() gpu.Program {
	d := p.Diffuser
	if d == nil {
		d = systems.BoxDecay{}
	}
	return gpu.Program{Label: "simulate_world", WGSL: shaders.SimulateWorld, Host: worldKernel{diffuser: d}}
}

func (p Programs) simulateAgents() gpu.Program {
	s := p.Stepper
	if s == nil {
		s = systems.SlimeStepper{}
	}
	return gpu.Program{Label: "simulate_agents", WGSL: shaders.SimulateAgents, Host: agentKernel{stepper: s}}
}

func (Programs) drawWorld() gpu.Program {
	return gpu.Program{Label: "draw_world", WGSL: shaders.DrawWorld, Host: worldProgram{}}
}

func (Programs) drawAgents() gpu.Program {
	return gpu.Program{Label: "draw_agents", WGSL: shaders.DrawAgents, Host: agentProgram{}}
}
