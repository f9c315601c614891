package pass

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pthm-cable/slime/components"
	"github.com/pthm-cable/slime/gpu"
	"github.com/pthm-cable/slime/sim"
	"github.com/pthm-cable/slime/systems"
	"github.com/pthm-cable/slime/systems/shaders"
)

// Workgroup sizes of the compute programs.
const (
	WorldWorkgroupSize = 16
	AgentWorkgroupSize = 64
)

// SimulateWorld decays and diffuses the trail map read this frame into the
// one written this frame.
type SimulateWorld struct {
	params   *Params[systems.WorldParams]
	bindings *Bindings
	pipeline gpu.ComputePipeline
	grid     [3]uint32
}

// NewSimulateWorld builds the world pass.
func NewSimulateWorld(dev gpu.Device, state *sim.State, p systems.WorldParams, progs Programs) (*SimulateWorld, error) {
	const name = "Simulate World"
	params, err := NewParams(dev, name, p)
	if err != nil {
		return nil, err
	}
	b, err := Build(dev, Descriptor{
		Name: name,
		Common: []Slot{
			{Type: gpu.BindingUniformBuffer, Visibility: gpu.ShaderStageCompute, Source: SourceParams},
		},
		Parity: []Slot{
			{Type: gpu.BindingUnfilterableTexture, Visibility: gpu.ShaderStageCompute, Source: SourceTrailRead},
			{Type: gpu.BindingWriteOnlyStorageTexture, Visibility: gpu.ShaderStageCompute, Source: SourceTrailWrite},
		},
	}, Resources{State: state, Params: params.Buffer(), ParamsSize: params.Size()})
	if err != nil {
		params.Release()
		return nil, err
	}
	pipeline, err := dev.CreateComputePipeline(&gpu.ComputePipelineDescriptor{
		Label:            name + " Pipeline",
		BindGroupLayouts: b.Layouts,
		Program:          progs.simulateWorld(),
		EntryPoint:       shaders.ComputeEntry,
	})
	if err != nil {
		b.Release()
		params.Release()
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	w, h := state.Dimensions()
	return &SimulateWorld{
		params:   params,
		bindings: b,
		pipeline: pipeline,
		grid:     [3]uint32{workgroups(w, WorldWorkgroupSize), workgroups(h, WorldWorkgroupSize), 1},
	}, nil
}

// Grid is the dispatch size.
func (s *SimulateWorld) Grid() [3]uint32 { return s.grid }

// Params returns the world parameters.
func (s *SimulateWorld) Params() systems.WorldParams { return s.params.Data() }

// Record dispatches the pass for the state's current parity.
func (s *SimulateWorld) Record(cp gpu.ComputePassEncoder, state *sim.State) {
	cp.SetPipeline(s.pipeline)
	s.bindings.Set(cp, state.Parity())
	cp.DispatchWorkgroups(s.grid[0], s.grid[1], s.grid[2])
}

func (s *SimulateWorld) Release() {
	s.pipeline.Release()
	s.bindings.Release()
	s.params.Release()
}

// SimulateAgents steers and moves every agent, depositing into the trail
// map written this frame.
type SimulateAgents struct {
	params   *Params[systems.AgentParams]
	bindings *Bindings
	pipeline gpu.ComputePipeline
	queue    gpu.Queue
	grid     [3]uint32
}

// NewSimulateAgents builds the agent pass.
func NewSimulateAgents(dev gpu.Device, state *sim.State, p systems.AgentParams, progs Programs) (*SimulateAgents, error) {
	const name = "Simulate Agents"
	params, err := NewParams(dev, name, p)
	if err != nil {
		return nil, err
	}
	b, err := Build(dev, Descriptor{
		Name: name,
		Common: []Slot{
			{Type: gpu.BindingUniformBuffer, Visibility: gpu.ShaderStageCompute, Source: SourceParams},
			{Type: gpu.BindingStorageBuffer, Visibility: gpu.ShaderStageCompute, Source: SourceAgents},
		},
		Parity: []Slot{
			{Type: gpu.BindingUnfilterableTexture, Visibility: gpu.ShaderStageCompute, Source: SourceTrailRead},
			{Type: gpu.BindingWriteOnlyStorageTexture, Visibility: gpu.ShaderStageCompute, Source: SourceTrailWrite},
		},
	}, Resources{State: state, Params: params.Buffer(), ParamsSize: params.Size()})
	if err != nil {
		params.Release()
		return nil, err
	}
	pipeline, err := dev.CreateComputePipeline(&gpu.ComputePipelineDescriptor{
		Label:            name + " Pipeline",
		BindGroupLayouts: b.Layouts,
		Program:          progs.simulateAgents(),
		EntryPoint:       shaders.ComputeEntry,
	})
	if err != nil {
		b.Release()
		params.Release()
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &SimulateAgents{
		params:   params,
		bindings: b,
		pipeline: pipeline,
		queue:    dev.Queue(),
		grid:     [3]uint32{workgroups(state.NumAgents(), AgentWorkgroupSize), 1, 1},
	}, nil
}

// Grid is the dispatch size. It is all zeros in x when there are no agents.
func (s *SimulateAgents) Grid() [3]uint32 { return s.grid }

// Params returns the agent parameters as last written.
func (s *SimulateAgents) Params() systems.AgentParams { return s.params.Data() }

// Record writes the current frame number into the parameters and
// dispatches the pass.
func (s *SimulateAgents) Record(cp gpu.ComputePassEncoder, state *sim.State) error {
	frame := state.FrameParam()
	if err := s.params.Update(s.queue, func(p *systems.AgentParams) { p.FrameNumber = frame }); err != nil {
		return fmt.Errorf("simulate agents: frame number: %w", err)
	}
	cp.SetPipeline(s.pipeline)
	s.bindings.Set(cp, state.Parity())
	cp.DispatchWorkgroups(s.grid[0], s.grid[1], s.grid[2])
	return nil
}

func (s *SimulateAgents) Release() {
	s.pipeline.Release()
	s.bindings.Release()
	s.params.Release()
}

// DrawWorld draws the trail map written this frame over the whole target.
type DrawWorld struct {
	bindings *Bindings
	pipeline gpu.RenderPipeline
}

// NewDrawWorld builds the world draw pass for targets of the given format.
func NewDrawWorld(dev gpu.Device, state *sim.State, format gpu.TextureFormat, progs Programs) (*DrawWorld, error) {
	const name = "Draw World"
	b, err := Build(dev, Descriptor{
		Name: name,
		Common: []Slot{
			{Type: gpu.BindingFilteringSampler, Visibility: gpu.ShaderStageFragment, Source: SourceSampler},
		},
		Parity: []Slot{
			{Type: gpu.BindingFilterableTexture, Visibility: gpu.ShaderStageFragment, Source: SourceTrailLatest},
		},
	}, Resources{State: state})
	if err != nil {
		return nil, err
	}
	pipeline, err := dev.CreateRenderPipeline(&gpu.RenderPipelineDescriptor{
		Label:              name + " Pipeline",
		BindGroupLayouts:   b.Layouts,
		Program:            progs.drawWorld(),
		VertexEntryPoint:   shaders.VertexEntry,
		FragmentEntryPoint: shaders.FragmentEntry,
		Topology:           gpu.PrimitiveTopologyTriangleList,
		Format:             format,
		Blend:              gpu.BlendReplace,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &DrawWorld{bindings: b, pipeline: pipeline}, nil
}

// Record draws the full-viewport triangle.
func (d *DrawWorld) Record(rp gpu.RenderPassEncoder, state *sim.State) {
	rp.SetPipeline(d.pipeline)
	d.bindings.Set(rp, state.Parity())
	rp.Draw(3, 1, 0, 0)
}

func (d *DrawWorld) Release() {
	d.pipeline.Release()
	d.bindings.Release()
}

// AgentMesh is the triangle strip drawn for every agent, pointing along +x.
var AgentMesh = [4][2]float32{{-0.02, 0.01}, {-0.01, 0}, {0.02, 0}, {-0.02, -0.01}}

// DrawAgents draws one glyph per agent, oriented by heading.
type DrawAgents struct {
	params   *Params[systems.DrawParams]
	bindings *Bindings
	pipeline gpu.RenderPipeline
	mesh     gpu.Buffer
}

// NewDrawAgents builds the agent draw pass for targets of the given format.
func NewDrawAgents(dev gpu.Device, state *sim.State, p systems.DrawParams, format gpu.TextureFormat, progs Programs) (*DrawAgents, error) {
	const name = "Draw Agents"
	params, err := NewParams(dev, name, p)
	if err != nil {
		return nil, err
	}
	b, err := Build(dev, Descriptor{
		Name: name,
		Common: []Slot{
			{Type: gpu.BindingUniformBuffer, Visibility: gpu.ShaderStageVertex, Source: SourceParams},
		},
	}, Resources{State: state, Params: params.Buffer(), ParamsSize: params.Size()})
	if err != nil {
		params.Release()
		return nil, err
	}

	meshBytes := make([]byte, len(AgentMesh)*8)
	for i, v := range AgentMesh {
		binary.LittleEndian.PutUint32(meshBytes[i*8:], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(meshBytes[i*8+4:], math.Float32bits(v[1]))
	}
	mesh, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Label:    "Agent Mesh Vertex Buffer",
		Usage:    gpu.BufferUsageVertex | gpu.BufferUsageCopyDst,
		Contents: meshBytes,
	})
	if err != nil {
		b.Release()
		params.Release()
		return nil, fmt.Errorf("%s: mesh: %w", name, err)
	}

	pipeline, err := dev.CreateRenderPipeline(&gpu.RenderPipelineDescriptor{
		Label:              name + " Pipeline",
		BindGroupLayouts:   b.Layouts,
		Program:            progs.drawAgents(),
		VertexEntryPoint:   shaders.VertexEntry,
		FragmentEntryPoint: shaders.FragmentEntry,
		Buffers: []gpu.VertexBufferLayout{
			{
				ArrayStride: components.AgentStride,
				StepMode:    gpu.VertexStepModeInstance,
				Attributes: []gpu.VertexAttribute{
					{Format: gpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					{Format: gpu.VertexFormatFloat32, Offset: 8, ShaderLocation: 1},
				},
			},
			{
				ArrayStride: 8,
				StepMode:    gpu.VertexStepModeVertex,
				Attributes: []gpu.VertexAttribute{
					{Format: gpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 2},
				},
			},
		},
		Topology: gpu.PrimitiveTopologyTriangleStrip,
		Format:   format,
		Blend:    gpu.BlendAlphaOver,
	})
	if err != nil {
		mesh.Release()
		b.Release()
		params.Release()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &DrawAgents{params: params, bindings: b, pipeline: pipeline, mesh: mesh}, nil
}

// Enabled reports whether the pass draws anything.
func (d *DrawAgents) Enabled() bool { return d.params.Data().Scale != 0 }

// Record draws every agent. With a zero scale nothing is recorded.
func (d *DrawAgents) Record(rp gpu.RenderPassEncoder, state *sim.State) {
	if !d.Enabled() {
		return
	}
	rp.SetPipeline(d.pipeline)
	d.bindings.Set(rp, state.Parity())
	rp.SetVertexBuffer(0, state.Agents())
	rp.SetVertexBuffer(1, d.mesh)
	rp.Draw(uint32(len(AgentMesh)), state.NumAgents(), 0, 0)
}

func (d *DrawAgents) Release() {
	d.pipeline.Release()
	d.mesh.Release()
	d.bindings.Release()
	d.params.Release()
}
