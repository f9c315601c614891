// Package webgpu is the hardware capability provider, a thin adapter from
// the gpu contract onto github.com/cogentcore/webgpu/wgpu.
package webgpu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/pthm-cable/slime/gpu"
)

// Device wraps a wgpu device and its queue. It also implements
// gpu.TextureReader and gpu.BufferReader.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *Queue
}

var (
	_ gpu.Device        = (*Device)(nil)
	_ gpu.TextureReader = (*Device)(nil)
	_ gpu.BufferReader  = (*Device)(nil)
)

// New requests an adapter compatible with the window described by desc and
// opens a device on it. The returned surface belongs to that window.
func New(desc *wgpu.SurfaceDescriptor) (*Device, *Surface, error) {
	instance := wgpu.CreateInstance(nil)
	surface := instance.CreateSurface(desc)

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		surface.Release()
		instance.Release()
		return nil, nil, fmt.Errorf("webgpu: requesting adapter: %w", err)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Slime Device",
	})
	if err != nil {
		adapter.Release()
		surface.Release()
		instance.Release()
		return nil, nil, fmt.Errorf("webgpu: requesting device: %w", err)
	}

	slog.Info("webgpu device ready")

	d := &Device{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    &Queue{queue: device.GetQueue()},
	}
	return d, newSurface(d, surface), nil
}

// Release frees the device, adapter and instance.
func (d *Device) Release() {
	d.queue.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}

func (d *Device) Queue() gpu.Queue { return d.queue }

type buffer struct {
	buf  *wgpu.Buffer
	size uint64
}

func (b *buffer) Size() uint64 { return b.size }
func (b *buffer) Release()     { b.buf.Release() }

func (d *Device) CreateBuffer(desc *gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc.Contents != nil {
		buf, err := d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: desc.Contents,
			Usage:    bufferUsage(desc.Usage),
		})
		if err != nil {
			return nil, wrap("creating buffer "+desc.Label, err)
		}
		return &buffer{buf: buf, size: uint64(len(desc.Contents))}, nil
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: bufferUsage(desc.Usage),
	})
	if err != nil {
		return nil, wrap("creating buffer "+desc.Label, err)
	}
	return &buffer{buf: buf, size: desc.Size}, nil
}

type texture struct {
	tex           *wgpu.Texture
	width, height uint32
	format        gpu.TextureFormat
}

func (t *texture) Width() uint32             { return t.width }
func (t *texture) Height() uint32            { return t.height }
func (t *texture) Format() gpu.TextureFormat { return t.format }
func (t *texture) Release()                  { t.tex.Release() }

func (t *texture) CreateView() (gpu.TextureView, error) {
	v, err := t.tex.CreateView(nil)
	if err != nil {
		return nil, wrap("creating texture view", err)
	}
	return &textureView{view: v}, nil
}

type textureView struct{ view *wgpu.TextureView }

func (v *textureView) Release() { v.view.Release() }

func (d *Device) CreateTexture(desc *gpu.TextureDescriptor) (gpu.Texture, error) {
	format, ok := textureFormats[desc.Format]
	if !ok {
		return nil, fmt.Errorf("webgpu: texture %q: unsupported format %v", desc.Label, desc.Format)
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     textureUsage(desc.Usage),
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, wrap("creating texture "+desc.Label, err)
	}
	return &texture{tex: tex, width: desc.Width, height: desc.Height, format: desc.Format}, nil
}

type sampler struct{ s *wgpu.Sampler }

func (s *sampler) Release() { s.s.Release() }

func (d *Device) CreateSampler(desc *gpu.SamplerDescriptor) (gpu.Sampler, error) {
	mode := addressModes[desc.AddressMode]
	s, err := d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  mode,
		AddressModeV:  mode,
		AddressModeW:  mode,
		MagFilter:     filterModes[desc.MagFilter],
		MinFilter:     filterModes[desc.MinFilter],
		MipmapFilter:  mipmapFilterModes[desc.MipmapFilter],
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, wrap("creating sampler "+desc.Label, err)
	}
	return &sampler{s: s}, nil
}

type bindGroupLayout struct{ layout *wgpu.BindGroupLayout }

func (l *bindGroupLayout) Release() { l.layout.Release() }

func (d *Device) CreateBindGroupLayout(desc *gpu.BindGroupLayoutDescriptor) (gpu.BindGroupLayout, error) {
	entries := make([]wgpu.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry, err := layoutEntry(e)
		if err != nil {
			return nil, fmt.Errorf("webgpu: layout %q: %w", desc.Label, err)
		}
		entries[i] = entry
	}
	l, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return nil, wrap("creating bind group layout "+desc.Label, err)
	}
	return &bindGroupLayout{layout: l}, nil
}

func layoutEntry(e gpu.BindGroupLayoutEntry) (wgpu.BindGroupLayoutEntry, error) {
	out := wgpu.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: shaderStage(e.Visibility),
	}
	switch e.Type {
	case gpu.BindingUniformBuffer:
		out.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, MinBindingSize: e.MinBindingSize}
	case gpu.BindingStorageBuffer:
		out.Buffer = wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage, MinBindingSize: e.MinBindingSize}
	case gpu.BindingUnfilterableTexture:
		out.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case gpu.BindingFilterableTexture:
		out.Texture = wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeFloat,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case gpu.BindingWriteOnlyStorageTexture:
		format, ok := textureFormats[e.Format]
		if !ok {
			return out, fmt.Errorf("binding %d: unsupported storage format %v", e.Binding, e.Format)
		}
		out.StorageTexture = wgpu.StorageTextureBindingLayout{
			Access:        wgpu.StorageTextureAccessWriteOnly,
			Format:        format,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	case gpu.BindingFilteringSampler:
		out.Sampler = wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}
	default:
		return out, fmt.Errorf("binding %d: undefined binding type", e.Binding)
	}
	return out, nil
}

type bindGroup struct{ group *wgpu.BindGroup }

func (g *bindGroup) Release() { g.group.Release() }

func (d *Device) CreateBindGroup(desc *gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	layout, ok := desc.Layout.(*bindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("webgpu: bind group %q: layout from another device", desc.Label)
	}
	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entries[i] = wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Buffer != nil:
			b, ok := e.Buffer.(*buffer)
			if !ok {
				return nil, fmt.Errorf("webgpu: bind group %q: binding %d: foreign buffer", desc.Label, e.Binding)
			}
			entries[i].Buffer = b.buf
			entries[i].Size = wgpu.WholeSize
		case e.TextureView != nil:
			v, ok := e.TextureView.(*textureView)
			if !ok {
				return nil, fmt.Errorf("webgpu: bind group %q: binding %d: foreign texture view", desc.Label, e.Binding)
			}
			entries[i].TextureView = v.view
		case e.Sampler != nil:
			s, ok := e.Sampler.(*sampler)
			if !ok {
				return nil, fmt.Errorf("webgpu: bind group %q: binding %d: foreign sampler", desc.Label, e.Binding)
			}
			entries[i].Sampler = s.s
		default:
			return nil, fmt.Errorf("webgpu: bind group %q: binding %d is empty", desc.Label, e.Binding)
		}
	}
	g, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, wrap("creating bind group "+desc.Label, err)
	}
	return &bindGroup{group: g}, nil
}

func (d *Device) pipelineLayout(label string, in []gpu.BindGroupLayout) (*wgpu.PipelineLayout, error) {
	layouts := make([]*wgpu.BindGroupLayout, len(in))
	for i, l := range in {
		bl, ok := l.(*bindGroupLayout)
		if !ok {
			return nil, fmt.Errorf("webgpu: pipeline %q: layout %d from another device", label, i)
		}
		layouts[i] = bl.layout
	}
	pl, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + " Layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, wrap("creating pipeline layout "+label, err)
	}
	return pl, nil
}

func (d *Device) shaderModule(p gpu.Program) (*wgpu.ShaderModule, error) {
	if p.WGSL == "" {
		return nil, fmt.Errorf("webgpu: program %q has no WGSL source", p.Label)
	}
	m, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          p.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: p.WGSL},
	})
	if err != nil {
		return nil, wrap("compiling "+p.Label, err)
	}
	return m, nil
}

type computePipeline struct{ pipeline *wgpu.ComputePipeline }

func (p *computePipeline) Release() { p.pipeline.Release() }

func (d *Device) CreateComputePipeline(desc *gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	module, err := d.shaderModule(desc.Program)
	if err != nil {
		return nil, err
	}
	defer module.Release()

	layout, err := d.pipelineLayout(desc.Label, desc.BindGroupLayouts)
	if err != nil {
		return nil, err
	}
	defer layout.Release()

	p, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, wrap("creating compute pipeline "+desc.Label, err)
	}
	return &computePipeline{pipeline: p}, nil
}

type renderPipeline struct{ pipeline *wgpu.RenderPipeline }

func (p *renderPipeline) Release() { p.pipeline.Release() }

func (d *Device) CreateRenderPipeline(desc *gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	format, ok := textureFormats[desc.Format]
	if !ok {
		return nil, fmt.Errorf("webgpu: pipeline %q: unsupported target format %v", desc.Label, desc.Format)
	}

	module, err := d.shaderModule(desc.Program)
	if err != nil {
		return nil, err
	}
	defer module.Release()

	layout, err := d.pipelineLayout(desc.Label, desc.BindGroupLayouts)
	if err != nil {
		return nil, err
	}
	defer layout.Release()

	p, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    vertexLayouts(desc.Buffers),
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topologies[desc.Topology],
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntryPoint,
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				Blend:     blendState(desc.Blend),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, wrap("creating render pipeline "+desc.Label, err)
	}
	return &renderPipeline{pipeline: p}, nil
}

func vertexLayouts(in []gpu.VertexBufferLayout) []wgpu.VertexBufferLayout {
	out := make([]wgpu.VertexBufferLayout, len(in))
	for i, l := range in {
		attrs := make([]wgpu.VertexAttribute, len(l.Attributes))
		for j, a := range l.Attributes {
			attrs[j] = wgpu.VertexAttribute{
				Format:         vertexFormats[a.Format],
				Offset:         a.Offset,
				ShaderLocation: a.ShaderLocation,
			}
		}
		step := wgpu.VertexStepModeVertex
		if l.StepMode == gpu.VertexStepModeInstance {
			step = wgpu.VertexStepModeInstance
		}
		out[i] = wgpu.VertexBufferLayout{
			ArrayStride: l.ArrayStride,
			StepMode:    step,
			Attributes:  attrs,
		}
	}
	return out
}

func blendState(m gpu.BlendMode) *wgpu.BlendState {
	if m != gpu.BlendAlphaOver {
		return nil
	}
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}
}

// wrap classifies allocation failures so the frame loop can tell them
// apart from other errors.
func wrap(op string, err error) error {
	if isOutOfMemory(err) {
		return fmt.Errorf("webgpu: %s: %w: %v", op, gpu.ErrOutOfMemory, err)
	}
	return fmt.Errorf("webgpu: %s: %w", op, err)
}

var errNoTexture = errors.New("webgpu: surface returned no texture")
