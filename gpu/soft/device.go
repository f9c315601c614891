// Package soft is a software capability provider. Compute programs run on a
// persistent worker pool and draws are rasterized into RGBA framebuffers, so
// the simulation runs headless and deterministically without a GPU.
package soft

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/pthm-cable/slime/gpu"
)

// ErrReleased is returned when a released object is used.
var ErrReleased = errors.New("soft: object released")

// Options configures a Device.
type Options struct {
	// Workers is the worker pool size (0 = GOMAXPROCS).
	Workers int
	// Trace records every executed dispatch and draw.
	Trace bool
	// OutOfMemoryAt fails texture and buffer creation once this many bytes
	// are allocated (0 = unlimited).
	OutOfMemoryAt uint64
}

// Device is the software gpu.Device. It also implements gpu.TextureReader
// and gpu.BufferReader.
type Device struct {
	opts  Options
	pool  *workerPool
	queue *queue

	mu        sync.Mutex
	allocated uint64
	trace     []TraceEvent
}

var (
	_ gpu.Device        = (*Device)(nil)
	_ gpu.TextureReader = (*Device)(nil)
	_ gpu.BufferReader  = (*Device)(nil)
)

// NewDevice creates a software device.
func NewDevice(opts Options) *Device {
	d := &Device{
		opts: opts,
		pool: newWorkerPool(opts.Workers),
	}
	d.queue = &queue{device: d}
	return d
}

// Release stops the worker pool.
func (d *Device) Release() {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.pool.stop()
}

// Queue returns the device queue.
func (d *Device) Queue() gpu.Queue { return d.queue }

func (d *Device) reserve(n uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts.OutOfMemoryAt > 0 && d.allocated+n > d.opts.OutOfMemoryAt {
		return fmt.Errorf("soft: allocating %d bytes: %w", n, gpu.ErrOutOfMemory)
	}
	d.allocated += n
	return nil
}

func (d *Device) free(n uint64) {
	d.mu.Lock()
	d.allocated -= n
	d.mu.Unlock()
}

type buffer struct {
	device   *Device
	label    string
	usage    gpu.BufferUsage
	data     []byte
	released bool
}

func (b *buffer) Size() uint64 { return uint64(len(b.data)) }

func (b *buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.device.free(uint64(len(b.data)))
}

// CreateBuffer allocates a zeroed buffer, or one holding desc.Contents.
func (d *Device) CreateBuffer(desc *gpu.BufferDescriptor) (gpu.Buffer, error) {
	size := desc.Size
	if desc.Contents != nil && size == 0 {
		size = uint64(len(desc.Contents))
	}
	if size == 0 {
		return nil, fmt.Errorf("soft: buffer %q has zero size", desc.Label)
	}
	if uint64(len(desc.Contents)) > size {
		return nil, fmt.Errorf("soft: buffer %q contents exceed size %d", desc.Label, size)
	}
	if err := d.reserve(size); err != nil {
		return nil, err
	}
	b := &buffer{device: d, label: desc.Label, usage: desc.Usage, data: make([]byte, size)}
	copy(b.data, desc.Contents)
	return b, nil
}

type texture struct {
	device   *Device
	label    string
	format   gpu.TextureFormat
	usage    gpu.TextureUsage
	img      *image.RGBA
	owned    bool // counted against the device allocation
	released bool
}

func (t *texture) Width() uint32             { return uint32(t.img.Rect.Dx()) }
func (t *texture) Height() uint32            { return uint32(t.img.Rect.Dy()) }
func (t *texture) Format() gpu.TextureFormat { return t.format }

func (t *texture) CreateView() (gpu.TextureView, error) {
	if t.released {
		return nil, fmt.Errorf("soft: view of %q: %w", t.label, ErrReleased)
	}
	return &textureView{texture: t}, nil
}

func (t *texture) Release() {
	if t.released {
		return
	}
	t.released = true
	if t.owned {
		t.device.free(uint64(len(t.img.Pix)))
	}
}

type textureView struct {
	texture *texture
}

func (v *textureView) Release() {}

// CreateTexture allocates a zeroed RGBA8 texture.
func (d *Device) CreateTexture(desc *gpu.TextureDescriptor) (gpu.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("soft: texture %q has zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	switch desc.Format {
	case gpu.TextureFormatRGBA8Unorm, gpu.TextureFormatRGBA8UnormSrgb,
		gpu.TextureFormatBGRA8Unorm, gpu.TextureFormatBGRA8UnormSrgb:
	default:
		return nil, fmt.Errorf("soft: texture %q has unsupported format %v", desc.Label, desc.Format)
	}
	if err := d.reserve(uint64(desc.Width) * uint64(desc.Height) * 4); err != nil {
		return nil, err
	}
	return &texture{
		device: d,
		label:  desc.Label,
		format: desc.Format,
		usage:  desc.Usage,
		img:    image.NewRGBA(image.Rect(0, 0, int(desc.Width), int(desc.Height))),
		owned:  true,
	}, nil
}

type sampler struct {
	desc gpu.SamplerDescriptor
}

func (s *sampler) Release() {}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *gpu.SamplerDescriptor) (gpu.Sampler, error) {
	return &sampler{desc: *desc}, nil
}

type bindGroupLayout struct {
	label   string
	entries map[uint32]gpu.BindGroupLayoutEntry
}

func (l *bindGroupLayout) Release() {}

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(desc *gpu.BindGroupLayoutDescriptor) (gpu.BindGroupLayout, error) {
	l := &bindGroupLayout{label: desc.Label, entries: make(map[uint32]gpu.BindGroupLayoutEntry, len(desc.Entries))}
	for _, e := range desc.Entries {
		if _, dup := l.entries[e.Binding]; dup {
			return nil, fmt.Errorf("soft: layout %q binds slot %d twice", desc.Label, e.Binding)
		}
		if e.Type == gpu.BindingUndefined {
			return nil, fmt.Errorf("soft: layout %q slot %d has no type", desc.Label, e.Binding)
		}
		l.entries[e.Binding] = e
	}
	return l, nil
}

// binding is one resolved bind group slot.
type binding struct {
	kind    gpu.BindingType
	buffer  *buffer
	view    *textureView
	sampler *sampler
}

type bindGroup struct {
	label    string
	layout   *bindGroupLayout
	bindings map[uint32]binding
}

func (g *bindGroup) Release() {}

// CreateBindGroup creates a bind group, checking every entry against the layout.
func (d *Device) CreateBindGroup(desc *gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	layout, ok := desc.Layout.(*bindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("soft: bind group %q: layout from another device", desc.Label)
	}
	if len(desc.Entries) != len(layout.entries) {
		return nil, fmt.Errorf("soft: bind group %q has %d entries, layout %q wants %d",
			desc.Label, len(desc.Entries), layout.label, len(layout.entries))
	}

	g := &bindGroup{label: desc.Label, layout: layout, bindings: make(map[uint32]binding, len(desc.Entries))}
	for _, e := range desc.Entries {
		le, ok := layout.entries[e.Binding]
		if !ok {
			return nil, fmt.Errorf("soft: bind group %q slot %d not in layout", desc.Label, e.Binding)
		}
		b := binding{kind: le.Type}
		switch {
		case le.Type.IsBuffer():
			buf, ok := e.Buffer.(*buffer)
			if !ok {
				return nil, fmt.Errorf("soft: bind group %q slot %d wants a buffer", desc.Label, e.Binding)
			}
			if le.MinBindingSize > 0 && buf.Size() < le.MinBindingSize {
				return nil, fmt.Errorf("soft: bind group %q slot %d: buffer is %d bytes, layout wants %d",
					desc.Label, e.Binding, buf.Size(), le.MinBindingSize)
			}
			want := gpu.BufferUsageUniform
			if le.Type == gpu.BindingStorageBuffer {
				want = gpu.BufferUsageStorage
			}
			if buf.usage&want == 0 {
				return nil, fmt.Errorf("soft: bind group %q slot %d: buffer %q lacks usage %#x",
					desc.Label, e.Binding, buf.label, want)
			}
			b.buffer = buf
		case le.Type.IsTexture():
			view, ok := e.TextureView.(*textureView)
			if !ok {
				return nil, fmt.Errorf("soft: bind group %q slot %d wants a texture view", desc.Label, e.Binding)
			}
			want := gpu.TextureUsageTextureBinding
			if le.Type == gpu.BindingWriteOnlyStorageTexture {
				want = gpu.TextureUsageStorageBinding
			}
			if view.texture.usage&want == 0 {
				return nil, fmt.Errorf("soft: bind group %q slot %d: texture %q lacks usage %#x",
					desc.Label, e.Binding, view.texture.label, want)
			}
			b.view = view
		case le.Type == gpu.BindingFilteringSampler:
			s, ok := e.Sampler.(*sampler)
			if !ok {
				return nil, fmt.Errorf("soft: bind group %q slot %d wants a sampler", desc.Label, e.Binding)
			}
			b.sampler = s
		}
		g.bindings[e.Binding] = b
	}
	return g, nil
}

type computePipeline struct {
	label   string
	layouts []*bindGroupLayout
	kernel  gpu.ComputeKernel
}

func (p *computePipeline) Release() {}

// CreateComputePipeline creates a compute pipeline from a host kernel.
func (d *Device) CreateComputePipeline(desc *gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	kernel, ok := desc.Program.Host.(gpu.ComputeKernel)
	if !ok {
		return nil, fmt.Errorf("soft: pipeline %q: program %q has no host compute kernel", desc.Label, desc.Program.Label)
	}
	size := kernel.WorkgroupSize()
	if size[0] == 0 || size[1] == 0 || size[2] == 0 {
		return nil, fmt.Errorf("soft: pipeline %q: empty workgroup size %v", desc.Label, size)
	}
	layouts, err := softLayouts(desc.Label, desc.BindGroupLayouts)
	if err != nil {
		return nil, err
	}
	return &computePipeline{label: desc.Label, layouts: layouts, kernel: kernel}, nil
}

type renderPipeline struct {
	label    string
	layouts  []*bindGroupLayout
	program  gpu.RenderProgram
	buffers  []gpu.VertexBufferLayout
	topology gpu.PrimitiveTopology
	format   gpu.TextureFormat
	blend    gpu.BlendMode
}

func (p *renderPipeline) Release() {}

// CreateRenderPipeline creates a render pipeline from a host program.
func (d *Device) CreateRenderPipeline(desc *gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	program, ok := desc.Program.Host.(gpu.RenderProgram)
	if !ok {
		return nil, fmt.Errorf("soft: pipeline %q: program %q has no host render program", desc.Label, desc.Program.Label)
	}
	for _, l := range desc.Buffers {
		for _, a := range l.Attributes {
			if a.ShaderLocation >= gpu.MaxVertexLocations {
				return nil, fmt.Errorf("soft: pipeline %q: shader location %d out of range", desc.Label, a.ShaderLocation)
			}
			if a.Offset+uint64(a.Format.Components())*4 > l.ArrayStride {
				return nil, fmt.Errorf("soft: pipeline %q: attribute at location %d overruns stride %d",
					desc.Label, a.ShaderLocation, l.ArrayStride)
			}
		}
	}
	layouts, err := softLayouts(desc.Label, desc.BindGroupLayouts)
	if err != nil {
		return nil, err
	}
	return &renderPipeline{
		label:    desc.Label,
		layouts:  layouts,
		program:  program,
		buffers:  desc.Buffers,
		topology: desc.Topology,
		format:   desc.Format,
		blend:    desc.Blend,
	}, nil
}

func softLayouts(label string, in []gpu.BindGroupLayout) ([]*bindGroupLayout, error) {
	out := make([]*bindGroupLayout, len(in))
	for i, l := range in {
		sl, ok := l.(*bindGroupLayout)
		if !ok {
			return nil, fmt.Errorf("soft: pipeline %q: group %d layout from another device", label, i)
		}
		out[i] = sl
	}
	return out, nil
}

// ReadTexture copies a texture's contents.
func (d *Device) ReadTexture(tex gpu.Texture) (*image.RGBA, error) {
	t, ok := tex.(*texture)
	if !ok {
		return nil, errors.New("soft: texture from another device")
	}
	if t.released {
		return nil, fmt.Errorf("soft: reading %q: %w", t.label, ErrReleased)
	}
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	out := image.NewRGBA(t.img.Rect)
	copy(out.Pix, t.img.Pix)
	return out, nil
}

// ReadBuffer copies a buffer's contents.
func (d *Device) ReadBuffer(buf gpu.Buffer) ([]byte, error) {
	b, ok := buf.(*buffer)
	if !ok {
		return nil, errors.New("soft: buffer from another device")
	}
	if b.released {
		return nil, fmt.Errorf("soft: reading %q: %w", b.label, ErrReleased)
	}
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// WriteTexture replaces a texture's contents. The image must match the
// texture size.
func (d *Device) WriteTexture(tex gpu.Texture, img *image.RGBA) error {
	t, ok := tex.(*texture)
	if !ok {
		return errors.New("soft: texture from another device")
	}
	if img.Rect.Dx() != t.img.Rect.Dx() || img.Rect.Dy() != t.img.Rect.Dy() {
		return fmt.Errorf("soft: writing %q: image is %v, texture is %v", t.label, img.Rect.Size(), t.img.Rect.Size())
	}
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	for y := 0; y < t.img.Rect.Dy(); y++ {
		copy(t.img.Pix[y*t.img.Stride:y*t.img.Stride+t.img.Rect.Dx()*4],
			img.Pix[y*img.Stride:y*img.Stride+img.Rect.Dx()*4])
	}
	return nil
}
