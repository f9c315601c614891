package soft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pthm-cable/slime/gpu"
)

const maxBindGroups = 4

// command is one recorded operation, executed at submit.
type command interface {
	exec(d *Device) error
}

type commandEncoder struct {
	device *Device
	label  string
	cmds   []command
	err    error
	open   bool // a pass is being recorded
	done   bool
}

// CreateCommandEncoder starts recording a command buffer.
func (d *Device) CreateCommandEncoder(label string) (gpu.CommandEncoder, error) {
	return &commandEncoder{device: d, label: label}, nil
}

func (e *commandEncoder) Release() {}

// fail records the first error; Finish returns it.
func (e *commandEncoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf("soft: encoder %q: "+format, append([]any{e.label}, args...)...)
	}
}

func (e *commandEncoder) begin() {
	if e.done {
		e.fail("pass begun after Finish")
	}
	if e.open {
		e.fail("pass begun while another pass is open")
	}
	e.open = true
}

func (e *commandEncoder) BeginComputePass(label string) gpu.ComputePassEncoder {
	e.begin()
	return &computePass{encoder: e, label: label}
}

func (e *commandEncoder) BeginRenderPass(desc *gpu.RenderPassDescriptor) gpu.RenderPassEncoder {
	e.begin()
	p := &renderPass{encoder: e, label: desc.Label}
	view, ok := desc.ColorAttachment.View.(*textureView)
	if !ok {
		e.fail("render pass %q: color attachment from another device", desc.Label)
		return p
	}
	if view.texture.usage&gpu.TextureUsageRenderAttachment == 0 {
		e.fail("render pass %q: texture %q is not a render attachment", desc.Label, view.texture.label)
	}
	p.target = view.texture
	if desc.ColorAttachment.LoadOp == gpu.LoadOpClear {
		e.cmds = append(e.cmds, &clearCmd{label: desc.Label, target: view.texture, color: desc.ColorAttachment.ClearValue})
	}
	return p
}

func (e *commandEncoder) Finish() (gpu.CommandBuffer, error) {
	if e.open {
		e.fail("Finish with an open pass")
	}
	e.done = true
	if e.err != nil {
		return nil, e.err
	}
	return &commandBuffer{cmds: e.cmds}, nil
}

type commandBuffer struct {
	cmds []command
}

func (c *commandBuffer) Release() {}

type computePass struct {
	encoder  *commandEncoder
	label    string
	pipeline *computePipeline
	groups   [maxBindGroups]*bindGroup
}

func (p *computePass) SetPipeline(pl gpu.ComputePipeline) {
	cp, ok := pl.(*computePipeline)
	if !ok {
		p.encoder.fail("compute pass %q: pipeline from another device", p.label)
		return
	}
	p.pipeline = cp
}

func (p *computePass) SetBindGroup(index uint32, g gpu.BindGroup) {
	bg, ok := g.(*bindGroup)
	if !ok || index >= maxBindGroups {
		p.encoder.fail("compute pass %q: bad bind group at index %d", p.label, index)
		return
	}
	p.groups[index] = bg
}

func (p *computePass) DispatchWorkgroups(x, y, z uint32) {
	if p.pipeline == nil {
		p.encoder.fail("compute pass %q: dispatch without pipeline", p.label)
		return
	}
	if err := checkGroups(p.pipeline.layouts, p.groups); err != nil {
		p.encoder.fail("compute pass %q: %v", p.label, err)
		return
	}
	p.encoder.cmds = append(p.encoder.cmds, &dispatchCmd{
		pass:     p.label,
		pipeline: p.pipeline,
		groups:   p.groups,
		grid:     [3]uint32{x, y, z},
	})
}

func (p *computePass) End() error {
	p.encoder.open = false
	return p.encoder.err
}

type renderPass struct {
	encoder  *commandEncoder
	label    string
	target   *texture
	pipeline *renderPipeline
	groups   [maxBindGroups]*bindGroup
	vertex   [gpu.MaxVertexLocations]*buffer
}

func (p *renderPass) SetPipeline(pl gpu.RenderPipeline) {
	rp, ok := pl.(*renderPipeline)
	if !ok {
		p.encoder.fail("render pass %q: pipeline from another device", p.label)
		return
	}
	p.pipeline = rp
}

func (p *renderPass) SetBindGroup(index uint32, g gpu.BindGroup) {
	bg, ok := g.(*bindGroup)
	if !ok || index >= maxBindGroups {
		p.encoder.fail("render pass %q: bad bind group at index %d", p.label, index)
		return
	}
	p.groups[index] = bg
}

func (p *renderPass) SetVertexBuffer(slot uint32, buf gpu.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || slot >= gpu.MaxVertexLocations {
		p.encoder.fail("render pass %q: bad vertex buffer at slot %d", p.label, slot)
		return
	}
	if b.usage&gpu.BufferUsageVertex == 0 {
		p.encoder.fail("render pass %q: buffer %q is not a vertex buffer", p.label, b.label)
		return
	}
	p.vertex[slot] = b
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if p.pipeline == nil {
		p.encoder.fail("render pass %q: draw without pipeline", p.label)
		return
	}
	if p.target == nil {
		return
	}
	if err := checkGroups(p.pipeline.layouts, p.groups); err != nil {
		p.encoder.fail("render pass %q: %v", p.label, err)
		return
	}
	for slot := range p.pipeline.buffers {
		if p.vertex[slot] == nil {
			p.encoder.fail("render pass %q: vertex buffer slot %d unset", p.label, slot)
			return
		}
	}
	p.encoder.cmds = append(p.encoder.cmds, &drawCmd{
		pass:          p.label,
		pipeline:      p.pipeline,
		groups:        p.groups,
		vertex:        p.vertex,
		target:        p.target,
		vertexCount:   vertexCount,
		instanceCount: instanceCount,
		firstVertex:   firstVertex,
		firstInstance: firstInstance,
	})
}

func (p *renderPass) End() error {
	p.encoder.open = false
	return p.encoder.err
}

// checkGroups verifies the bound groups match the pipeline layouts and
// that no texture is bound for both reading and writing.
func checkGroups(layouts []*bindGroupLayout, groups [maxBindGroups]*bindGroup) error {
	if len(layouts) > maxBindGroups {
		return fmt.Errorf("%d bind groups exceed the limit of %d", len(layouts), maxBindGroups)
	}
	read := make(map[*texture]bool)
	written := make(map[*texture]bool)
	for i, l := range layouts {
		g := groups[i]
		if g == nil {
			return fmt.Errorf("bind group %d unset", i)
		}
		if g.layout != l {
			return fmt.Errorf("bind group %d (%q) does not match layout %q", i, g.label, l.label)
		}
		for _, b := range g.bindings {
			if b.view == nil {
				continue
			}
			if b.kind == gpu.BindingWriteOnlyStorageTexture {
				written[b.view.texture] = true
			} else {
				read[b.view.texture] = true
			}
		}
	}
	for t := range written {
		if read[t] {
			return fmt.Errorf("texture %q bound for both reading and writing", t.label)
		}
	}
	return nil
}

type queue struct {
	device *Device
	mu     sync.Mutex
}

// WriteBuffer copies data into a buffer. The write is visible to every
// later submission.
func (q *queue) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*buffer)
	if !ok {
		return errors.New("soft: buffer from another device")
	}
	if b.released {
		return fmt.Errorf("soft: writing %q: %w", b.label, ErrReleased)
	}
	if b.usage&gpu.BufferUsageCopyDst == 0 {
		return fmt.Errorf("soft: writing %q: buffer lacks copy-dst usage", b.label)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("soft: writing %d bytes at %d overruns %q (%d bytes)", len(data), offset, b.label, len(b.data))
	}
	q.mu.Lock()
	copy(b.data[offset:], data)
	q.mu.Unlock()
	return nil
}

// Submit executes the command buffers in order, synchronously.
func (q *queue) Submit(cmds ...gpu.CommandBuffer) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range cmds {
		cb, ok := c.(*commandBuffer)
		if !ok {
			return errors.New("soft: command buffer from another device")
		}
		for _, cmd := range cb.cmds {
			if err := cmd.exec(q.device); err != nil {
				return err
			}
		}
	}
	return nil
}
