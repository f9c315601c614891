package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/pthm-cable/slime/gpu"
)

// Queue wraps the device queue.
type Queue struct {
	queue *wgpu.Queue
}

func (q *Queue) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("webgpu: write to foreign buffer")
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("webgpu: write of %d bytes at %d overflows %d byte buffer", len(data), offset, b.size)
	}
	q.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

func (q *Queue) Submit(cmds ...gpu.CommandBuffer) error {
	bufs := make([]*wgpu.CommandBuffer, len(cmds))
	for i, c := range cmds {
		cb, ok := c.(*commandBuffer)
		if !ok {
			return fmt.Errorf("webgpu: submitting foreign command buffer")
		}
		bufs[i] = cb.buf
	}
	q.queue.Submit(bufs...)
	return nil
}

type commandBuffer struct{ buf *wgpu.CommandBuffer }

func (c *commandBuffer) Release() { c.buf.Release() }

type commandEncoder struct {
	enc *wgpu.CommandEncoder
	err error
}

func (d *Device) CreateCommandEncoder(label string) (gpu.CommandEncoder, error) {
	enc, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, wrap("creating command encoder", err)
	}
	return &commandEncoder{enc: enc}, nil
}

func (e *commandEncoder) Release() { e.enc.Release() }

func (e *commandEncoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf("webgpu: "+format, args...)
	}
}

func (e *commandEncoder) BeginComputePass(label string) gpu.ComputePassEncoder {
	return &computePass{
		encoder: e,
		pass:    e.enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label}),
	}
}

func (e *commandEncoder) BeginRenderPass(desc *gpu.RenderPassDescriptor) gpu.RenderPassEncoder {
	view, ok := desc.ColorAttachment.View.(*textureView)
	if !ok {
		e.fail("render pass %q: foreign color attachment", desc.Label)
		return &renderPass{encoder: e}
	}
	load := wgpu.LoadOpClear
	if desc.ColorAttachment.LoadOp == gpu.LoadOpLoad {
		load = wgpu.LoadOpLoad
	}
	c := desc.ColorAttachment.ClearValue
	pass := e.enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: desc.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view.view,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: c.R, G: c.G, B: c.B, A: c.A},
		}},
	})
	return &renderPass{encoder: e, pass: pass}
}

func (e *commandEncoder) Finish() (gpu.CommandBuffer, error) {
	if e.err != nil {
		return nil, e.err
	}
	buf, err := e.enc.Finish(nil)
	if err != nil {
		return nil, wrap("finishing commands", err)
	}
	return &commandBuffer{buf: buf}, nil
}

type computePass struct {
	encoder *commandEncoder
	pass    *wgpu.ComputePassEncoder
}

func (p *computePass) SetPipeline(pl gpu.ComputePipeline) {
	cp, ok := pl.(*computePipeline)
	if !ok {
		p.encoder.fail("compute pass: foreign pipeline")
		return
	}
	p.pass.SetPipeline(cp.pipeline)
}

func (p *computePass) SetBindGroup(index uint32, g gpu.BindGroup) {
	bg, ok := g.(*bindGroup)
	if !ok {
		p.encoder.fail("compute pass: foreign bind group at %d", index)
		return
	}
	p.pass.SetBindGroup(index, bg.group, nil)
}

func (p *computePass) DispatchWorkgroups(x, y, z uint32) {
	p.pass.DispatchWorkgroups(x, y, z)
}

func (p *computePass) End() error {
	p.pass.End()
	p.pass.Release()
	return p.encoder.err
}

type renderPass struct {
	encoder *commandEncoder
	pass    *wgpu.RenderPassEncoder
}

func (p *renderPass) SetPipeline(pl gpu.RenderPipeline) {
	rp, ok := pl.(*renderPipeline)
	if !ok || p.pass == nil {
		p.encoder.fail("render pass: foreign pipeline")
		return
	}
	p.pass.SetPipeline(rp.pipeline)
}

func (p *renderPass) SetBindGroup(index uint32, g gpu.BindGroup) {
	bg, ok := g.(*bindGroup)
	if !ok || p.pass == nil {
		p.encoder.fail("render pass: foreign bind group at %d", index)
		return
	}
	p.pass.SetBindGroup(index, bg.group, nil)
}

func (p *renderPass) SetVertexBuffer(slot uint32, buf gpu.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || p.pass == nil {
		p.encoder.fail("render pass: foreign vertex buffer at slot %d", slot)
		return
	}
	p.pass.SetVertexBuffer(slot, b.buf, 0, wgpu.WholeSize)
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if p.pass == nil {
		return
	}
	p.pass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *renderPass) End() error {
	if p.pass != nil {
		p.pass.End()
		p.pass.Release()
	}
	return p.encoder.err
}
