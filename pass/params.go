// Package pass builds the four per-frame passes: trail decay/diffuse,
// agent update, trail draw and agent draw. Each pass owns its pipeline,
// its bind groups and its parameter block; the simulation state owns the
// resources the passes bind.
package pass

import (
	"fmt"

	"github.com/pthm-cable/slime/gpu"
)

// Uniform is a parameter record with a fixed device layout.
type Uniform interface {
	Bytes() []byte
}

// Params is a typed parameter record mirrored in a uniform buffer.
type Params[D Uniform] struct {
	data   D
	size   uint64
	buffer gpu.Buffer
}

// NewParams uploads data into a new uniform buffer.
func NewParams[D Uniform](dev gpu.Device, name string, data D) (*Params[D], error) {
	b := data.Bytes()
	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Label:    name + " Params Buffer",
		Usage:    gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
		Contents: b,
	})
	if err != nil {
		return nil, fmt.Errorf("%s params: %w", name, err)
	}
	return &Params[D]{data: data, size: uint64(len(b)), buffer: buf}, nil
}

// Data returns the host copy of the record.
func (p *Params[D]) Data() D { return p.data }

// Update applies f to the host copy and writes the result to the device.
func (p *Params[D]) Update(q gpu.Queue, f func(*D)) error {
	f(&p.data)
	return q.WriteBuffer(p.buffer, 0, p.data.Bytes())
}

// Buffer returns the uniform buffer.
func (p *Params[D]) Buffer() gpu.Buffer { return p.buffer }

// Size is the byte size of the record, used as the minimum binding size.
func (p *Params[D]) Size() uint64 { return p.size }

// Release frees the uniform buffer.
func (p *Params[D]) Release() { p.buffer.Release() }
