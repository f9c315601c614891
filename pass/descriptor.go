package pass

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/slime/gpu"
	"github.com/pthm-cable/slime/sim"
)

// Source names the resource a binding slot is filled with.
type Source int

const (
	// SourceParams is the pass's own uniform buffer.
	SourceParams Source = iota
	// SourceAgents is the agent buffer.
	SourceAgents
	// SourceSampler is the shared trail sampler.
	SourceSampler
	// SourceTrailRead is trail map i in the group built for parity i.
	SourceTrailRead
	// SourceTrailWrite is trail map 1-i in the group built for parity i.
	SourceTrailWrite
	// SourceTrailLatest is also trail map 1-i, bound for sampling: the map
	// the simulation passes finished writing this frame.
	SourceTrailLatest
)

func (s Source) String() string {
	switch s {
	case SourceParams:
		return "params"
	case SourceAgents:
		return "agents"
	case SourceSampler:
		return "sampler"
	case SourceTrailRead:
		return "trail-read"
	case SourceTrailWrite:
		return "trail-write"
	case SourceTrailLatest:
		return "trail-latest"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

func (s Source) perParity() bool {
	return s == SourceTrailRead || s == SourceTrailWrite || s == SourceTrailLatest
}

// Slot declares one binding of a pass. The binding number is the slot's
// index in its group.
type Slot struct {
	Type       gpu.BindingType
	Visibility gpu.ShaderStage
	Source     Source
}

// Descriptor declares the bindings of a pass. Common slots form group 0
// and are bound once; Parity slots form group 1, built once per frame
// parity. A pass without per-parity resources leaves Parity empty.
type Descriptor struct {
	Name   string
	Common []Slot
	Parity []Slot
}

// Resources supplies what a Descriptor refers to.
type Resources struct {
	State  *sim.State
	Params gpu.Buffer
	// ParamsSize is the minimum binding size for SourceParams.
	ParamsSize uint64
}

// Bindings are the layouts and groups built from a Descriptor.
type Bindings struct {
	Layouts []gpu.BindGroupLayout
	Common  gpu.BindGroup
	Parity  [2]gpu.BindGroup
}

// groupSetter is satisfied by both pass encoders.
type groupSetter interface {
	SetBindGroup(index uint32, g gpu.BindGroup)
}

// Set binds group 0 and, if present, the group 1 for the given parity.
func (b *Bindings) Set(enc groupSetter, parity int) {
	enc.SetBindGroup(0, b.Common)
	if b.Parity[parity] != nil {
		enc.SetBindGroup(1, b.Parity[parity])
	}
}

// Release frees every layout and group.
func (b *Bindings) Release() {
	for _, g := range b.Parity {
		if g != nil {
			g.Release()
		}
	}
	if b.Common != nil {
		b.Common.Release()
	}
	for _, l := range b.Layouts {
		l.Release()
	}
}

// Build creates the layouts and bind groups declared by d.
func Build(dev gpu.Device, d Descriptor, res Resources) (*Bindings, error) {
	if len(d.Common) == 0 {
		return nil, fmt.Errorf("%s: no common bindings", d.Name)
	}
	if res.State == nil {
		return nil, errors.New(d.Name + ": no simulation state")
	}
	for i, s := range d.Common {
		if s.Source.perParity() {
			return nil, fmt.Errorf("%s: common binding %d uses per-parity source %v", d.Name, i, s.Source)
		}
	}

	b := &Bindings{}
	common, err := buildLayout(dev, d.Name+" Common Bind Group Layout", d.Common, res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	b.Layouts = append(b.Layouts, common)

	b.Common, err = buildGroup(dev, d.Name+" Common Bind Group", common, d.Common, res, 0)
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}

	if len(d.Parity) == 0 {
		return b, nil
	}

	trail, err := buildLayout(dev, d.Name+" Trail Bind Group Layout", d.Parity, res)
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	b.Layouts = append(b.Layouts, trail)

	for i := range b.Parity {
		b.Parity[i], err = buildGroup(dev, fmt.Sprintf("%s Trail Bind Group #%d", d.Name, i), trail, d.Parity, res, i)
		if err != nil {
			b.Release()
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	return b, nil
}

func buildLayout(dev gpu.Device, label string, slots []Slot, res Resources) (gpu.BindGroupLayout, error) {
	entries := make([]gpu.BindGroupLayoutEntry, len(slots))
	for i, s := range slots {
		e := gpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: s.Visibility,
			Type:       s.Type,
		}
		switch s.Source {
		case SourceParams:
			e.MinBindingSize = res.ParamsSize
		case SourceAgents:
			e.MinBindingSize = res.State.Agents().Size()
		case SourceTrailWrite:
			e.Format = sim.TrailFormat
		}
		entries[i] = e
	}
	return dev.CreateBindGroupLayout(&gpu.BindGroupLayoutDescriptor{Label: label, Entries: entries})
}

func buildGroup(dev gpu.Device, label string, layout gpu.BindGroupLayout, slots []Slot, res Resources, parity int) (gpu.BindGroup, error) {
	entries := make([]gpu.BindGroupEntry, len(slots))
	for i, s := range slots {
		e := gpu.BindGroupEntry{Binding: uint32(i)}
		switch s.Source {
		case SourceParams:
			if res.Params == nil {
				return nil, fmt.Errorf("binding %d wants params but the pass has none", i)
			}
			e.Buffer = res.Params
		case SourceAgents:
			e.Buffer = res.State.Agents()
		case SourceSampler:
			e.Sampler = res.State.Sampler()
		case SourceTrailRead:
			e.TextureView = res.State.View(parity)
		case SourceTrailWrite, SourceTrailLatest:
			e.TextureView = res.State.View(1 - parity)
		default:
			return nil, fmt.Errorf("binding %d has unknown source %v", i, s.Source)
		}
		entries[i] = e
	}
	return dev.CreateBindGroup(&gpu.BindGroupDescriptor{Label: label, Layout: layout, Entries: entries})
}

// workgroups is ceil(n / size).
func workgroups(n, size uint32) uint32 {
	return (n + size - 1) / size
}
