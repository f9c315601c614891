// Package sim owns the simulation state: the agent buffer, the trail map
// pair and the frame clock that decides which trail map is read and which
// is written.
package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pthm-cable/slime/components"
	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/gpu"
)

// TrailFormat is the texel format of both trail maps.
const TrailFormat = gpu.TextureFormatRGBA8Unorm

// State holds every resource shared between passes. Handles are created
// once in New and never replaced.
type State struct {
	width, height uint32
	numAgents     uint32

	agents  gpu.Buffer
	trail   [2]gpu.Texture
	views   [2]gpu.TextureView
	sampler gpu.Sampler

	frame uint64
}

// New allocates the simulation state on dev. Agents are drawn from a PRNG
// seeded with cfg.RandomSeed, so equal configs give equal initial states.
func New(dev gpu.Device, cfg *config.Config) (*State, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("sim: invalid trail size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.NumAgents < 0 || int64(cfg.NumAgents) > math.MaxUint32 {
		return nil, fmt.Errorf("sim: invalid agent count %d", cfg.NumAgents)
	}

	s := &State{
		width:     uint32(cfg.Width),
		height:    uint32(cfg.Height),
		numAgents: uint32(cfg.NumAgents),
	}

	rng := rand.New(rand.NewPCG(cfg.RandomSeed, cfg.RandomSeed))
	agents := make([]components.Agent, cfg.NumAgents)
	for i := range agents {
		agents[i] = components.NewAgent(rng.Float32)
	}
	contents := components.EncodeAgents(agents)
	if len(contents) == 0 {
		// Zero-sized bindings are invalid; keep one unused record.
		contents = make([]byte, components.AgentStride)
	}

	var err error
	s.agents, err = dev.CreateBuffer(&gpu.BufferDescriptor{
		Label:    "Agents Buffer",
		Usage:    gpu.BufferUsageVertex | gpu.BufferUsageStorage | gpu.BufferUsageCopyDst | gpu.BufferUsageCopySrc,
		Contents: contents,
	})
	if err != nil {
		return nil, fmt.Errorf("sim: agent buffer: %w", err)
	}

	for i := range s.trail {
		s.trail[i], err = dev.CreateTexture(&gpu.TextureDescriptor{
			Label:  fmt.Sprintf("Trail Texture #%d", i),
			Width:  s.width,
			Height: s.height,
			Format: TrailFormat,
			Usage:  gpu.TextureUsageTextureBinding | gpu.TextureUsageStorageBinding | gpu.TextureUsageCopySrc,
		})
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("sim: trail texture %d: %w", i, err)
		}
		s.views[i], err = s.trail[i].CreateView()
		if err != nil {
			s.Release()
			return nil, fmt.Errorf("sim: trail view %d: %w", i, err)
		}
	}

	s.sampler, err = dev.CreateSampler(&gpu.SamplerDescriptor{
		Label:        "Trail Sampler",
		AddressMode:  gpu.AddressModeClampToEdge,
		MagFilter:    gpu.FilterModeLinear,
		MinFilter:    gpu.FilterModeLinear,
		MipmapFilter: gpu.FilterModeLinear,
	})
	if err != nil {
		s.Release()
		return nil, fmt.Errorf("sim: sampler: %w", err)
	}

	return s, nil
}

// Update advances the frame clock.
func (s *State) Update() {
	s.frame++
}

// FrameNumber returns the number of frames begun so far.
func (s *State) FrameNumber() uint64 { return s.frame }

// FrameParam is the frame number as carried in the agent parameters.
func (s *State) FrameParam() uint32 { return uint32(s.frame % math.MaxUint32) }

// Parity is frame % 2.
func (s *State) Parity() int { return int(s.frame % 2) }

// ReadIndex is the trail map the simulation passes read this frame.
func (s *State) ReadIndex() int { return s.Parity() }

// WriteIndex is the trail map the simulation passes write this frame and
// the one the world draw shows.
func (s *State) WriteIndex() int { return 1 - s.Parity() }

func (s *State) View(i int) gpu.TextureView { return s.views[i] }
func (s *State) Texture(i int) gpu.Texture  { return s.trail[i] }
func (s *State) Sampler() gpu.Sampler       { return s.sampler }
func (s *State) Agents() gpu.Buffer         { return s.agents }
func (s *State) NumAgents() uint32          { return s.numAgents }

// Dimensions returns the trail map size.
func (s *State) Dimensions() (width, height uint32) { return s.width, s.height }

// Release frees every resource. The state is unusable afterwards.
func (s *State) Release() {
	if s.sampler != nil {
		s.sampler.Release()
	}
	for i := range s.trail {
		if s.views[i] != nil {
			s.views[i].Release()
		}
		if s.trail[i] != nil {
			s.trail[i].Release()
		}
	}
	if s.agents != nil {
		s.agents.Release()
	}
}

// ReadAgents copies the agent records back from the device. Providers that
// cannot read buffers return an error.
func (s *State) ReadAgents(dev gpu.Device) ([]components.Agent, error) {
	r, ok := dev.(gpu.BufferReader)
	if !ok {
		return nil, errors.New("sim: device cannot read buffers")
	}
	b, err := r.ReadBuffer(s.agents)
	if err != nil {
		return nil, fmt.Errorf("sim: read agents: %w", err)
	}
	agents, err := components.DecodeAgents(b[:int(s.numAgents)*components.AgentStride])
	if err != nil {
		return nil, fmt.Errorf("sim: read agents: %w", err)
	}
	return agents, nil
}
