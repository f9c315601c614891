package systems

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pthm-cable/slime/config"
)

// Uniform record sizes. WGSL rounds uniform structs up to 16 bytes.
const (
	WorldParamsSize = 16
	AgentParamsSize = 32
	DrawParamsSize  = 16
)

// WorldParams drives the decay/diffuse kernel.
type WorldParams struct {
	DecayRate     float32
	DiffuseRadius uint32
}

// NewWorldParams converts the configured world section.
func NewWorldParams(c config.WorldConfig) WorldParams {
	return WorldParams{
		DecayRate:     float32(c.DecayRate),
		DiffuseRadius: uint32(c.DiffuseRadius),
	}
}

// Bytes packs the record in device layout.
func (p WorldParams) Bytes() []byte {
	b := make([]byte, WorldParamsSize)
	putF32(b[0:], p.DecayRate)
	binary.LittleEndian.PutUint32(b[4:], p.DiffuseRadius)
	return b
}

// ParseWorldParams unpacks a device record.
func ParseWorldParams(b []byte) (WorldParams, error) {
	if len(b) < WorldParamsSize {
		return WorldParams{}, fmt.Errorf("world params: %d bytes, want %d", len(b), WorldParamsSize)
	}
	return WorldParams{
		DecayRate:     getF32(b[0:]),
		DiffuseRadius: binary.LittleEndian.Uint32(b[4:]),
	}, nil
}

// AgentParams drives the agent step kernel. FrameNumber is the only field
// rewritten during a run.
type AgentParams struct {
	Speed          float32
	TurningSpeed   float32
	SensorDistance float32
	SensorAngle    float32 // degrees
	SensorRadius   uint32
	FrameNumber    uint32
}

// NewAgentParams converts the configured agent section.
func NewAgentParams(c config.AgentConfig) AgentParams {
	return AgentParams{
		Speed:          float32(c.Speed),
		TurningSpeed:   float32(c.TurningSpeed),
		SensorDistance: float32(c.SensorDistance),
		SensorAngle:    float32(c.SensorAngle),
		SensorRadius:   uint32(c.SensorRadius),
	}
}

// Bytes packs the record in device layout.
func (p AgentParams) Bytes() []byte {
	b := make([]byte, AgentParamsSize)
	putF32(b[0:], p.Speed)
	putF32(b[4:], p.TurningSpeed)
	putF32(b[8:], p.SensorDistance)
	putF32(b[12:], p.SensorAngle)
	binary.LittleEndian.PutUint32(b[16:], p.SensorRadius)
	binary.LittleEndian.PutUint32(b[20:], p.FrameNumber)
	return b
}

// ParseAgentParams unpacks a device record.
func ParseAgentParams(b []byte) (AgentParams, error) {
	if len(b) < AgentParamsSize {
		return AgentParams{}, fmt.Errorf("agent params: %d bytes, want %d", len(b), AgentParamsSize)
	}
	return AgentParams{
		Speed:          getF32(b[0:]),
		TurningSpeed:   getF32(b[4:]),
		SensorDistance: getF32(b[8:]),
		SensorAngle:    getF32(b[12:]),
		SensorRadius:   binary.LittleEndian.Uint32(b[16:]),
		FrameNumber:    binary.LittleEndian.Uint32(b[20:]),
	}, nil
}

// DrawParams drives the agent draw pass.
type DrawParams struct {
	Scale float32
}

// NewDrawParams converts the configured draw scale.
func NewDrawParams(c config.AgentConfig) DrawParams {
	return DrawParams{Scale: float32(c.DrawScale)}
}

// Bytes packs the record in device layout.
func (p DrawParams) Bytes() []byte {
	b := make([]byte, DrawParamsSize)
	putF32(b[0:], p.Scale)
	return b
}

// ParseDrawParams unpacks a device record.
func ParseDrawParams(b []byte) (DrawParams, error) {
	if len(b) < DrawParamsSize {
		return DrawParams{}, fmt.Errorf("draw params: %d bytes, want %d", len(b), DrawParamsSize)
	}
	return DrawParams{Scale: getF32(b[0:])}, nil
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
