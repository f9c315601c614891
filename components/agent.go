// Package components defines the data records shared between the host and the device.
package components

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AgentStride is the size of one agent record in the device buffer.
const AgentStride = 16

// Agent is a single point agent.
// Position is in normalized device coordinates, conceptually [-1, 1] on each
// axis. Heading is in radians and is not normalized.
type Agent struct {
	Position [2]float32
	Heading  float32
	_        uint32 // pads the record to AgentStride
}

// NewAgent creates an agent from three draws of randUnit, which must return
// values uniformly distributed in [0, 1).
// Draw order is position x, position y, heading.
func NewAgent(randUnit func() float32) Agent {
	var a Agent
	a.Position[0] = signedUnit(randUnit())
	a.Position[1] = signedUnit(randUnit())
	a.Heading = signedUnit(randUnit()) * math.Pi
	return a
}

func signedUnit(u float32) float32 {
	return u*2 - 1
}

// Encode writes the 16-byte little-endian record into dst.
func (a Agent) Encode(dst []byte) {
	_ = dst[AgentStride-1]
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(a.Position[0]))
	binary.LittleEndian.PutUint32(dst[4:], math.Float32bits(a.Position[1]))
	binary.LittleEndian.PutUint32(dst[8:], math.Float32bits(a.Heading))
	binary.LittleEndian.PutUint32(dst[12:], 0)
}

// DecodeAgent reads one record from src.
func DecodeAgent(src []byte) Agent {
	_ = src[AgentStride-1]
	var a Agent
	a.Position[0] = math.Float32frombits(binary.LittleEndian.Uint32(src[0:]))
	a.Position[1] = math.Float32frombits(binary.LittleEndian.Uint32(src[4:]))
	a.Heading = math.Float32frombits(binary.LittleEndian.Uint32(src[8:]))
	return a
}

// EncodeAgents packs agents into a contiguous device buffer image.
func EncodeAgents(agents []Agent) []byte {
	buf := make([]byte, len(agents)*AgentStride)
	for i, a := range agents {
		a.Encode(buf[i*AgentStride:])
	}
	return buf
}

// DecodeAgents unpacks a device buffer image.
func DecodeAgents(buf []byte) ([]Agent, error) {
	if len(buf)%AgentStride != 0 {
		return nil, fmt.Errorf("agent buffer length %d is not a multiple of %d", len(buf), AgentStride)
	}
	agents := make([]Agent, len(buf)/AgentStride)
	for i := range agents {
		agents[i] = DecodeAgent(buf[i*AgentStride:])
	}
	return agents, nil
}
