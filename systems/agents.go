package systems

import (
	"math"

	"github.com/pthm-cable/slime/components"
)

// StepDT is the fixed simulation timestep of one frame.
const StepDT = 1.0 / 60

// AgentStepper advances one agent by one frame, sensing the trail map, and
// returns the texel under the agent and whether it deposits there.
type AgentStepper interface {
	Step(a *components.Agent, index uint32, trail TexelReader, p AgentParams) (tx, ty int, deposit bool)
}

// SlimeStepper is the three-sensor slime mould rule: steer towards the
// strongest of the left, forward and right trail samples, then move forward
// and wrap around the edges. Agents that do not move leave no trail.
type SlimeStepper struct{}

func (SlimeStepper) Step(a *components.Agent, index uint32, trail TexelReader, p AgentParams) (int, int, bool) {
	w, h := trail.Size()
	heading := a.Heading
	angle := p.SensorAngle * (math.Pi / 180)
	radius := int(p.SensorRadius)

	left := sense(a, heading+angle, p.SensorDistance, radius, trail, w, h)
	forward := sense(a, heading, p.SensorDistance, radius, trail, w, h)
	right := sense(a, heading-angle, p.SensorDistance, radius, trail, w, h)

	r := unitHash(hash(index ^ hash(p.FrameNumber)))
	turn := p.TurningSpeed * StepDT

	switch {
	case forward > left && forward > right:
		// keep heading
	case forward < left && forward < right:
		heading += (r - 0.5) * 2 * turn
	case right > left:
		heading -= r * turn
	case left > right:
		heading += r * turn
	}
	heading = normalizeAngle(heading)

	step := p.Speed * StepDT
	if step != 0 {
		a.Position[0] = wrapSigned(a.Position[0] + fastCos(heading)*step)
		a.Position[1] = wrapSigned(a.Position[1] + fastSin(heading)*step)
	}
	a.Heading = heading

	tx, ty := TexelOf(a.Position, w, h)
	return tx, ty, step != 0
}

// sense sums trail intensity over the sensor window at distance along dir.
func sense(a *components.Agent, dir, distance float32, radius int, trail TexelReader, w, h int) float32 {
	pos := [2]float32{
		a.Position[0] + fastCos(dir)*distance,
		a.Position[1] + fastSin(dir)*distance,
	}
	cx, cy := TexelOf(pos, w, h)

	var sum float32
	for dy := -radius; dy <= radius; dy++ {
		sy := modInt(cy+dy, h)
		for dx := -radius; dx <= radius; dx++ {
			sum += Intensity(trail.Texel(modInt(cx+dx, w), sy))
		}
	}
	return sum
}

// TexelOf maps a position in normalized device coordinates to the trail
// map texel under it. Y points up in NDC and down in the texture.
func TexelOf(pos [2]float32, w, h int) (int, int) {
	x := int(math.Floor(float64((pos[0] + 1) * 0.5 * float32(w))))
	y := int(math.Floor(float64((1 - pos[1]) * 0.5 * float32(h))))
	return modInt(x, w), modInt(y, h)
}
