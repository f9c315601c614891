package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/slime/components"
	"github.com/pthm-cable/slime/config"
)

// gridField is an in-memory trail map for kernel tests.
type gridField struct {
	w, h int
	v    [][4]float32
}

func newGridField(w, h int) *gridField {
	return &gridField{w: w, h: h, v: make([][4]float32, w*h)}
}

func (g *gridField) Size() (int, int) { return g.w, g.h }
func (g *gridField) Texel(x, y int) [4]float32 { return g.v[y*g.w+x] }
func (g *gridField) set(x, y int, v float32) { g.v[y*g.w+x] = [4]float32{v, v, v, v} }

func TestParamsLayout(t *testing.T) {
	wp := WorldParams{DecayRate: 0.5, DiffuseRadius: 3}
	b := wp.Bytes()
	if len(b) != WorldParamsSize {
		t.Fatalf("world params = %d bytes", len(b))
	}
	// 0.5 = 0x3F000000
	if b[3] != 0x3f || b[4] != 3 {
		t.Errorf("world params bytes = %x", b)
	}
	if got, err := ParseWorldParams(b); err != nil || got != wp {
		t.Errorf("ParseWorldParams = %+v, %v", got, err)
	}

	ap := AgentParams{Speed: 1, TurningSpeed: 2, SensorDistance: 3, SensorAngle: 4, SensorRadius: 5, FrameNumber: 0xdeadbeef}
	b = ap.Bytes()
	if len(b) != AgentParamsSize {
		t.Fatalf("agent params = %d bytes", len(b))
	}
	if b[16] != 5 || b[20] != 0xef || b[23] != 0xde {
		t.Errorf("agent params bytes = %x", b)
	}
	for _, pad := range b[24:] {
		if pad != 0 {
			t.Errorf("padding not zeroed: %x", b)
		}
	}
	if got, err := ParseAgentParams(b); err != nil || got != ap {
		t.Errorf("ParseAgentParams = %+v, %v", got, err)
	}

	dp := DrawParams{Scale: 2}
	if got, err := ParseDrawParams(dp.Bytes()); err != nil || got != dp {
		t.Errorf("ParseDrawParams = %+v, %v", got, err)
	}
	if _, err := ParseAgentParams(make([]byte, 8)); err == nil {
		t.Error("expected error for short agent params")
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	wp := NewWorldParams(cfg.World)
	if wp.DecayRate != float32(0.002) || wp.DiffuseRadius != 1 {
		t.Errorf("world params = %+v", wp)
	}
	ap := NewAgentParams(cfg.Agent)
	if ap.SensorRadius != 3 || ap.FrameNumber != 0 {
		t.Errorf("agent params = %+v", ap)
	}
	if NewDrawParams(cfg.Agent).Scale != 0 {
		t.Error("default draw scale should be 0")
	}
}

func TestBoxDecayIdentity(t *testing.T) {
	f := newGridField(5, 4)
	for i := range f.v {
		x := float32(i%7) / 6
		f.v[i] = [4]float32{x, 1 - x, x / 2, 1}
	}

	var k BoxDecay
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			if got := k.Diffuse(f, x, y, WorldParams{}); got != f.Texel(x, y) {
				t.Fatalf("texel (%d,%d) = %v, want %v", x, y, got, f.Texel(x, y))
			}
		}
	}
}

func TestBoxDecayDiffusesAndWraps(t *testing.T) {
	f := newGridField(4, 4)
	f.set(0, 0, 0.9)

	var k BoxDecay
	p := WorldParams{DiffuseRadius: 1}

	// (3,3) is a toroidal neighbour of (0,0)
	got := k.Diffuse(f, 3, 3, p)
	if math.Abs(float64(got[0]-0.1)) > 1e-6 {
		t.Errorf("wrapped neighbour = %v, want 0.1", got[0])
	}
	if got := k.Diffuse(f, 2, 2, p); got[0] != 0 {
		t.Errorf("far texel = %v, want 0", got[0])
	}

	p.DecayRate = 0.5
	if got := k.Diffuse(f, 0, 0, p); got[0] != 0 {
		t.Errorf("decayed texel = %v, want clamped 0", got[0])
	}
}

func TestSlimeStepperZeroSpeedKeepsPosition(t *testing.T) {
	f := newGridField(16, 16)
	f.set(3, 7, 1)

	a := components.Agent{Position: [2]float32{0.3, -0.4}, Heading: 1}
	start := a.Position
	var s SlimeStepper
	p := AgentParams{TurningSpeed: 20, SensorDistance: 0.2, SensorAngle: 30, SensorRadius: 1}
	for frame := uint32(0); frame < 100; frame++ {
		p.FrameNumber = frame
		tx, ty, deposit := s.Step(&a, 7, f, p)
		if a.Position != start {
			t.Fatalf("frame %d: position moved to %v", frame, a.Position)
		}
		wx, wy := TexelOf(start, 16, 16)
		if tx != wx || ty != wy {
			t.Fatalf("texel (%d,%d), want (%d,%d)", tx, ty, wx, wy)
		}
		if deposit {
			t.Fatalf("frame %d: stationary agent deposited", frame)
		}
		if a.Heading < -math.Pi || a.Heading > math.Pi {
			t.Fatalf("heading %v not normalized", a.Heading)
		}
	}
}

func TestSlimeStepperTurnsTowardsTrail(t *testing.T) {
	const n = 64
	f := newGridField(n, n)
	// A bright band above the agent (NDC y > 0 is texture y < n/2)
	for x := 0; x < n; x++ {
		for y := 0; y < n/2-2; y++ {
			f.set(x, y, 1)
		}
	}

	var s SlimeStepper
	p := AgentParams{TurningSpeed: 30, SensorDistance: 0.2, SensorAngle: 45, SensorRadius: 0}
	turnedLeft := 0
	for i := uint32(0); i < 50; i++ {
		a := components.Agent{Heading: 0} // facing +x, band is to the left
		p.FrameNumber = i
		s.Step(&a, i, f, p)
		if a.Heading > 0 {
			turnedLeft++
		}
		if a.Heading < 0 {
			t.Fatalf("agent %d turned away from the trail: %v", i, a.Heading)
		}
	}
	if turnedLeft < 45 {
		t.Errorf("only %d/50 agents turned towards the trail", turnedLeft)
	}
}

func TestSlimeStepperWrapsPosition(t *testing.T) {
	f := newGridField(8, 8)
	a := components.Agent{Position: [2]float32{0.999, 0}, Heading: 0}
	var s SlimeStepper
	tx, ty, deposit := s.Step(&a, 0, f, AgentParams{Speed: 6, SensorDistance: 0.1})
	if !deposit {
		t.Error("moving agent did not deposit")
	}
	if wx, wy := TexelOf(a.Position, 8, 8); tx != wx || ty != wy {
		t.Errorf("texel (%d,%d), want (%d,%d)", tx, ty, wx, wy)
	}
	if a.Position[0] < -1 || a.Position[0] >= 1 {
		t.Fatalf("x = %v not wrapped", a.Position[0])
	}
	if a.Position[0] > 0 {
		t.Errorf("x = %v, want wrapped to the left edge", a.Position[0])
	}
}

func TestTexelOf(t *testing.T) {
	tests := []struct {
		pos    [2]float32
		wx, wy int
	}{
		{[2]float32{-1, 1}, 0, 0},
		{[2]float32{0, 0}, 2, 2},
		{[2]float32{0.99, -0.99}, 3, 3},
		{[2]float32{1, -1}, 0, 0}, // wraps
	}
	for _, tt := range tests {
		x, y := TexelOf(tt.pos, 4, 4)
		if x != tt.wx || y != tt.wy {
			t.Errorf("TexelOf(%v) = (%d,%d), want (%d,%d)", tt.pos, x, y, tt.wx, tt.wy)
		}
	}
}

func TestWrapSigned(t *testing.T) {
	tests := []struct{ in, want float32 }{
		{0.5, 0.5},
		{-1, -1},
		{1, -1},
		{1.25, -0.75},
		{-1.5, 0.5},
		{5, -1},
	}
	for _, tt := range tests {
		if got := wrapSigned(tt.in); math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("wrapSigned(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUnitHashRange(t *testing.T) {
	for i := uint32(0); i < 100000; i += 7 {
		u := unitHash(hash(i))
		if u < 0 || u >= 1 {
			t.Fatalf("unitHash(hash(%d)) = %v", i, u)
		}
	}
}
