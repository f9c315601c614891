package components

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestNewAgentDrawOrder(t *testing.T) {
	draws := []float32{0, 0.75, 0.5}
	i := 0
	next := func() float32 {
		v := draws[i]
		i++
		return v
	}

	a := NewAgent(next)

	if i != 3 {
		t.Fatalf("NewAgent used %d draws, want 3", i)
	}
	if a.Position[0] != -1 {
		t.Errorf("pos.x = %v, want -1", a.Position[0])
	}
	if a.Position[1] != 0.5 {
		t.Errorf("pos.y = %v, want 0.5", a.Position[1])
	}
	if a.Heading != 0 {
		t.Errorf("heading = %v, want 0", a.Heading)
	}
}

func TestNewAgentRanges(t *testing.T) {
	rng := rand.New(rand.NewPCG(24, 24))
	for range 10000 {
		a := NewAgent(rng.Float32)
		for axis, p := range a.Position {
			if p < -1 || p > 1 {
				t.Fatalf("position[%d] = %v out of [-1, 1]", axis, p)
			}
		}
		if a.Heading < -math.Pi || a.Heading > math.Pi {
			t.Fatalf("heading = %v out of [-pi, pi]", a.Heading)
		}
	}
}

func TestAgentLayout(t *testing.T) {
	a := Agent{Position: [2]float32{1.5, -0.25}, Heading: 3}
	buf := make([]byte, AgentStride)
	for i := range buf {
		buf[i] = 0xff
	}
	a.Encode(buf)

	// 1.5 = 0x3FC00000, -0.25 = 0xBE800000, 3 = 0x40400000, little-endian
	want := []byte{
		0x00, 0x00, 0xc0, 0x3f,
		0x00, 0x00, 0x80, 0xbe,
		0x00, 0x00, 0x40, 0x40,
		0x00, 0x00, 0x00, 0x00,
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x (buf %x)", i, buf[i], want[i], buf)
		}
	}

	got := DecodeAgent(buf)
	if got != a {
		t.Errorf("DecodeAgent = %+v, want %+v", got, a)
	}
}

func TestDecodeAgentsRejectsPartialRecord(t *testing.T) {
	if _, err := DecodeAgents(make([]byte, AgentStride+3)); err == nil {
		t.Error("expected error for truncated buffer")
	}

	agents := []Agent{{Heading: 1}, {Position: [2]float32{0.1, 0.2}}}
	got, err := DecodeAgents(EncodeAgents(agents))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != agents[0] || got[1] != agents[1] {
		t.Errorf("DecodeAgents = %+v", got)
	}
}
