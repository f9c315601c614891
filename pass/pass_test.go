package pass

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/pthm-cable/slime/config"
	"github.com/pthm-cable/slime/gpu"
	"github.com/pthm-cable/slime/gpu/soft"
	"github.com/pthm-cable/slime/sim"
	"github.com/pthm-cable/slime/systems"
)

func newState(t *testing.T, dev gpu.Device, w, h, agents int) *sim.State {
	t.Helper()
	cfg := config.Defaults()
	cfg.Width, cfg.Height, cfg.NumAgents = w, h, agents
	s, err := sim.New(dev, cfg)
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	return s
}

func submitCompute(t *testing.T, dev gpu.Device, record func(cp gpu.ComputePassEncoder)) {
	t.Helper()
	enc, err := dev.CreateCommandEncoder("test")
	if err != nil {
		t.Fatal(err)
	}
	cp := enc.BeginComputePass("test compute")
	record(cp)
	if err := cp.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	cmd, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := dev.Queue().Submit(cmd); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func pattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 17), uint8(y * 31), uint8(x ^ y), uint8(x + y)})
		}
	}
	return img
}

func TestWorkgroups(t *testing.T) {
	tests := []struct{ n, size, want uint32 }{
		{0, 64, 0},
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{720, 16, 45},
		{70, 16, 5},
	}
	for _, tt := range tests {
		if got := workgroups(tt.n, tt.size); got != tt.want {
			t.Errorf("workgroups(%d, %d) = %d, want %d", tt.n, tt.size, got, tt.want)
		}
	}
}

func TestSimulateWorldIdentityFollowsParity(t *testing.T) {
	dev := soft.NewDevice(soft.Options{Workers: 4, Trace: true})
	defer dev.Release()
	state := newState(t, dev, 100, 70, 0)

	world, err := NewSimulateWorld(dev, state, systems.WorldParams{}, Programs{})
	if err != nil {
		t.Fatalf("NewSimulateWorld: %v", err)
	}
	if world.Grid() != [3]uint32{7, 5, 1} {
		t.Errorf("grid = %v, want [7 5 1]", world.Grid())
	}

	src := pattern(100, 70)
	if err := dev.WriteTexture(state.Texture(0), src); err != nil {
		t.Fatal(err)
	}

	// parity 0: trail 0 -> trail 1
	submitCompute(t, dev, func(cp gpu.ComputePassEncoder) { world.Record(cp, state) })
	got, _ := dev.ReadTexture(state.Texture(1))
	if string(got.Pix) != string(src.Pix) {
		t.Fatal("parity 0: trail 1 is not a copy of trail 0")
	}

	// parity 1: trail 1 -> trail 0, after clearing trail 0
	if err := dev.WriteTexture(state.Texture(0), image.NewRGBA(src.Rect)); err != nil {
		t.Fatal(err)
	}
	state.Update()
	submitCompute(t, dev, func(cp gpu.ComputePassEncoder) { world.Record(cp, state) })
	got, _ = dev.ReadTexture(state.Texture(0))
	if string(got.Pix) != string(src.Pix) {
		t.Fatal("parity 1: trail 0 is not a copy of trail 1")
	}
}

func TestSimulateWorldDecays(t *testing.T) {
	dev := soft.NewDevice(soft.Options{Workers: 1})
	defer dev.Release()
	state := newState(t, dev, 8, 8, 0)

	world, err := NewSimulateWorld(dev, state, systems.WorldParams{DecayRate: 1}, Programs{})
	if err != nil {
		t.Fatal(err)
	}
	full := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range full.Pix {
		full.Pix[i] = 255
	}
	dev.WriteTexture(state.Texture(0), full)
	dev.WriteTexture(state.Texture(1), full)

	submitCompute(t, dev, func(cp gpu.ComputePassEncoder) { world.Record(cp, state) })
	got, _ := dev.ReadTexture(state.Texture(1))
	for i, v := range got.Pix {
		if v != 0 {
			t.Fatalf("byte %d = %d, want fully decayed", i, v)
		}
	}
	// the input is never written
	in, _ := dev.ReadTexture(state.Texture(0))
	if string(in.Pix) != string(full.Pix) {
		t.Error("world pass modified its input")
	}
}

func TestSimulateAgentsWritesFrameNumber(t *testing.T) {
	dev := soft.NewDevice(soft.Options{Workers: 1, Trace: true})
	defer dev.Release()
	state := newState(t, dev, 16, 16, 65)

	agents, err := NewSimulateAgents(dev, state, systems.AgentParams{Speed: 1}, Programs{})
	if err != nil {
		t.Fatalf("NewSimulateAgents: %v", err)
	}
	if agents.Grid() != [3]uint32{2, 1, 1} {
		t.Errorf("grid = %v, want [2 1 1]", agents.Grid())
	}

	for i := 0; i < 3; i++ {
		state.Update()
		submitCompute(t, dev, func(cp gpu.ComputePassEncoder) {
			if err := agents.Record(cp, state); err != nil {
				t.Fatal(err)
			}
		})
		b, err := dev.ReadBuffer(agents.params.Buffer())
		if err != nil {
			t.Fatal(err)
		}
		if got := binary.LittleEndian.Uint32(b[20:]); got != state.FrameParam() {
			t.Errorf("frame %d: uniform frame_number = %d", state.FrameNumber(), got)
		}
		if agents.Params().FrameNumber != state.FrameParam() {
			t.Errorf("frame %d: host frame_number = %d", state.FrameNumber(), agents.Params().FrameNumber)
		}
	}
}

func TestSimulateAgentsDeposits(t *testing.T) {
	tests := []struct {
		name    string
		speed   float32
		deposit bool
	}{
		{"moving", 1, true},
		{"stationary", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := soft.NewDevice(soft.Options{Workers: 1})
			defer dev.Release()
			state := newState(t, dev, 16, 16, 20)

			agents, err := NewSimulateAgents(dev, state, systems.AgentParams{Speed: tt.speed, SensorDistance: 0.1}, Programs{})
			if err != nil {
				t.Fatal(err)
			}
			before, err := state.ReadAgents(dev)
			if err != nil {
				t.Fatal(err)
			}

			submitCompute(t, dev, func(cp gpu.ComputePassEncoder) { agents.Record(cp, state) })

			after, _ := state.ReadAgents(dev)
			trail, _ := dev.ReadTexture(state.Texture(state.WriteIndex()))
			for i := range after {
				moved := after[i].Position != before[i].Position
				if moved != tt.deposit {
					t.Errorf("agent %d: moved = %v at speed %v", i, moved, tt.speed)
				}
				if !tt.deposit {
					continue
				}
				x, y := systems.TexelOf(after[i].Position, 16, 16)
				if c := trail.RGBAAt(x, y); c != (color.RGBA{255, 255, 255, 255}) {
					t.Errorf("agent %d: texel (%d,%d) = %v, want full deposit", i, x, y, c)
				}
			}
			if !tt.deposit {
				for _, v := range trail.Pix {
					if v != 0 {
						t.Fatal("stationary agents deposited")
					}
				}
			}
			read, _ := dev.ReadTexture(state.Texture(state.ReadIndex()))
			for _, v := range read.Pix {
				if v != 0 {
					t.Fatal("agent pass wrote the trail map it senses")
				}
			}
		})
	}
}

func TestSimulateAgentsZeroAgents(t *testing.T) {
	dev := soft.NewDevice(soft.Options{Workers: 1, Trace: true})
	defer dev.Release()
	state := newState(t, dev, 4, 4, 0)

	agents, err := NewSimulateAgents(dev, state, systems.AgentParams{Speed: 1}, Programs{})
	if err != nil {
		t.Fatal(err)
	}
	submitCompute(t, dev, func(cp gpu.ComputePassEncoder) { agents.Record(cp, state) })

	tr := dev.Trace()
	if len(tr) != 1 || tr[0].Kind != soft.TraceDispatch || tr[0].Workgroups != [3]uint32{0, 1, 1} {
		t.Errorf("trace = %+v, want one zero-sized dispatch", tr)
	}
	b, _ := dev.ReadBuffer(state.Agents())
	for _, v := range b {
		if v != 0 {
			t.Fatal("padding record modified")
		}
	}
}

// renderRecorder counts render pass calls.
type renderRecorder struct {
	pipelines, groups, vertexBuffers int
	draws                            [][4]uint32
}

func (r *renderRecorder) SetPipeline(gpu.RenderPipeline) { r.pipelines++ }
func (r *renderRecorder) SetBindGroup(uint32, gpu.BindGroup) { r.groups++ }
func (r *renderRecorder) SetVertexBuffer(uint32, gpu.Buffer) { r.vertexBuffers++ }
func (r *renderRecorder) End() error { return nil }
func (r *renderRecorder) Draw(vc, ic, fv, fi uint32) { r.draws = append(r.draws, [4]uint32{vc, ic, fv, fi}) }

func TestDrawAgentsZeroScaleRecordsNothing(t *testing.T) {
	dev := soft.NewDevice(soft.Options{Workers: 1})
	defer dev.Release()
	state := newState(t, dev, 4, 4, 10)

	d, err := NewDrawAgents(dev, state, systems.DrawParams{}, gpu.TextureFormatRGBA8Unorm, Programs{})
	if err != nil {
		t.Fatalf("NewDrawAgents: %v", err)
	}
	var r renderRecorder
	d.Record(&r, state)
	if r.pipelines+r.groups+r.vertexBuffers+len(r.draws) != 0 {
		t.Errorf("zero scale recorded %+v", r)
	}

	d2, err := NewDrawAgents(dev, state, systems.DrawParams{Scale: 1}, gpu.TextureFormatRGBA8Unorm, Programs{})
	if err != nil {
		t.Fatal(err)
	}
	d2.Record(&r, state)
	if len(r.draws) != 1 || r.draws[0] != [4]uint32{4, 10, 0, 0} {
		t.Errorf("draws = %v, want one strip of 4 vertices x 10 instances", r.draws)
	}
	if r.vertexBuffers != 2 {
		t.Errorf("vertex buffers = %d, want 2", r.vertexBuffers)
	}
}

func TestDrawWorldRecordsOneTriangle(t *testing.T) {
	dev := soft.NewDevice(soft.Options{Workers: 1})
	defer dev.Release()
	state := newState(t, dev, 4, 4, 0)

	d, err := NewDrawWorld(dev, state, gpu.TextureFormatRGBA8Unorm, Programs{})
	if err != nil {
		t.Fatalf("NewDrawWorld: %v", err)
	}
	var r renderRecorder
	d.Record(&r, state)
	if len(r.draws) != 1 || r.draws[0] != [4]uint32{3, 1, 0, 0} {
		t.Errorf("draws = %v, want 3 vertices x 1 instance", r.draws)
	}
	if r.groups != 2 || r.vertexBuffers != 0 {
		t.Errorf("groups = %d, vertex buffers = %d", r.groups, r.vertexBuffers)
	}
}

func TestBuildRejectsParitySourceInCommonGroup(t *testing.T) {
	dev := soft.NewDevice(soft.Options{Workers: 1})
	defer dev.Release()
	state := newState(t, dev, 4, 4, 0)

	_, err := Build(dev, Descriptor{
		Name: "bad",
		Common: []Slot{
			{Type: gpu.BindingUnfilterableTexture, Visibility: gpu.ShaderStageCompute, Source: SourceTrailRead},
		},
	}, Resources{State: state})
	if err == nil {
		t.Error("expected error for per-parity source in group 0")
	}

	_, err = Build(dev, Descriptor{Name: "empty"}, Resources{State: state})
	if err == nil {
		t.Error("expected error for empty descriptor")
	}
}
