package gpu

// Slot addresses one binding of one bind group.
type Slot struct {
	Group   uint32
	Binding uint32
}

// Resources gives host programs access to the resources bound for the
// current dispatch or draw.
type Resources interface {
	// Uniform returns the bytes of a uniform buffer binding.
	Uniform(s Slot) []byte
	// Storage returns the bytes of a read_write storage buffer binding.
	// Each invocation may only write the records it owns.
	Storage(s Slot) []byte
	// TextureSize returns the dimensions of a bound texture view.
	TextureSize(s Slot) (width, height int)
	// Load reads one texel as normalized floats. Out-of-range coordinates
	// return zero.
	Load(s Slot, x, y int) [4]float32
	// Store writes one texel of a write-only storage texture. Stores become
	// visible after the dispatch completes.
	Store(s Slot, x, y int, v [4]float32)
	// Sample filters a texture at normalized coordinates through a sampler.
	Sample(tex, sampler Slot, u, v float32) [4]float32
}

// ComputeKernel is a compute program runnable on the host.
type ComputeKernel interface {
	WorkgroupSize() [3]uint32
	Invoke(res Resources, id [3]uint32)
}

// MaxVertexLocations bounds the shader locations available to host vertex programs.
const MaxVertexLocations = 4

// VertexInput is what a host vertex program receives. Attributes is
// indexed by shader location.
type VertexInput struct {
	VertexIndex   uint32
	InstanceIndex uint32
	Attributes    [MaxVertexLocations][4]float32
}

// VertexOutput is a clip-space position plus interpolated varyings.
type VertexOutput struct {
	Position [4]float32
	Varyings [4]float32
}

// FragmentInput is a pixel center in framebuffer coordinates plus the
// interpolated varyings.
type FragmentInput struct {
	Position [2]float32
	Varyings [4]float32
}

// RenderProgram is a vertex/fragment program pair runnable on the host.
type RenderProgram interface {
	Vertex(res Resources, in VertexInput) VertexOutput
	Fragment(res Resources, in FragmentInput) [4]float32
}
