// Package gpu defines the capability-provider contract the simulation is
// written against. A provider supplies buffers, textures, pipelines and
// command submission; the software provider in gpu/soft and the WebGPU
// provider in gpu/webgpu both satisfy it.
package gpu

import "image"

// BufferUsage is a bit set of the ways a buffer may be bound.
type BufferUsage uint32

const (
	BufferUsageCopySrc BufferUsage = 1 << iota
	BufferUsageCopyDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageVertex
)

// TextureUsage is a bit set of the ways a texture may be bound.
type TextureUsage uint32

const (
	TextureUsageCopySrc TextureUsage = 1 << iota
	TextureUsageCopyDst
	TextureUsageTextureBinding
	TextureUsageStorageBinding
	TextureUsageRenderAttachment
)

// TextureFormat identifies a texel layout.
type TextureFormat int

const (
	TextureFormatUndefined TextureFormat = iota
	TextureFormatRGBA8Unorm
	TextureFormatRGBA8UnormSrgb
	TextureFormatBGRA8Unorm
	TextureFormatBGRA8UnormSrgb
)

// IsSrgb reports whether the format applies sRGB encoding on write.
func (f TextureFormat) IsSrgb() bool {
	return f == TextureFormatRGBA8UnormSrgb || f == TextureFormatBGRA8UnormSrgb
}

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case TextureFormatRGBA8UnormSrgb:
		return "rgba8unorm-srgb"
	case TextureFormatBGRA8Unorm:
		return "bgra8unorm"
	case TextureFormatBGRA8UnormSrgb:
		return "bgra8unorm-srgb"
	default:
		return "undefined"
	}
}

// ShaderStage is a bit set of pipeline stages.
type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
	ShaderStageCompute
)

// BindingType is the kind of resource a layout slot accepts.
type BindingType int

const (
	BindingUndefined BindingType = iota
	BindingUniformBuffer
	BindingStorageBuffer         // read_write
	BindingUnfilterableTexture   // textureLoad only
	BindingFilterableTexture     // sampled through a filtering sampler
	BindingWriteOnlyStorageTexture
	BindingFilteringSampler
)

// IsBuffer reports whether the slot takes a buffer.
func (t BindingType) IsBuffer() bool {
	return t == BindingUniformBuffer || t == BindingStorageBuffer
}

// IsTexture reports whether the slot takes a texture view.
func (t BindingType) IsTexture() bool {
	return t == BindingUnfilterableTexture || t == BindingFilterableTexture || t == BindingWriteOnlyStorageTexture
}

// BindGroupLayoutEntry describes one slot of a bind group layout.
type BindGroupLayoutEntry struct {
	Binding        uint32
	Visibility     ShaderStage
	Type           BindingType
	MinBindingSize uint64        // buffers only, 0 = unchecked
	Format         TextureFormat // storage textures only
}

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// BindGroupEntry binds one resource to a slot. Exactly one of Buffer,
// TextureView and Sampler is set.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      Buffer
	TextureView TextureView
	Sampler     Sampler
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// BufferDescriptor describes a buffer. Contents, when set, are uploaded at
// creation and Size may be left zero.
type BufferDescriptor struct {
	Label    string
	Size     uint64
	Usage    BufferUsage
	Contents []byte
}

// TextureDescriptor describes a 2D texture.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
}

// AddressMode selects how out-of-range coordinates are resolved.
type AddressMode int

const (
	AddressModeClampToEdge AddressMode = iota
	AddressModeRepeat
)

// FilterMode selects texel interpolation.
type FilterMode int

const (
	FilterModeNearest FilterMode = iota
	FilterModeLinear
)

// SamplerDescriptor describes a sampler.
type SamplerDescriptor struct {
	Label        string
	AddressMode  AddressMode
	MagFilter    FilterMode
	MinFilter    FilterMode
	MipmapFilter FilterMode
}

// VertexFormat is the layout of one vertex attribute.
type VertexFormat int

const (
	VertexFormatFloat32 VertexFormat = iota + 1
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
)

// Components returns the number of float lanes in the format.
func (f VertexFormat) Components() int {
	switch f {
	case VertexFormatFloat32:
		return 1
	case VertexFormatFloat32x2:
		return 2
	case VertexFormatFloat32x3:
		return 3
	case VertexFormatFloat32x4:
		return 4
	}
	return 0
}

// VertexStepMode selects per-vertex or per-instance advancement.
type VertexStepMode int

const (
	VertexStepModeVertex VertexStepMode = iota
	VertexStepModeInstance
)

// VertexAttribute maps part of a vertex buffer to a shader location.
type VertexAttribute struct {
	Format         VertexFormat
	Offset         uint64
	ShaderLocation uint32
}

// VertexBufferLayout describes one vertex buffer slot.
type VertexBufferLayout struct {
	ArrayStride uint64
	StepMode    VertexStepMode
	Attributes  []VertexAttribute
}

// PrimitiveTopology selects how vertices assemble into triangles.
type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
)

// BlendMode selects how fragments combine with the color target.
type BlendMode int

const (
	BlendReplace BlendMode = iota
	BlendAlphaOver
)

// Program carries a shader program in every form a provider may execute.
// Hardware providers compile WGSL; the software provider runs Host, which
// must be a ComputeKernel or a RenderProgram.
type Program struct {
	Label string
	WGSL  string
	Host  any
}

// ComputePipelineDescriptor describes a compute pipeline. BindGroupLayouts
// is indexed by group number.
type ComputePipelineDescriptor struct {
	Label            string
	BindGroupLayouts []BindGroupLayout
	Program          Program
	EntryPoint       string
}

// RenderPipelineDescriptor describes a render pipeline with a single color target.
type RenderPipelineDescriptor struct {
	Label              string
	BindGroupLayouts   []BindGroupLayout
	Program            Program
	VertexEntryPoint   string
	FragmentEntryPoint string
	Buffers            []VertexBufferLayout
	Topology           PrimitiveTopology
	Format             TextureFormat
	Blend              BlendMode
}

// Color is a linear RGBA color.
type Color struct {
	R, G, B, A float64
}

// Black is opaque black.
var Black = Color{A: 1}

// LoadOp selects what a render pass does with the existing target contents.
type LoadOp int

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
)

// RenderPassColorAttachment describes the color target of a render pass.
type RenderPassColorAttachment struct {
	View       TextureView
	LoadOp     LoadOp
	ClearValue Color
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	Label           string
	ColorAttachment RenderPassColorAttachment
}

// PresentMode selects how presented frames are queued.
type PresentMode int

const (
	PresentModeFifo PresentMode = iota
	PresentModeImmediate
)

// SurfaceConfiguration configures a surface for rendering.
type SurfaceConfiguration struct {
	Width       uint32
	Height      uint32
	Format      TextureFormat
	PresentMode PresentMode
}

// Releaser is implemented by every provider object.
type Releaser interface {
	Release()
}

type (
	Buffer interface {
		Releaser
		Size() uint64
	}
	Texture interface {
		Releaser
		Width() uint32
		Height() uint32
		Format() TextureFormat
		CreateView() (TextureView, error)
	}
	TextureView     interface{ Releaser }
	Sampler         interface{ Releaser }
	BindGroupLayout interface{ Releaser }
	BindGroup       interface{ Releaser }
	ComputePipeline interface{ Releaser }
	RenderPipeline  interface{ Releaser }
	CommandBuffer   interface{ Releaser }
)

// Device creates resources and command encoders.
type Device interface {
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	CreateTexture(desc *TextureDescriptor) (Texture, error)
	CreateSampler(desc *SamplerDescriptor) (Sampler, error)
	CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error)
	CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipeline, error)
	CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error)
	CreateCommandEncoder(label string) (CommandEncoder, error)
	Queue() Queue
}

// Queue accepts buffer writes and command submissions. Submissions execute
// in the order they are made.
type Queue interface {
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	Submit(cmds ...CommandBuffer) error
}

// CommandEncoder records passes into a single command buffer.
type CommandEncoder interface {
	Releaser
	BeginComputePass(label string) ComputePassEncoder
	BeginRenderPass(desc *RenderPassDescriptor) RenderPassEncoder
	Finish() (CommandBuffer, error)
}

// ComputePassEncoder records dispatches.
type ComputePassEncoder interface {
	SetPipeline(p ComputePipeline)
	SetBindGroup(index uint32, g BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	End() error
}

// RenderPassEncoder records draws.
type RenderPassEncoder interface {
	SetPipeline(p RenderPipeline)
	SetBindGroup(index uint32, g BindGroup)
	SetVertexBuffer(slot uint32, buf Buffer)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	End() error
}

// Surface is a presentable render target.
type Surface interface {
	Configure(cfg SurfaceConfiguration) error
	GetCurrentTexture() (Texture, error)
	Present() error
	Format() TextureFormat
}

// SurfaceSizer is implemented by surfaces that know the current size of
// their window. Reconfiguration after a lost or outdated surface uses it.
type SurfaceSizer interface {
	CurrentSize() (width, height uint32)
}

// TextureReader is implemented by providers that can copy texture contents
// back to the host.
type TextureReader interface {
	ReadTexture(tex Texture) (*image.RGBA, error)
}

// BufferReader is implemented by providers that can copy buffer contents
// back to the host.
type BufferReader interface {
	ReadBuffer(buf Buffer) ([]byte, error)
}
