package webgpu

import (
	"strings"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/pthm-cable/slime/gpu"
)

var textureFormats = map[gpu.TextureFormat]wgpu.TextureFormat{
	gpu.TextureFormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	gpu.TextureFormatRGBA8UnormSrgb: wgpu.TextureFormatRGBA8UnormSrgb,
	gpu.TextureFormatBGRA8Unorm:     wgpu.TextureFormatBGRA8Unorm,
	gpu.TextureFormatBGRA8UnormSrgb: wgpu.TextureFormatBGRA8UnormSrgb,
}

var addressModes = map[gpu.AddressMode]wgpu.AddressMode{
	gpu.AddressModeClampToEdge: wgpu.AddressModeClampToEdge,
	gpu.AddressModeRepeat:      wgpu.AddressModeRepeat,
}

var filterModes = map[gpu.FilterMode]wgpu.FilterMode{
	gpu.FilterModeNearest: wgpu.FilterModeNearest,
	gpu.FilterModeLinear:  wgpu.FilterModeLinear,
}

var mipmapFilterModes = map[gpu.FilterMode]wgpu.MipmapFilterMode{
	gpu.FilterModeNearest: wgpu.MipmapFilterModeNearest,
	gpu.FilterModeLinear:  wgpu.MipmapFilterModeLinear,
}

var vertexFormats = map[gpu.VertexFormat]wgpu.VertexFormat{
	gpu.VertexFormatFloat32:   wgpu.VertexFormatFloat32,
	gpu.VertexFormatFloat32x2: wgpu.VertexFormatFloat32x2,
	gpu.VertexFormatFloat32x3: wgpu.VertexFormatFloat32x3,
	gpu.VertexFormatFloat32x4: wgpu.VertexFormatFloat32x4,
}

var topologies = map[gpu.PrimitiveTopology]wgpu.PrimitiveTopology{
	gpu.PrimitiveTopologyTriangleList:  wgpu.PrimitiveTopologyTriangleList,
	gpu.PrimitiveTopologyTriangleStrip: wgpu.PrimitiveTopologyTriangleStrip,
}

var presentModes = map[gpu.PresentMode]wgpu.PresentMode{
	gpu.PresentModeFifo:      wgpu.PresentModeFifo,
	gpu.PresentModeImmediate: wgpu.PresentModeImmediate,
}

// formatOf maps a wgpu format back to the contract's formats.
func formatOf(f wgpu.TextureFormat) (gpu.TextureFormat, bool) {
	for k, v := range textureFormats {
		if v == f {
			return k, true
		}
	}
	return gpu.TextureFormatUndefined, false
}

// preferredFormat picks the first sRGB format the surface offers, falling
// back to the first format the contract knows.
func preferredFormat(offered []gpu.TextureFormat) gpu.TextureFormat {
	for _, f := range offered {
		if f.IsSrgb() {
			return f
		}
	}
	for _, f := range offered {
		if f != gpu.TextureFormatUndefined {
			return f
		}
	}
	return gpu.TextureFormatUndefined
}

func bufferUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&gpu.BufferUsageCopySrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	if u&gpu.BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&gpu.BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&gpu.BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	return out
}

func textureUsage(u gpu.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&gpu.TextureUsageCopySrc != 0 {
		out |= wgpu.TextureUsageCopySrc
	}
	if u&gpu.TextureUsageCopyDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	if u&gpu.TextureUsageTextureBinding != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&gpu.TextureUsageStorageBinding != 0 {
		out |= wgpu.TextureUsageStorageBinding
	}
	if u&gpu.TextureUsageRenderAttachment != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	return out
}

func shaderStage(s gpu.ShaderStage) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if s&gpu.ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if s&gpu.ShaderStageCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

// wgpu-native reports surface and allocation failures as error strings, so
// they are classified by message.

func isOutOfMemory(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "out of memory")
}

// surfaceError maps a texture acquisition failure onto the contract's
// surface errors, keeping the original message.
func surfaceError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "out of memory"):
		return &acquireError{kind: gpu.ErrOutOfMemory, err: err}
	case strings.Contains(msg, "timeout"):
		return &acquireError{kind: gpu.ErrSurfaceTimeout, err: err}
	case strings.Contains(msg, "outdated"):
		return &acquireError{kind: gpu.ErrSurfaceOutdated, err: err}
	case strings.Contains(msg, "lost"):
		return &acquireError{kind: gpu.ErrSurfaceLost, err: err}
	}
	return err
}

type acquireError struct {
	kind error
	err  error
}

func (e *acquireError) Error() string   { return "webgpu: acquiring surface texture: " + e.err.Error() }
func (e *acquireError) Unwrap() []error { return []error{e.kind, e.err} }
