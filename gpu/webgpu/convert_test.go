package webgpu

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/pthm-cable/slime/gpu"
)

func TestPreferredFormat(t *testing.T) {
	tests := []struct {
		name    string
		offered []gpu.TextureFormat
		want    gpu.TextureFormat
	}{
		{"srgb first", []gpu.TextureFormat{gpu.TextureFormatBGRA8UnormSrgb, gpu.TextureFormatBGRA8Unorm}, gpu.TextureFormatBGRA8UnormSrgb},
		{"srgb later", []gpu.TextureFormat{gpu.TextureFormatBGRA8Unorm, gpu.TextureFormatRGBA8UnormSrgb}, gpu.TextureFormatRGBA8UnormSrgb},
		{"no srgb", []gpu.TextureFormat{gpu.TextureFormatRGBA8Unorm}, gpu.TextureFormatRGBA8Unorm},
		{"nothing", nil, gpu.TextureFormatUndefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preferredFormat(tt.offered); got != tt.want {
				t.Errorf("preferredFormat = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSurfaceError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"wgpu.(*Surface).GetCurrentTexture(): timeout", gpu.ErrSurfaceTimeout},
		{"wgpu.(*Surface).GetCurrentTexture(): outdated", gpu.ErrSurfaceOutdated},
		{"wgpu.(*Surface).GetCurrentTexture(): lost", gpu.ErrSurfaceLost},
		{"wgpu.(*Surface).GetCurrentTexture(): out of memory", gpu.ErrOutOfMemory},
	}
	for _, tt := range tests {
		raw := errors.New(tt.msg)
		err := surfaceError(raw)
		if !errors.Is(err, tt.want) {
			t.Errorf("surfaceError(%q) = %v, want %v", tt.msg, err, tt.want)
		}
		if !errors.Is(err, raw) {
			t.Errorf("surfaceError(%q) dropped the original error", tt.msg)
		}
	}

	other := errors.New("device lost its mind") // "lost" still classifies
	if !gpu.IsTransient(surfaceError(other)) {
		t.Error("lost device error not transient")
	}
	unknown := errors.New("validation failed")
	if surfaceError(unknown) != unknown {
		t.Error("unclassified error was wrapped")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for gf, wf := range textureFormats {
		if got, ok := formatOf(wf); !ok || got != gf {
			t.Errorf("formatOf(%v) = %v, %v; want %v", wf, got, ok, gf)
		}
	}
	if _, ok := formatOf(wgpu.TextureFormatDepth24Plus); ok {
		t.Error("depth format mapped")
	}
}

func TestUsageFlags(t *testing.T) {
	got := bufferUsage(gpu.BufferUsageVertex | gpu.BufferUsageStorage | gpu.BufferUsageCopySrc)
	want := wgpu.BufferUsageVertex | wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc
	if got != want {
		t.Errorf("bufferUsage = %v, want %v", got, want)
	}
	if got := textureUsage(gpu.TextureUsageStorageBinding | gpu.TextureUsageTextureBinding); got != wgpu.TextureUsageStorageBinding|wgpu.TextureUsageTextureBinding {
		t.Errorf("textureUsage = %v", got)
	}
	if got := shaderStage(gpu.ShaderStageCompute); got != wgpu.ShaderStageCompute {
		t.Errorf("shaderStage = %v", got)
	}
}

func TestPresentModes(t *testing.T) {
	if got := presentModes[gpu.PresentModeFifo]; got != wgpu.PresentModeFifo {
		t.Errorf("fifo maps to %v", got)
	}
	if got := presentModes[gpu.PresentModeImmediate]; got != wgpu.PresentModeImmediate {
		t.Errorf("immediate maps to %v", got)
	}
}
