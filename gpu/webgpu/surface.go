package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/pthm-cable/slime/gpu"
)

// Surface wraps a window surface.
type Surface struct {
	device  *Device
	surface *wgpu.Surface
	format  gpu.TextureFormat
	alpha   wgpu.CompositeAlphaMode
	config  gpu.SurfaceConfiguration
	size    func() (uint32, uint32)
}

var (
	_ gpu.Surface      = (*Surface)(nil)
	_ gpu.SurfaceSizer = (*Surface)(nil)
)

func newSurface(d *Device, s *wgpu.Surface) *Surface {
	caps := s.GetCapabilities(d.adapter)
	offered := make([]gpu.TextureFormat, 0, len(caps.Formats))
	for _, f := range caps.Formats {
		if gf, ok := formatOf(f); ok {
			offered = append(offered, gf)
		}
	}
	out := &Surface{device: d, surface: s, format: preferredFormat(offered)}
	if len(caps.AlphaModes) > 0 {
		out.alpha = caps.AlphaModes[0]
	}
	return out
}

// SetSizeFunc installs the callback reporting the window's framebuffer
// size, used when the surface is reconfigured after being lost.
func (s *Surface) SetSizeFunc(f func() (width, height uint32)) { s.size = f }

// CurrentSize returns the window size, or the configured size when no size
// callback is installed.
func (s *Surface) CurrentSize() (uint32, uint32) {
	if s.size != nil {
		return s.size()
	}
	return s.config.Width, s.config.Height
}

// Format returns the preferred surface format: the first sRGB format offered.
func (s *Surface) Format() gpu.TextureFormat { return s.format }

func (s *Surface) Configure(cfg gpu.SurfaceConfiguration) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("webgpu: configuring surface with zero size %dx%d", cfg.Width, cfg.Height)
	}
	format, ok := textureFormats[cfg.Format]
	if !ok {
		return fmt.Errorf("webgpu: surface format %v unsupported", cfg.Format)
	}
	s.surface.Configure(s.device.adapter, s.device.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		PresentMode: presentModes[cfg.PresentMode],
		AlphaMode:   s.alpha,
	})
	s.config = cfg
	return nil
}

func (s *Surface) GetCurrentTexture() (gpu.Texture, error) {
	tex, err := s.surface.GetCurrentTexture()
	if err != nil {
		return nil, surfaceError(err)
	}
	if tex == nil {
		return nil, errNoTexture
	}
	return &texture{
		tex:    tex,
		width:  s.config.Width,
		height: s.config.Height,
		format: s.config.Format,
	}, nil
}

func (s *Surface) Present() error {
	s.surface.Present()
	return nil
}

// Release frees the surface.
func (s *Surface) Release() {
	s.surface.Release()
}
