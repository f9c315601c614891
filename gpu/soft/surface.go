package soft

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/pthm-cable/slime/gpu"
)

// Presenter receives each presented frame. The image is only valid for the
// duration of the call.
type Presenter interface {
	Present(frame *image.RGBA) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(frame *image.RGBA) error

func (f PresenterFunc) Present(frame *image.RGBA) error { return f(frame) }

// Surface is an offscreen gpu.Surface. It tracks the size of the window it
// stands for; acquisition fails with gpu.ErrSurfaceOutdated until the
// surface is configured to that size.
type Surface struct {
	device    *Device
	presenter Presenter

	mu         sync.Mutex
	width      uint32 // window size
	height     uint32
	config     gpu.SurfaceConfiguration
	configured bool
	backing    *image.RGBA
	current    *texture
	injected   []error
	presented  int
}

var (
	_ gpu.Surface      = (*Surface)(nil)
	_ gpu.SurfaceSizer = (*Surface)(nil)
)

// NewSurface creates a surface for a window of the given size. presenter
// may be nil, in which case frames are discarded.
func NewSurface(d *Device, width, height int, presenter Presenter) *Surface {
	return &Surface{
		device:    d,
		presenter: presenter,
		width:     uint32(max(width, 0)),
		height:    uint32(max(height, 0)),
	}
}

// SetWindowSize records a new window size, as a windowing system would on resize.
func (s *Surface) SetWindowSize(width, height int) {
	s.mu.Lock()
	s.width, s.height = uint32(max(width, 0)), uint32(max(height, 0))
	s.mu.Unlock()
}

// CurrentSize returns the window size.
func (s *Surface) CurrentSize() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// InjectError makes the next acquisition fail with err.
func (s *Surface) InjectError(err error) {
	s.mu.Lock()
	s.injected = append(s.injected, err)
	s.mu.Unlock()
}

// Presented returns the number of frames presented so far.
func (s *Surface) Presented() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}

// Format returns the surface's preferred format.
func (s *Surface) Format() gpu.TextureFormat { return gpu.TextureFormatRGBA8Unorm }

// Configure sets the size and format of acquired textures.
func (s *Surface) Configure(cfg gpu.SurfaceConfiguration) error {
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("soft: configuring surface with zero size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Format != gpu.TextureFormatRGBA8Unorm {
		return fmt.Errorf("soft: surface format %v unsupported", cfg.Format)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	s.configured = true
	if s.backing == nil || s.backing.Rect.Dx() != int(cfg.Width) || s.backing.Rect.Dy() != int(cfg.Height) {
		s.backing = image.NewRGBA(image.Rect(0, 0, int(cfg.Width), int(cfg.Height)))
	}
	return nil
}

// GetCurrentTexture acquires the next frame's texture.
func (s *Surface) GetCurrentTexture() (gpu.Texture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.injected) > 0 {
		err := s.injected[0]
		s.injected = s.injected[1:]
		return nil, err
	}
	if !s.configured {
		return nil, errors.New("soft: surface not configured")
	}
	// A released texture that was never presented is dropped.
	if s.current != nil && !s.current.released {
		return nil, errors.New("soft: surface texture already acquired")
	}
	if s.config.Width != s.width || s.config.Height != s.height {
		return nil, fmt.Errorf("soft: surface is %dx%d, window is %dx%d: %w",
			s.config.Width, s.config.Height, s.width, s.height, gpu.ErrSurfaceOutdated)
	}

	s.current = &texture{
		device: s.device,
		label:  "surface",
		format: s.config.Format,
		usage:  gpu.TextureUsageRenderAttachment | gpu.TextureUsageCopySrc,
		img:    s.backing,
	}
	return s.current, nil
}

// Present hands the acquired texture to the presenter.
func (s *Surface) Present() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.released {
		return errors.New("soft: present without an acquired texture")
	}
	s.current = nil
	s.presented++
	if s.presenter == nil {
		return nil
	}
	if err := s.presenter.Present(s.backing); err != nil {
		return fmt.Errorf("soft: presenting: %w", err)
	}
	return nil
}

// LastFrame returns a copy of the most recently rendered frame.
func (s *Surface) LastFrame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backing == nil {
		return nil
	}
	out := image.NewRGBA(s.backing.Rect)
	copy(out.Pix, s.backing.Pix)
	return out
}
