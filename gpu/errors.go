package gpu

import "errors"

// Surface acquisition failures. Providers return these (possibly wrapped)
// from Surface.GetCurrentTexture.
var (
	// ErrSurfaceLost means the surface must be reconfigured before use.
	ErrSurfaceLost = errors.New("surface lost")
	// ErrSurfaceOutdated means the surface no longer matches its window.
	ErrSurfaceOutdated = errors.New("surface outdated")
	// ErrSurfaceTimeout means no texture became available in time.
	ErrSurfaceTimeout = errors.New("surface acquisition timed out")
	// ErrOutOfMemory means the provider cannot allocate; not recoverable.
	ErrOutOfMemory = errors.New("out of memory")
)

// IsTransient reports whether a surface error is cured by reconfiguring.
func IsTransient(err error) bool {
	return errors.Is(err, ErrSurfaceLost) || errors.Is(err, ErrSurfaceOutdated)
}
