package soft

import (
	"image"
	"math"

	"github.com/pthm-cable/slime/gpu"
)

// pendingStore is a storage texture write held back until its dispatch
// completes.
type pendingStore struct {
	tex  *texture
	x, y int
	v    [4]float32
}

// bindings implements gpu.Resources over the groups bound for one command.
// Each worker chunk gets its own instance so stores need no locking.
type bindings struct {
	groups [maxBindGroups]*bindGroup
	stores []pendingStore
}

var _ gpu.Resources = (*bindings)(nil)

func (b *bindings) lookup(s gpu.Slot) binding {
	if s.Group >= maxBindGroups || b.groups[s.Group] == nil {
		return binding{}
	}
	return b.groups[s.Group].bindings[s.Binding]
}

func (b *bindings) Uniform(s gpu.Slot) []byte {
	bd := b.lookup(s)
	if bd.kind != gpu.BindingUniformBuffer {
		return nil
	}
	return bd.buffer.data
}

func (b *bindings) Storage(s gpu.Slot) []byte {
	bd := b.lookup(s)
	if bd.kind != gpu.BindingStorageBuffer {
		return nil
	}
	return bd.buffer.data
}

func (b *bindings) TextureSize(s gpu.Slot) (int, int) {
	bd := b.lookup(s)
	if bd.view == nil {
		return 0, 0
	}
	r := bd.view.texture.img.Rect
	return r.Dx(), r.Dy()
}

func (b *bindings) Load(s gpu.Slot, x, y int) [4]float32 {
	bd := b.lookup(s)
	if bd.view == nil || bd.kind == gpu.BindingWriteOnlyStorageTexture {
		return [4]float32{}
	}
	return loadTexel(bd.view.texture.img, x, y)
}

func (b *bindings) Store(s gpu.Slot, x, y int, v [4]float32) {
	bd := b.lookup(s)
	if bd.kind != gpu.BindingWriteOnlyStorageTexture {
		return
	}
	r := bd.view.texture.img.Rect
	if x < 0 || y < 0 || x >= r.Dx() || y >= r.Dy() {
		return
	}
	b.stores = append(b.stores, pendingStore{tex: bd.view.texture, x: x, y: y, v: v})
}

func (b *bindings) Sample(tex, smp gpu.Slot, u, v float32) [4]float32 {
	tb := b.lookup(tex)
	sb := b.lookup(smp)
	if tb.view == nil || tb.kind == gpu.BindingWriteOnlyStorageTexture || sb.sampler == nil {
		return [4]float32{}
	}
	return sampleTexel(tb.view.texture.img, &sb.sampler.desc, u, v)
}

// flush applies held stores in the order they were made.
func (b *bindings) flush() {
	for _, st := range b.stores {
		storeTexel(st.tex.img, st.x, st.y, st.v)
	}
	b.stores = b.stores[:0]
}

func loadTexel(img *image.RGBA, x, y int) [4]float32 {
	if x < 0 || y < 0 || x >= img.Rect.Dx() || y >= img.Rect.Dy() {
		return [4]float32{}
	}
	i := y*img.Stride + x*4
	p := img.Pix[i : i+4 : i+4]
	return [4]float32{
		float32(p[0]) / 255,
		float32(p[1]) / 255,
		float32(p[2]) / 255,
		float32(p[3]) / 255,
	}
}

func storeTexel(img *image.RGBA, x, y int, v [4]float32) {
	i := y*img.Stride + x*4
	p := img.Pix[i : i+4 : i+4]
	p[0] = unorm8(v[0])
	p[1] = unorm8(v[1])
	p[2] = unorm8(v[2])
	p[3] = unorm8(v[3])
}

// unorm8 converts a normalized float to an 8-bit channel, rounding to nearest.
func unorm8(v float32) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func sampleTexel(img *image.RGBA, desc *gpu.SamplerDescriptor, u, v float32) [4]float32 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	x := u*float32(w) - 0.5
	y := v*float32(h) - 0.5

	if desc.MagFilter == gpu.FilterModeNearest {
		xi := address(int(math.Floor(float64(x+0.5))), w, desc.AddressMode)
		yi := address(int(math.Floor(float64(y+0.5))), h, desc.AddressMode)
		return loadTexel(img, xi, yi)
	}

	x0f := float32(math.Floor(float64(x)))
	y0f := float32(math.Floor(float64(y)))
	fx, fy := x-x0f, y-y0f
	x0, y0 := int(x0f), int(y0f)

	xa, xb := address(x0, w, desc.AddressMode), address(x0+1, w, desc.AddressMode)
	ya, yb := address(y0, h, desc.AddressMode), address(y0+1, h, desc.AddressMode)

	c00 := loadTexel(img, xa, ya)
	c10 := loadTexel(img, xb, ya)
	c01 := loadTexel(img, xa, yb)
	c11 := loadTexel(img, xb, yb)

	var out [4]float32
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*fx
		bottom := c01[i] + (c11[i]-c01[i])*fx
		out[i] = top + (bottom-top)*fy
	}
	return out
}

func address(i, n int, mode gpu.AddressMode) int {
	if mode == gpu.AddressModeRepeat {
		return ((i % n) + n) % n
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
