// Package renderer contains the drivers' presenters: they take finished
// frames from the software surface and put them on a screen.
package renderer

import (
	"image"
	"image/color"
	"unsafe"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Window presents frames in the raylib window. The window must be open
// before the first Present; raylib calls stay on the goroutine that opened it.
type Window struct {
	tex        rl.Texture2D
	texW, texH int32
	loaded     bool

	// Overlay, if set, draws on top of every presented frame.
	Overlay func()
}

// NewWindow creates a presenter for the open raylib window.
func NewWindow() *Window {
	return &Window{}
}

// Present uploads frame and draws it scaled to the window.
func (w *Window) Present(frame *image.RGBA) error {
	fw, fh := int32(frame.Rect.Dx()), int32(frame.Rect.Dy())
	if !w.loaded || fw != w.texW || fh != w.texH {
		w.load(fw, fh)
	}
	rl.UpdateTexture(w.tex, pixels(frame))
	w.Redraw()
	return nil
}

// Redraw draws the last presented frame again. Drivers call it while the
// simulation is paused so the window keeps processing input.
func (w *Window) Redraw() {
	srcRect := rl.Rectangle{X: 0, Y: 0, Width: float32(w.texW), Height: float32(w.texH)}
	dstRect := rl.Rectangle{X: 0, Y: 0, Width: float32(rl.GetScreenWidth()), Height: float32(rl.GetScreenHeight())}

	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)
	if w.loaded {
		rl.DrawTexturePro(w.tex, srcRect, dstRect, rl.Vector2{}, 0, rl.White)
	}
	if w.Overlay != nil {
		w.Overlay()
	}
	rl.EndDrawing()
}

// load (re)creates the streaming texture for frames of the given size.
func (w *Window) load(fw, fh int32) {
	if w.loaded {
		rl.UnloadTexture(w.tex)
	}
	img := rl.GenImageColor(int(fw), int(fh), rl.Black)
	w.tex = rl.LoadTextureFromImage(img)
	rl.SetTextureFilter(w.tex, rl.FilterBilinear)
	rl.UnloadImage(img)
	w.texW, w.texH = fw, fh
	w.loaded = true
}

// Unload frees the texture.
func (w *Window) Unload() {
	if !w.loaded {
		return
	}
	rl.UnloadTexture(w.tex)
	w.loaded = false
}

// pixels views the frame's tightly packed pixel data as colors without copying.
func pixels(frame *image.RGBA) []color.RGBA {
	n := frame.Rect.Dx() * frame.Rect.Dy()
	if n == 0 {
		return nil
	}
	if frame.Stride != frame.Rect.Dx()*4 {
		out := make([]color.RGBA, 0, n)
		for y := frame.Rect.Min.Y; y < frame.Rect.Max.Y; y++ {
			for x := frame.Rect.Min.X; x < frame.Rect.Max.X; x++ {
				out = append(out, frame.RGBAAt(x, y))
			}
		}
		return out
	}
	return unsafe.Slice((*color.RGBA)(unsafe.Pointer(&frame.Pix[0])), n)
}
