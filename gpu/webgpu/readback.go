package webgpu

import (
	"fmt"
	"image"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/pthm-cable/slime/gpu"
)

// copyRowAlignment is the required bytes-per-row alignment of texture to
// buffer copies.
const copyRowAlignment = 256

// ReadBuffer copies buf to the host. It blocks until the GPU is done.
func (d *Device) ReadBuffer(buf gpu.Buffer) ([]byte, error) {
	b, ok := buf.(*buffer)
	if !ok {
		return nil, fmt.Errorf("webgpu: reading foreign buffer")
	}
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Readback Buffer",
		Size:  b.size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, wrap("creating readback buffer", err)
	}
	defer staging.Release()

	err = d.copyAndWait(func(enc *wgpu.CommandEncoder) {
		enc.CopyBufferToBuffer(b.buf, 0, staging, 0, b.size)
	})
	if err != nil {
		return nil, err
	}
	return d.mapRead(staging, b.size)
}

// ReadTexture copies an RGBA8 texture to the host.
func (d *Device) ReadTexture(tex gpu.Texture) (*image.RGBA, error) {
	t, ok := tex.(*texture)
	if !ok {
		return nil, fmt.Errorf("webgpu: reading foreign texture")
	}
	if t.format != gpu.TextureFormatRGBA8Unorm && t.format != gpu.TextureFormatRGBA8UnormSrgb {
		return nil, fmt.Errorf("webgpu: reading %v texture", t.format)
	}

	w, h := int(t.width), int(t.height)
	rowBytes := w * 4
	stride := (rowBytes + copyRowAlignment - 1) / copyRowAlignment * copyRowAlignment
	size := uint64(stride * h)

	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Texture Readback Buffer",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, wrap("creating readback buffer", err)
	}
	defer staging.Release()

	err = d.copyAndWait(func(enc *wgpu.CommandEncoder) {
		enc.CopyTextureToBuffer(
			&wgpu.ImageCopyTexture{
				Texture:  t.tex,
				MipLevel: 0,
				Origin:   wgpu.Origin3D{},
				Aspect:   wgpu.TextureAspectAll,
			},
			&wgpu.ImageCopyBuffer{
				Buffer: staging,
				Layout: wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  uint32(stride),
					RowsPerImage: uint32(h),
				},
			},
			&wgpu.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
		)
	})
	if err != nil {
		return nil, err
	}

	data, err := d.mapRead(staging, size)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+rowBytes], data[y*stride:])
	}
	return img, nil
}

func (d *Device) copyAndWait(record func(enc *wgpu.CommandEncoder)) error {
	enc, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "Readback Encoder"})
	if err != nil {
		return wrap("creating readback encoder", err)
	}
	defer enc.Release()

	record(enc)
	cmd, err := enc.Finish(nil)
	if err != nil {
		return wrap("finishing readback", err)
	}
	defer cmd.Release()
	d.queue.queue.Submit(cmd)
	return nil
}

func (d *Device) mapRead(staging *wgpu.Buffer, size uint64) ([]byte, error) {
	var status wgpu.BufferMapAsyncStatus
	done := false
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	for !done {
		d.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("webgpu: mapping readback buffer: status %v", status)
	}
	defer staging.Unmap()

	out := make([]byte, size)
	copy(out, staging.GetMappedRange(0, uint(size)))
	return out, nil
}
