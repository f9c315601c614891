package soft

import (
	"fmt"
)

type dispatchCmd struct {
	pass     string
	pipeline *computePipeline
	groups   [maxBindGroups]*bindGroup
	grid     [3]uint32
}

// exec runs every invocation of the dispatch. Workgroups are split into
// contiguous chunks on the worker pool; each chunk buffers its storage
// texture writes, and the buffers are applied in chunk order afterwards so
// the result matches a sequential run.
func (c *dispatchCmd) exec(d *Device) error {
	if err := c.validate(); err != nil {
		return err
	}
	d.record(TraceEvent{
		Kind:       TraceDispatch,
		Pass:       c.pass,
		Pipeline:   c.pipeline.label,
		Workgroups: c.grid,
	})

	gx, gy, gz := int(c.grid[0]), int(c.grid[1]), int(c.grid[2])
	total := gx * gy * gz
	if total == 0 {
		return nil
	}

	kernel := c.pipeline.kernel
	size := kernel.WorkgroupSize()

	scratch := make([]bindings, d.pool.chunks(total))
	for i := range scratch {
		scratch[i].groups = c.groups
	}

	d.pool.run(total, func(chunk, start, end int) {
		res := &scratch[chunk]
		for g := start; g < end; g++ {
			wx := uint32(g % gx)
			wy := uint32((g / gx) % gy)
			wz := uint32(g / (gx * gy))
			for lz := uint32(0); lz < size[2]; lz++ {
				for ly := uint32(0); ly < size[1]; ly++ {
					for lx := uint32(0); lx < size[0]; lx++ {
						kernel.Invoke(res, [3]uint32{
							wx*size[0] + lx,
							wy*size[1] + ly,
							wz*size[2] + lz,
						})
					}
				}
			}
		}
	})

	for i := range scratch {
		scratch[i].flush()
	}
	return nil
}

func (c *dispatchCmd) validate() error {
	for i, g := range c.groups {
		if g == nil {
			continue
		}
		for slot, b := range g.bindings {
			if b.buffer != nil && b.buffer.released {
				return fmt.Errorf("soft: dispatch %q: group %d slot %d: %w", c.pass, i, slot, ErrReleased)
			}
			if b.view != nil && b.view.texture.released {
				return fmt.Errorf("soft: dispatch %q: group %d slot %d: %w", c.pass, i, slot, ErrReleased)
			}
		}
	}
	return nil
}
