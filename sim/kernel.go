package sim

import "fmt"

// ThreadCtx is the view of the machine handed to the kernel body for one
// thread. It is valid only for the duration of one invocation. Gmem is the
// GPU's HBM and L2 its device-wide cache store; Smem is the scratch region
// of the thread's block, isolated from every other block on the same SM.
type ThreadCtx struct {
	ThreadIdx Dim3
	BlockIdx  Dim3
	BlockDim  Dim3
	GridDim   Dim3
	Gmem      *Memory
	L2        *Memory
	Smem      *Memory
}

// GlobalID flattens the thread's coordinate across the whole grid.
func (c *ThreadCtx) GlobalID() int {
	threadsPerBlock := c.BlockDim.Size()
	blockLinear := c.BlockIdx.X +
		c.BlockIdx.Y*c.GridDim.X +
		c.BlockIdx.Z*c.GridDim.X*c.GridDim.Y
	threadLinear := c.ThreadIdx.X +
		c.ThreadIdx.Y*c.BlockDim.X +
		c.ThreadIdx.Z*c.BlockDim.X*c.BlockDim.Y
	return blockLinear*threadsPerBlock + threadLinear
}

// Kernel pairs a display name with a per-thread body. The body is invoked
// synchronously once per thread; errors propagate to the launch boundary.
type Kernel struct {
	Name string
	Body func(*ThreadCtx) error
}

// Validate checks that the kernel has a body.
func (k Kernel) Validate() error {
	if k.Body == nil {
		return fmt.Errorf("kernel %q has no body", k.Name)
	}
	return nil
}

// VecAdd builds a float32 element-wise addition kernel: out[i] = a[i] + b[i]
// for i < n, operating on HBM at the given byte offsets. Threads with a
// global ID at or beyond n do nothing.
func VecAdd(n int, aOff, bOff, outOff int64) Kernel {
	return Kernel{
		Name: "vec_add",
		Body: func(ctx *ThreadCtx) error {
			i := ctx.GlobalID()
			if i >= n {
				return nil
			}
			off := int64(i) * 4
			a, err := ctx.Gmem.ReadFloat32(aOff + off)
			if err != nil {
				return err
			}
			b, err := ctx.Gmem.ReadFloat32(bOff + off)
			if err != nil {
				return err
			}
			return ctx.Gmem.WriteFloat32(outOff+off, a+b)
		},
	}
}

// Saxpy builds a float32 y = alpha*x + y kernel over HBM.
func Saxpy(n int, alpha float32, xOff, yOff int64) Kernel {
	return Kernel{
		Name: "saxpy",
		Body: func(ctx *ThreadCtx) error {
			i := ctx.GlobalID()
			if i >= n {
				return nil
			}
			off := int64(i) * 4
			x, err := ctx.Gmem.ReadFloat32(xOff + off)
			if err != nil {
				return err
			}
			y, err := ctx.Gmem.ReadFloat32(yOff + off)
			if err != nil {
				return err
			}
			return ctx.Gmem.WriteFloat32(yOff+off, alpha*x+y)
		},
	}
}
