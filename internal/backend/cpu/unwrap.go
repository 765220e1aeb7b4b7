package cpu

import (
	"context"
	"fmt"
	"time"

	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
)

// Unwrap3D extracts every window of in into the columns of a matrix
// (column == true) or into its rows.
//
// Input shape: [W, H, D, N]
// Output shape: [wx*wy*wz, nx*ny*nz, N, 1] for column layout, the first two
// axes swapped otherwise.
//
// Elements whose source lies in the padding are zero.
func (cpu *CPUBackend) Unwrap3D(ctx context.Context, in *tensor.RawTensor, w unwrap.Window, column bool) (*tensor.RawTensor, error) {
	dims, err := unwrap.OutputDims(in.Dims(), w, column)
	if err != nil {
		return nil, fmt.Errorf("unwrap3d: %w", err)
	}

	return cpu.produce(ctx, "unwrap3d", dims, in.DType(), func(out *tensor.RawTensor) error {
		start := time.Now()
		k, err := unwrap.New(out, in, w, column)
		if err != nil {
			return err
		}
		k.Run()
		cpu.log.Debug("unwrap3d", "in", in.Dims(), "out", dims, "windows", k.Windows(), "elapsed", time.Since(start))
		return nil
	}, in)
}
