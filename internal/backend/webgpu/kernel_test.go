package webgpu

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/born-ml/volconv/internal/backend/grid"
	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapParamsLayout(t *testing.T) {
	in := tensor.Dim4{4, 5, 6, 2}
	w := unwrap.Window{
		WX: 3, WY: 3, WZ: 2,
		SX: 1, SY: 2, SZ: 1,
		PX: 1, PY: 0, PZ: 1,
		DX: 1, DY: 1, DZ: 2,
	}
	p, out, err := newUnwrapParams(in, in.Strides(), w, true)
	require.NoError(t, err)

	want, err := unwrap.OutputDims(in, w, true)
	require.NoError(t, err)
	assert.Equal(t, want, out)

	n, err := w.Counts(in)
	require.NoError(t, err)
	assert.Equal(t, [4]uint32{uint32(n[0]), uint32(n[1]), uint32(n[2]), 0}, p.counts)
	assert.Equal(t, [4]uint32{3, 3, 2, 1}, p.window)
	assert.Equal(t, [4]int32{1, 0, 1, 0}, p.pad)

	buf := p.bytes()
	require.Len(t, buf, paramsSize)
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(buf[4*i:]) }
	assert.Equal(t, []uint32{4, 5, 6, 2}, []uint32{word(0), word(1), word(2), word(3)})
	assert.Equal(t, []uint32{1, 4, 20, 120}, []uint32{word(4), word(5), word(6), word(7)})
	assert.Equal(t, uint32(out[0]), word(8))
	assert.Equal(t, uint32(1), word(19)) // column flag
	assert.Equal(t, uint32(1), word(24)) // pad x
	assert.Equal(t, uint32(2), word(30)) // dilation z
}

func TestUnwrapParamsRowLayout(t *testing.T) {
	in := tensor.Dim4{3, 3, 3, 1}
	p, out, err := newUnwrapParams(in, in.Strides(), unwrap.Cube(2, 1, 0, 1), false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Dim4{8, 8, 1, 1}, out)
	assert.Zero(t, p.window[3])
}

func TestUnwrapParamsRejects32BitOverflow(t *testing.T) {
	in := tensor.Dim4{1 << 31, 1, 1, 1}
	_, _, err := newUnwrapParams(in, in.Strides(), unwrap.Cube(1, 1, 0, 1), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32-bit")

	_, _, err = newUnwrapParams(tensor.Dim4{2, 2, 2, 1}, tensor.Dim4{1, 2, 4, 8}, unwrap.Cube(3, 1, 0, 1), true)
	assert.ErrorIs(t, err, unwrap.ErrInvalidWindow)
}

func TestUnwrapShader(t *testing.T) {
	tests := []struct {
		name    string
		geom    launch.Geometry
		size    string
		loops   []string
		singles []string
	}{
		{
			name:    "single pass",
			geom:    launch.Geometry{Threads: launch.Dim3{X: 32, Y: 4, Z: 1}, Blocks: launch.Dim3{X: 4, Y: 2, Z: 1}},
			size:    "@workgroup_size(32, 4, 1)",
			singles: []string{"let i0 = gid.x;", "let i1 = gid.y;", "let i2 = gid.z;"},
		},
		{
			name: "grid-stride on x and z",
			geom: launch.Geometry{
				Threads: launch.Dim3{X: 128, Y: 1, Z: 1},
				Blocks:  launch.Dim3{X: 8, Y: 1, Z: 2},
				Loop:    launch.Loops{true, false, true, true},
			},
			size: "@workgroup_size(128, 1, 1)",
			loops: []string{
				"for (var i0 = gid.x; i0 < params.odims.x; i0 = i0 + groups.x * 128u)",
				"for (var i2 = gid.z; i2 < params.odims.z; i2 = i2 + groups.z * 1u)",
			},
			singles: []string{"let i1 = gid.y;"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := unwrapShader(tt.geom)
			assert.Contains(t, src, tt.size)
			assert.Contains(t, src, "for (var i3 = 0u; i3 < params.odims.w; i3 = i3 + 1u)")
			for _, l := range tt.loops {
				assert.Contains(t, src, l)
			}
			for _, s := range tt.singles {
				assert.Contains(t, src, s)
			}
			assert.Equal(t, 3, len(tt.loops)+len(tt.singles), "every axis is bound once")
			assert.Equal(t, strings.Count(src, "{"), strings.Count(src, "}"))
			assert.Equal(t, 1, strings.Count(src, "unwrap_element(i0, i1, i2, i3);"))
		})
	}
}

func TestShaderKeyDistinguishesVariants(t *testing.T) {
	a := launch.Geometry{Threads: launch.Dim3{X: 32, Y: 4, Z: 1}}
	b := a
	b.Loop[1] = true
	c := a
	c.Threads.Y = 8
	assert.Equal(t, "unwrap3d_32x4x1_---", shaderKey(a))
	assert.Equal(t, "unwrap3d_32x4x1_-l-", shaderKey(b))
	assert.NotEqual(t, shaderKey(a), shaderKey(c))
}

func TestWorkgroupsFromPlan(t *testing.T) {
	limits := device.WebGPULimits{
		MaxInvocationsPerWorkgroup: 256,
		MaxWorkgroupSize:           [3]uint32{256, 256, 64},
		MaxWorkgroupsPerDimension:  65535,
	}
	in := tensor.Dim4{64, 64, 64, 1}
	geom, dims, err := grid.PlanUnwrap(limits.Capability(), in, tensor.Float32, unwrap.Cube(3, 1, 1, 1), true)
	require.NoError(t, err)
	require.True(t, geom.Covers(dims))

	groups, err := workgroups(geom, limits)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{uint32(geom.Blocks.X), uint32(geom.Blocks.Y), uint32(geom.Blocks.Z)}, groups)

	tight := limits
	tight.MaxWorkgroupSize[0] = 16
	_, err = workgroups(geom, tight)
	assert.ErrorIs(t, err, device.ErrInvalidCapability)
}
