// Package webgpu runs unwrap as a WGSL compute shader on a WebGPU adapter,
// launched with the geometry the planner chooses for the adapter's limits.
// Dense primitives are shared with the host backend. The adapter runtime
// is only built on windows; shader generation is portable.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/tensor"
	"github.com/born-ml/volconv/internal/unwrap"
)

// paramsSize is the byte size of the uniform block: nine vec4 fields.
const paramsSize = 9 * 16

// unwrapParams mirrors the Params struct of the shader. Every field is a
// vec4 so the layout needs no padding.
type unwrapParams struct {
	idims    [4]uint32
	istrides [4]uint32
	odims    [4]uint32
	ostrides [4]uint32
	window   [4]uint32 // wx, wy, wz, column
	stride   [4]uint32
	pad      [4]int32
	dilation [4]uint32
	counts   [4]uint32 // windows along x, y, z
}

// newUnwrapParams describes an unwrap of an in-shaped volume laid out with
// istrides. Coordinates are computed in 32 bits on the device, so every
// extent must fit.
func newUnwrapParams(in, istrides tensor.Dim4, w unwrap.Window, column bool) (unwrapParams, tensor.Dim4, error) {
	out, err := unwrap.OutputDims(in, w, column)
	if err != nil {
		return unwrapParams{}, tensor.Dim4{}, err
	}
	n, err := w.Counts(in)
	if err != nil {
		return unwrapParams{}, tensor.Dim4{}, err
	}

	span := 1
	for i := range in {
		span += (in[i] - 1) * istrides[i]
	}
	checks := []struct {
		name  string
		value int
		limit int
	}{
		{"input elements", span, math.MaxUint32},
		{"output elements", out.Elements(), math.MaxUint32},
		{"padded x extent", in[0] + 2*w.PX, math.MaxInt32},
		{"padded y extent", in[1] + 2*w.PY, math.MaxInt32},
		{"padded z extent", in[2] + 2*w.PZ, math.MaxInt32},
	}
	for _, c := range checks {
		if c.value > c.limit {
			return unwrapParams{}, tensor.Dim4{}, fmt.Errorf("webgpu: %s %d exceeds 32-bit indexing", c.name, c.value)
		}
	}

	var col uint32
	if column {
		col = 1
	}
	return unwrapParams{
		idims:    u32x4(in),
		istrides: u32x4(istrides),
		odims:    u32x4(out),
		ostrides: u32x4(out.Strides()),
		window:   [4]uint32{uint32(w.WX), uint32(w.WY), uint32(w.WZ), col},
		stride:   [4]uint32{uint32(w.SX), uint32(w.SY), uint32(w.SZ), 0},
		pad:      [4]int32{int32(w.PX), int32(w.PY), int32(w.PZ), 0},
		dilation: [4]uint32{uint32(w.DX), uint32(w.DY), uint32(w.DZ), 0},
		counts:   [4]uint32{uint32(n[0]), uint32(n[1]), uint32(n[2]), 0},
	}, out, nil
}

func u32x4(d tensor.Dim4) [4]uint32 {
	//nolint:gosec // G115: extents are checked by newUnwrapParams
	return [4]uint32{uint32(d[0]), uint32(d[1]), uint32(d[2]), uint32(d[3])}
}

// bytes encodes the block in the little-endian layout WGSL expects.
func (p unwrapParams) bytes() []byte {
	buf := make([]byte, 0, paramsSize)
	for _, v := range [][4]uint32{p.idims, p.istrides, p.odims, p.ostrides, p.window, p.stride} {
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, x)
		}
	}
	for _, x := range p.pad {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(x))
	}
	for _, v := range [][4]uint32{p.dilation, p.counts} {
		for _, x := range v {
			buf = binary.LittleEndian.AppendUint32(buf, x)
		}
	}
	return buf
}

// workgroups returns the DispatchWorkgroups arguments for g after checking
// its block shape against the adapter's per-axis limits.
func workgroups(g launch.Geometry, l device.WebGPULimits) ([3]uint32, error) {
	if err := l.CheckWorkgroup(g.Threads.X, g.Threads.Y, g.Threads.Z); err != nil {
		return [3]uint32{}, err
	}
	//nolint:gosec // G115: block counts are clamped to the device grid
	return [3]uint32{uint32(g.Blocks.X), uint32(g.Blocks.Y), uint32(g.Blocks.Z)}, nil
}

// shaderKey names the compiled variant for a block shape and loop set.
func shaderKey(g launch.Geometry) string {
	var loops strings.Builder
	for _, l := range g.Loop[:3] {
		if l {
			loops.WriteByte('l')
		} else {
			loops.WriteByte('-')
		}
	}
	return fmt.Sprintf("unwrap3d_%dx%dx%d_%s", g.Threads.X, g.Threads.Y, g.Threads.Z, loops.String())
}

const unwrapHeader = `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;

struct Params {
    idims: vec4<u32>,
    istrides: vec4<u32>,
    odims: vec4<u32>,
    ostrides: vec4<u32>,
    window: vec4<u32>,
    stride: vec4<u32>,
    pad: vec4<i32>,
    dilation: vec4<u32>,
    counts: vec4<u32>,
}
@group(0) @binding(2) var<uniform> params: Params;

// i0 indexes the offset inside a window for column layout, i1 the window.
// Row layout swaps them. i2 is the batch.
fn unwrap_element(i0: u32, i1: u32, i2: u32, i3: u32) {
    var oloc = i0;
    var col = i1;
    if (params.window.w == 0u) {
        oloc = i1;
        col = i0;
    }
    let nx = params.counts.x;
    let ny = params.counts.y;
    let wx = params.window.x;
    let wy = params.window.y;
    let ix = i32((col % nx) * params.stride.x + (oloc % wx) * params.dilation.x) - params.pad.x;
    let iy = i32(((col / nx) % ny) * params.stride.y + ((oloc / wx) % wy) * params.dilation.y) - params.pad.y;
    let iz = i32((col / (nx * ny)) * params.stride.z + (oloc / (wx * wy)) * params.dilation.z) - params.pad.z;

    var v = 0.0;
    if (ix >= 0 && ix < i32(params.idims.x) &&
        iy >= 0 && iy < i32(params.idims.y) &&
        iz >= 0 && iz < i32(params.idims.z)) {
        v = src[u32(ix) * params.istrides.x + u32(iy) * params.istrides.y + u32(iz) * params.istrides.z + i2 * params.istrides.w];
    }
    dst[i0 * params.ostrides.x + i1 * params.ostrides.y + i2 * params.ostrides.z + i3 * params.ostrides.w] = v;
}
`

// unwrapShader returns the WGSL source for one launch geometry. The
// workgroup is the planned block shape. Axes flagged in g.Loop are walked
// with a grid-stride loop, the others take a single pass. Axis 3 is walked
// in full by every invocation.
func unwrapShader(g launch.Geometry) string {
	axes := [3]struct {
		comp    string
		threads int
	}{{"x", g.Threads.X}, {"y", g.Threads.Y}, {"z", g.Threads.Z}}

	var b strings.Builder
	b.WriteString(unwrapHeader)
	fmt.Fprintf(&b, "\n@compute @workgroup_size(%d, %d, %d)\n", g.Threads.X, g.Threads.Y, g.Threads.Z)
	b.WriteString("fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) groups: vec3<u32>) {\n")
	for a, ax := range axes {
		if g.Loop[a] {
			continue
		}
		fmt.Fprintf(&b, "    let i%d = gid.%s;\n", a, ax.comp)
		fmt.Fprintf(&b, "    if (i%d >= params.odims.%s) {\n        return;\n    }\n", a, ax.comp)
	}

	depth := 1
	open := func(line string) {
		b.WriteString(strings.Repeat("    ", depth))
		b.WriteString(line)
		b.WriteString(" {\n")
		depth++
	}
	open("for (var i3 = 0u; i3 < params.odims.w; i3 = i3 + 1u)")
	for a := 2; a >= 0; a-- {
		if !g.Loop[a] {
			continue
		}
		ax := axes[a]
		open(fmt.Sprintf("for (var i%[1]d = gid.%[2]s; i%[1]d < params.odims.%[2]s; i%[1]d = i%[1]d + groups.%[2]s * %[3]du)",
			a, ax.comp, ax.threads))
	}
	b.WriteString(strings.Repeat("    ", depth))
	b.WriteString("unwrap_element(i0, i1, i2, i3);\n")
	for depth > 1 {
		depth--
		b.WriteString(strings.Repeat("    ", depth))
		b.WriteString("}\n")
	}
	b.WriteString("}\n")
	return b.String()
}
