package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/volconv/internal/api"
	"github.com/born-ml/volconv/internal/device"
	"github.com/born-ml/volconv/internal/launch"
	"github.com/born-ml/volconv/internal/serialization"
	"github.com/born-ml/volconv/internal/tensor"
)

// run executes the CLI with a config file that does not exist unless the
// caller passes its own --config.
func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard

	base := []string{"volconv", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-format", "text"}
	require.NoError(t, app.Run(context.Background(), append(base, args...)))
	return out.String()
}

func TestPlanCommand(t *testing.T) {
	out := run(t, "plan", "--dims", "1024,1024", "--device", "discrete", "--dtype", "float32")

	var got api.PlanResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)

	dims := tensor.Dim4{1024, 1024, 1, 1}
	want, err := launch.Plan(dims, 2, device.Discrete(), launch.IO{
		Inputs: 1, Outputs: 1, TotalSize: 2 * dims.Elements() * 4, ElementSize: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "discrete", got.Device)
	assert.Equal(t, want.Threads, got.Geometry.Threads)
	assert.Equal(t, want.Blocks, got.Geometry.Blocks)
	assert.Equal(t, want.Loop, got.Geometry.Loop)
	assert.Equal(t, want.Strategy, got.Geometry.Strategy)
}

func TestConvolveCommand(t *testing.T) {
	for _, backend := range []string{"cpu", "grid"} {
		t.Run(backend, func(t *testing.T) {
			out := run(t, "convolve", "--signal", "3,3,3", "--filter", "2,2,2",
				"--dtype", "float64", "--backend", backend, "--device", "host", "--limit=-1")

			var got convolveReport
			require.NoError(t, json.Unmarshal([]byte(out), &got), out)
			assert.Equal(t, tensor.Dim4{2, 2, 2, 1}, got.Output)
			// Ramp 1..27 under a 2x2x2 box: eight more than the 0-based sums.
			assert.Equal(t, []float64{60, 68, 84, 92, 132, 140, 156, 164}, got.Values)
			assert.Equal(t, float64(896), got.Sum)
		})
	}
}

func TestConvolveFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.safetensors")
	out := filepath.Join(dir, "out.safetensors")

	signal, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Dim4{4, 1, 1, 1}, tensor.CPU)
	require.NoError(t, err)
	filter, err := tensor.FromSlice([]float64{1, 2}, tensor.Dim4{2, 1, 1, 1}, tensor.CPU)
	require.NoError(t, err)
	require.NoError(t, serialization.WriteSafeTensors(in,
		map[string]*tensor.RawTensor{"signal": signal, "filter": filter}, nil))

	report := run(t, "convolve", "--signal-file", in, "--filter-file", in,
		"--padding", "1,0,0", "--stride", "2,1,1", "--output", out)
	var got convolveReport
	require.NoError(t, json.Unmarshal([]byte(report), &got), report)
	assert.Equal(t, "float64", got.DType)
	assert.Equal(t, []float64{1, 7, 8}, got.Values)

	f, err := serialization.ReadSafeTensors(out)
	require.NoError(t, err)
	assert.Equal(t, "2,1,1", f.Metadata["stride"])
	res, err := f.Tensor("output")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 7, 8}, tensor.Flatten[float64](res))
}

func TestUnwrapCommand(t *testing.T) {
	out := run(t, "unwrap", "--dims", "5,5,5", "--window", "3", "--device", "integrated", "--verify")

	var got unwrapReport
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, [3]int{3, 3, 3}, got.Counts)
	assert.Equal(t, tensor.Dim4{27, 27, 1, 1}, got.Output)
	assert.Equal(t, "integrated", got.Device)
	require.NotNil(t, got.Identical)
	assert.True(t, *got.Identical)
}

func TestDevicesCommand(t *testing.T) {
	out := run(t, "devices")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "discrete")
	assert.Contains(t, out, "5MiB")

	// Without an adapter the probe keeps the preset.
	out = run(t, "devices", "--probe", "--json")
	var list []device.Capability
	require.NoError(t, json.Unmarshal([]byte(out), &list), out)
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "webgpu")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: warn
default_device: lab
devices:
  - name: lab
    max_parallel_threads: 4096
    max_threads_per_block: 256
    l2_cache_size: 262144
    memory_bus_width: 128
    multiprocessor_count: 8
    max_grid_size: [1024, 1024, 64]
`), 0o600))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	require.NoError(t, app.Run(context.Background(),
		[]string{"volconv", "--config", path, "--log-level", "error", "plan", "--dims", "4096,64"}))

	var got api.PlanResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &got), out.String())
	assert.Equal(t, "lab", got.Device)
	// The explicit flag wins over the file.
	assert.Equal(t, "error", logLevel)
}

func TestBadInput(t *testing.T) {
	app := newApp()
	app.Writer, app.ErrWriter = io.Discard, io.Discard
	missing := filepath.Join(t.TempDir(), "none.yaml")

	err := app.Run(context.Background(), []string{"volconv", "--config", missing, "plan", "--dims", "4,x"})
	assert.ErrorContains(t, err, "not an integer")

	app = newApp()
	app.Writer, app.ErrWriter = io.Discard, io.Discard
	err = app.Run(context.Background(), []string{"volconv", "--config", missing, "plan", "--dims", "4", "--device", "quantum"})
	assert.ErrorIs(t, err, device.ErrUnknownDevice)
}

func TestParseHelpers(t *testing.T) {
	d, err := parseDims("dims", "64, 64,8")
	require.NoError(t, err)
	assert.Equal(t, [4]int{64, 64, 8, 1}, d)

	_, err = parseDims("dims", "1,2,3,4,5")
	assert.ErrorContains(t, err, "at most 4 axes")

	tr, err := parseTriple("stride", "2")
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 2, 2}, tr)

	_, err = parseTriple("stride", "1,2")
	assert.ErrorContains(t, err, "need 1 or 3 values")

	assert.Equal(t, "5MiB", formatBytes(5<<20))
	assert.Equal(t, "256KiB", formatBytes(256<<10))
	assert.Equal(t, "100B", formatBytes(100))
}
