package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/volconv/internal/device"
)

const sample = `
log_level: debug
log_format: json
default_device: lab
workers: 6
devices:
  - name: lab
    max_parallel_threads: 4096
    max_threads_per_block: 256
    l2_cache_size: 262144
    memory_bus_width: 128
    multiprocessor_count: 8
    max_grid_size: [1024, 1024, 64]
  - name: integrated
    max_parallel_threads: 2048
    max_threads_per_block: 128
    l2_cache_size: 65536
    memory_bus_width: 64
    multiprocessor_count: 4
    max_grid_size: [65535, 65535, 65535]
`

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 6, cfg.Workers)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, [3]int{1024, 1024, 64}, cfg.Devices[0].MaxGridSize)

	lab, err := cfg.Device("")
	require.NoError(t, err)
	assert.Equal(t, "lab", lab.Name)
	assert.Equal(t, 256, lab.MaxThreadsPerBlock)

	// A configured entry shadows the preset of the same name.
	integ, err := cfg.Device("integrated")
	require.NoError(t, err)
	assert.Equal(t, 2048, integ.MaxParallelThreads)

	assert.Equal(t, []string{"discrete", "host", "integrated", "lab", "webgpu"}, cfg.DeviceNames())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"syntax", "workers: [", "parse config"},
		{"negative workers", "workers: -1", "workers must be non-negative"},
		{"unnamed device", "devices:\n  - max_parallel_threads: 1", "has no name"},
		{"duplicate", "devices:\n  - name: a\n  - name: a", "listed twice"},
		{"weak device", "devices:\n  - name: tiny\n    max_parallel_threads: 64\n    max_threads_per_block: 64", "max_threads_per_block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParse_InvalidDeviceIsCapabilityError(t *testing.T) {
	_, err := Parse([]byte("devices:\n  - name: zero\n"))
	assert.ErrorIs(t, err, device.ErrInvalidCapability)
}

func TestDevice_Unknown(t *testing.T) {
	_, err := Config{}.Device("quantum")
	assert.ErrorIs(t, err, device.ErrUnknownDevice)
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{LogLevel: "warn"}.WithDefaults()
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, DefaultDevice, cfg.DefaultDevice)
	assert.Equal(t, DefaultServerAddress, cfg.ServerAddress)

	host, err := Config{}.Device("")
	require.NoError(t, err)
	assert.Equal(t, "host", host.Name)
}
