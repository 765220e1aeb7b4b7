package device

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetsAreValid(t *testing.T) {
	for name, c := range Presets() {
		assert.NoError(t, c.Validate(), name)
	}
}

func TestValidateRejectsSmallBlocks(t *testing.T) {
	c := Discrete()
	c.MaxThreadsPerBlock = 64
	assert.ErrorIs(t, c.Validate(), ErrInvalidCapability)

	c = Discrete()
	c.MaxGridSize[1] = 0
	assert.ErrorIs(t, c.Validate(), ErrInvalidCapability)
}

func TestHostProfile(t *testing.T) {
	info := ProbeHost()
	require.Positive(t, info.Cores)
	assert.GreaterOrEqual(t, info.CacheLineSize, 32)

	h := Host()
	require.NoError(t, h.Validate())
	assert.True(t, h.Integrated())
	assert.Equal(t, info.Cores, h.MultiProcessorCount)
}

func TestRegistryProbesOnce(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry(ProberFunc(func(id int) (Capability, error) {
		calls.Add(1)
		return Discrete(), nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := reg.Lookup(0)
			assert.NoError(t, err)
			assert.Equal(t, "discrete", c.Name)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistryRejectsInvalidProfile(t *testing.T) {
	bad := Discrete()
	bad.L2CacheSize = 0
	reg := NewRegistry(Static(bad))

	_, err := reg.Lookup(0)
	assert.ErrorIs(t, err, ErrInvalidCapability)
}

func TestRegistryActive(t *testing.T) {
	reg := NewRegistry(Static(Discrete(), IntegratedGPU()))

	c, err := reg.Active()
	require.NoError(t, err)
	assert.Equal(t, "discrete", c.Name)

	require.NoError(t, reg.SetActive(1))
	c, err = reg.Active()
	require.NoError(t, err)
	assert.Equal(t, "integrated", c.Name)

	assert.ErrorIs(t, reg.SetActive(5), ErrUnknownDevice)
	assert.Equal(t, 1, reg.ActiveID())
}

func TestWebGPULimitsCapability(t *testing.T) {
	l := WebGPULimits{
		MaxInvocationsPerWorkgroup: 1024,
		MaxWorkgroupSize:           [3]uint32{1024, 1024, 64},
		MaxWorkgroupsPerDimension:  65535,
	}
	c := l.Capability()
	require.NoError(t, c.Validate())
	assert.Equal(t, "webgpu", c.Name)
	assert.Equal(t, 1024, c.MaxThreadsPerBlock)
	assert.Equal(t, [3]int{65535, 65535, 65535}, c.MaxGridSize)
	assert.Equal(t, WebGPUDefaults().L2CacheSize, c.L2CacheSize)

	// undefined limits keep the guaranteed minimums
	assert.Equal(t, WebGPUDefaults(), WebGPULimits{}.Capability())

	assert.NoError(t, l.CheckWorkgroup(32, 4, 1))
	assert.ErrorIs(t, l.CheckWorkgroup(1, 1, 128), ErrInvalidCapability)
	assert.NoError(t, WebGPULimits{}.CheckWorkgroup(4096, 4096, 4096))
}
