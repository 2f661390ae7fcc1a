package envconfig

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	t.Setenv("BORN_NUM_THREADS", "")
	t.Setenv("BORN_ACCUMULATE", "")
	LoadConfig()

	assert.False(t, Debug)
	assert.Equal(t, runtime.NumCPU(), NumThreads)
	assert.Equal(t, 64, MinChunk)
	assert.Equal(t, uint64(0), MaxAlloc)
	assert.Equal(t, AccumulateAtomic, Accumulate)
}

func TestConfig(t *testing.T) {
	t.Setenv("BORN_DEBUG", "")
	LoadConfig()
	assert.False(t, Debug)

	t.Setenv("BORN_DEBUG", "false")
	LoadConfig()
	assert.False(t, Debug)

	t.Setenv("BORN_DEBUG", "1")
	LoadConfig()
	assert.True(t, Debug)

	t.Setenv("BORN_DEBUG", "yes please")
	LoadConfig()
	assert.True(t, Debug)

	t.Setenv("BORN_NUM_THREADS", "3")
	t.Setenv("BORN_MIN_CHUNK", "0")
	t.Setenv("BORN_MAX_ALLOC", "4096")
	t.Setenv("BORN_ACCUMULATE", "Striped")
	LoadConfig()
	assert.Equal(t, 3, NumThreads)
	assert.Equal(t, 0, MinChunk)
	assert.Equal(t, uint64(4096), MaxAlloc)
	assert.Equal(t, AccumulateStriped, Accumulate)
}

func TestInvalidValuesIgnored(t *testing.T) {
	t.Setenv("BORN_NUM_THREADS", "-2")
	t.Setenv("BORN_MIN_CHUNK", "abc")
	t.Setenv("BORN_MAX_ALLOC", "lots")
	t.Setenv("BORN_ACCUMULATE", "mutex")
	LoadConfig()

	assert.Equal(t, runtime.NumCPU(), NumThreads)
	assert.Equal(t, 64, MinChunk)
	assert.Equal(t, uint64(0), MaxAlloc)
	assert.Equal(t, AccumulateAtomic, Accumulate)
}

func TestValues(t *testing.T) {
	t.Setenv("BORN_NUM_THREADS", "2")
	LoadConfig()

	vals := Values()
	assert.Equal(t, "2", vals["BORN_NUM_THREADS"])
	assert.Len(t, vals, len(AsMap()))
}
