package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkIfNew(t *testing.T) {
	c := New(10, 5)

	assert.True(t, c.MarkIfNew("m1"))
	assert.False(t, c.MarkIfNew("m1"))
	assert.False(t, c.MarkIfNew("m1"))
	assert.Equal(t, 1, c.Len())

	assert.True(t, c.MarkIfNew("m2"))
	assert.Equal(t, 2, c.Len())
}

func TestEvictionTrimsToLowWater(t *testing.T) {
	c := New(10, 5)

	for i := 0; i < 10; i++ {
		require.True(t, c.MarkIfNew(fmt.Sprintf("m%d", i)))
	}
	assert.Equal(t, 10, c.Len())

	// The 11th insert crosses the high-water mark and trims to 5.
	require.True(t, c.MarkIfNew("m10"))
	assert.Equal(t, 5, c.Len())

	// The 5 most recently inserted ids survive.
	for i := 6; i <= 10; i++ {
		assert.True(t, c.Contains(fmt.Sprintf("m%d", i)), "m%d should be retained", i)
	}
	// The oldest are gone and may be admitted again.
	for i := 0; i < 6; i++ {
		assert.False(t, c.Contains(fmt.Sprintf("m%d", i)), "m%d should be evicted", i)
	}
	assert.True(t, c.MarkIfNew("m0"))
}

func TestSizeNeverExceedsHighWater(t *testing.T) {
	c := New(100, 50)

	for i := 0; i < 10000; i++ {
		c.MarkIfNew(fmt.Sprintf("m%d", i))
		require.LessOrEqual(t, c.Len(), 100)
	}
	assert.Equal(t, 50, c.Len())
}

func TestDefaultWatermarks(t *testing.T) {
	for _, c := range []*Cache{New(0, 0), New(-1, 10), New(5, 10)} {
		assert.Equal(t, DefaultHighWater, c.highWater)
		assert.Equal(t, DefaultLowWater, c.lowWater)
	}

	c := New(0, 0)
	for i := 0; i <= DefaultHighWater; i++ {
		c.MarkIfNew(fmt.Sprintf("m%d", i))
	}
	assert.Equal(t, DefaultLowWater, c.Len())
}
