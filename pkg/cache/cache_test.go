package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheExpiry(t *testing.T) {
	clock := time.Unix(0, 0)
	c := NewInMemoryCache[string, int](time.Minute)
	c.now = func() time.Time { return clock }

	c.Set("a", 1, 0)
	c.Set("b", 2, time.Second)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock = clock.Add(2 * time.Second)
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Size())

	clock = clock.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestGetOrLoadSharesOneLoad(t *testing.T) {
	c := NewInMemoryCache[string, []string](time.Minute)
	var loads int32
	gate := make(chan struct{})
	load := func(context.Context) ([]string, error) {
		atomic.AddInt32(&loads, 1)
		<-gate
		return []string{"all", "animals"}, nil
	}

	var wg sync.WaitGroup
	results := make([][]string, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "categories", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&loads) == 1 }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, []string{"all", "animals"}, r)
	}
	_, err := c.GetOrLoad(context.Background(), "categories", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute)
	boom := errors.New("boom")
	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
