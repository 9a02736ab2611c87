package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightDeduper(t *testing.T) {
	d := NewInFlightDeduper(time.Minute, 4)
	require.NoError(t, d.TryAcquire("order-1"))
	assert.ErrorIs(t, d.TryAcquire("order-1"), ErrDuplicateInFlight)
	assert.NoError(t, d.TryAcquire("order-2"))

	d.Release("order-1")
	assert.NoError(t, d.TryAcquire("order-1"))

	assert.NoError(t, d.TryAcquire(""))
	var nilDeduper *InFlightDeduper
	assert.NoError(t, nilDeduper.TryAcquire("x"))
}

func TestInFlightDeduperExpires(t *testing.T) {
	clock := time.Unix(1000, 0)
	d := NewInFlightDeduper(time.Second, 1)
	d.now = func() time.Time { return clock }

	require.NoError(t, d.TryAcquire("k"))
	clock = clock.Add(500 * time.Millisecond)
	assert.ErrorIs(t, d.TryAcquire("k"), ErrDuplicateInFlight)
	clock = clock.Add(time.Second)
	assert.NoError(t, d.TryAcquire("k"))
}

func TestInFlightDo(t *testing.T) {
	d := NewInFlightDeduper(0, 0)
	boom := errors.New("boom")

	err := d.Do("k", func() error {
		assert.ErrorIs(t, d.Do("k", func() error { return nil }), ErrDuplicateInFlight)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, d.Do("k", func() error { return nil }))
}
