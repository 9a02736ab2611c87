package shutdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShutdownRunsInReverseOnce(t *testing.T) {
	m := NewManager()
	var order []string
	boom := errors.New("boom")
	m.OnShutdown("store", func(context.Context) error { order = append(order, "store"); return nil })
	m.OnShutdown("feed", func(context.Context) error { order = append(order, "feed"); return boom })
	m.OnShutdown("bus", func(context.Context) error { order = append(order, "bus"); return nil })

	err := m.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"bus", "feed", "store"}, order)

	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}
