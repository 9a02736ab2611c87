package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDispatchesByType(t *testing.T) {
	b := NewBus()
	var trades []TradeCompletedEvent
	var invalidations int
	Subscribe(b, func(e TradeCompletedEvent) { trades = append(trades, e) })
	unsub := Subscribe(b, func(SessionInvalidatedEvent) { invalidations++ })

	Publish(b, TradeCompletedEvent{ListingID: "m1", Quantity: 2})
	Publish(b, SessionInvalidatedEvent{Reason: "401"})
	unsub()
	Publish(b, SessionInvalidatedEvent{Reason: "401"})

	assert.Len(t, trades, 1)
	assert.Equal(t, "m1", trades[0].ListingID)
	assert.Equal(t, 1, invalidations)
}

func TestBusRecoversFromPanics(t *testing.T) {
	b := NewBus()
	var called bool
	Subscribe(b, func(FeedUpdatedEvent) { panic("boom") })
	Subscribe(b, func(FeedUpdatedEvent) { called = true })

	assert.NotPanics(t, func() { Publish(b, FeedUpdatedEvent{}) })
	assert.True(t, called)

	var nilBus *Bus
	assert.NotPanics(t, func() { Publish(nilBus, FeedUpdatedEvent{}) })
}
