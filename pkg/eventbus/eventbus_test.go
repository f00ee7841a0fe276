package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	ch := NewChannel[int]()
	var order []string

	ch.Subscribe(func(Envelope[int]) { order = append(order, "a") })
	ch.Subscribe(func(Envelope[int]) { order = append(order, "b") })
	ch.Subscribe(func(Envelope[int]) { order = append(order, "c") })

	ch.Publish(1)

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSeqNumMonotonic(t *testing.T) {
	ch := NewChannel[string]()
	var seqs []uint64
	ch.Subscribe(func(e Envelope[string]) { seqs = append(seqs, e.SeqNum) })

	ch.Publish("x")
	ch.Publish("y")
	ch.Publish("z")

	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestLatestCachesMostRecentValue(t *testing.T) {
	ch := NewChannel[int]()
	_, ok := ch.Latest()
	assert.False(t, ok)

	ch.Publish(10)
	ch.Publish(20)

	env, ok := ch.Latest()
	assert.True(t, ok)
	assert.Equal(t, 20, env.Value)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ch := NewChannel[int]()
	calls := 0
	sub := ch.Subscribe(func(Envelope[int]) { calls++ })

	ch.Publish(1)
	sub.Unsubscribe()
	ch.Publish(2)

	assert.Equal(t, 1, calls)
	// Unsubscribing twice must not panic.
	sub.Unsubscribe()
}

func TestStatsCountPublishedAndDelivered(t *testing.T) {
	ch := NewChannel[int]()
	ch.Subscribe(func(Envelope[int]) {})
	ch.Subscribe(func(Envelope[int]) {})

	ch.Publish(1)
	ch.Publish(2)

	stats := ch.Stats()
	assert.Equal(t, uint64(2), stats.TotalPublished)
	assert.Equal(t, uint64(4), stats.TotalDelivered)
	assert.Equal(t, 2, stats.SubscriberCount)
}
