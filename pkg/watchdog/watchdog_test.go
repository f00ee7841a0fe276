package watchdog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpiredReportsTaskPastDeadline(t *testing.T) {
	w := New(time.Second, nil)
	base := time.Unix(1000, 0)
	w.Register("bms", 10*time.Millisecond, base)
	w.Register("can", 10*time.Millisecond, base)

	w.Feed("can", base.Add(500*time.Millisecond))

	assert.Equal(t, []string{"bms"}, w.Expired(base.Add(1100*time.Millisecond)))
}

func TestFeedWithinMinIntervalDoesNotSkewStats(t *testing.T) {
	w := New(time.Second, nil)
	base := time.Unix(1000, 0)
	w.Register("bms", 50*time.Millisecond, base)

	w.Feed("bms", base.Add(5*time.Millisecond))  // below min interval, not counted
	w.Feed("bms", base.Add(10*time.Millisecond)) // below min interval, not counted
	w.Feed("bms", base.Add(100*time.Millisecond))

	stats, ok := w.Stats("bms")
	assert.True(t, ok)
	assert.Equal(t, uint64(2), stats.FeedCount)
	assert.Equal(t, 100*time.Millisecond, stats.MinInterval)
	assert.Equal(t, 100*time.Millisecond, stats.MaxInterval)
}

func TestFeedAlwaysRefreshesDeadlineEvenWhenNotCounted(t *testing.T) {
	w := New(200*time.Millisecond, nil)
	base := time.Unix(1000, 0)
	w.Register("bms", 50*time.Millisecond, base)

	w.Feed("bms", base.Add(10*time.Millisecond))
	assert.Empty(t, w.Expired(base.Add(150*time.Millisecond)))
}

func TestStatsUnknownTask(t *testing.T) {
	w := New(time.Second, nil)
	_, ok := w.Stats("nope")
	assert.False(t, ok)
}

func TestFeedUnregisteredTaskIsSafe(t *testing.T) {
	w := New(time.Second, nil)
	assert.NotPanics(t, func() { w.Feed("ghost", time.Now()) })
}
