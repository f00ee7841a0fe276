// Package watchdog implements a multi-task health-feed monitor: each
// owning task periodically "feeds" its deadline, and the watchdog
// reports a fault if any registered task goes silent past its timeout.
// The per-task entry-with-mutex layout mirrors gocanopen's heartbeat
// consumer (pkg/heartbeat/consumer.go), which tracks one deadline per
// monitored remote node; here the "remote node" is a local task.
package watchdog

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stats reports per-task feed statistics.
type Stats struct {
	FeedCount   uint64
	MinInterval time.Duration
	MaxInterval time.Duration
	AvgInterval time.Duration
	LastFeedAt  time.Time
}

type taskEntry struct {
	mu              sync.Mutex
	minFeedInterval time.Duration
	lastFeedAt      time.Time
	lastCountedAt   time.Time
	feedCount       uint64
	minInterval     time.Duration
	maxInterval     time.Duration
	sumInterval     time.Duration
}

// Watchdog arms a fixed timeout at boot and tracks a feed deadline per
// registered task name.
type Watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	tasks   map[string]*taskEntry
	log     *logrus.Entry
}

// New arms a Watchdog with the given overall timeout. Tasks must call
// Feed at least every timeout/2 once Register'd.
func New(timeout time.Duration, log *logrus.Entry) *Watchdog {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Watchdog{
		timeout: timeout,
		tasks:   make(map[string]*taskEntry),
		log:     log.WithField("component", "watchdog"),
	}
}

// Register arms a new task's deadline as of now, with minFeedInterval
// controlling how often feeds are counted into the interval statistics.
// Registration counts as the task's first feed: the feed count starts at
// one and the first interval is measured from now.
func (w *Watchdog) Register(task string, minFeedInterval time.Duration, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks[task] = &taskEntry{
		minFeedInterval: minFeedInterval,
		lastFeedAt:      now,
		lastCountedAt:   now,
		feedCount:       1,
	}
}

// Feed records a liveness signal from task at time now. The deadline is
// refreshed unconditionally; the interval statistics only advance when
// at least minFeedInterval has elapsed since the last counted feed, so a
// task that feeds in a tight loop doesn't skew min/avg toward zero.
func (w *Watchdog) Feed(task string, now time.Time) {
	w.mu.Lock()
	entry, ok := w.tasks[task]
	w.mu.Unlock()
	if !ok {
		w.log.WithField("task", task).Warn("watchdog feed from unregistered task")
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastFeedAt = now

	sinceCounted := now.Sub(entry.lastCountedAt)
	if entry.feedCount > 0 && sinceCounted < entry.minFeedInterval {
		return
	}

	entry.feedCount++
	if entry.feedCount > 1 {
		if entry.minInterval == 0 || sinceCounted < entry.minInterval {
			entry.minInterval = sinceCounted
		}
		if sinceCounted > entry.maxInterval {
			entry.maxInterval = sinceCounted
		}
		entry.sumInterval += sinceCounted
	}
	entry.lastCountedAt = now
}

// Expired reports the names of every registered task whose deadline
// (lastFeedAt + timeout) has passed as of now.
func (w *Watchdog) Expired(now time.Time) []string {
	w.mu.Lock()
	names := make([]string, 0, len(w.tasks))
	entries := make([]*taskEntry, 0, len(w.tasks))
	for name, e := range w.tasks {
		names = append(names, name)
		entries = append(entries, e)
	}
	w.mu.Unlock()

	var expired []string
	for i, e := range entries {
		e.mu.Lock()
		missed := now.Sub(e.lastFeedAt) > w.timeout
		e.mu.Unlock()
		if missed {
			expired = append(expired, names[i])
		}
	}
	return expired
}

// Stats returns a snapshot of task's feed statistics. ok is false if task
// was never registered.
func (w *Watchdog) Stats(task string) (Stats, bool) {
	w.mu.Lock()
	entry, ok := w.tasks[task]
	w.mu.Unlock()
	if !ok {
		return Stats{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s := Stats{
		FeedCount:   entry.feedCount,
		MinInterval: entry.minInterval,
		MaxInterval: entry.maxInterval,
		LastFeedAt:  entry.lastFeedAt,
	}
	if entry.feedCount > 1 {
		s.AvgInterval = entry.sumInterval / time.Duration(entry.feedCount-1)
	}
	return s, true
}
