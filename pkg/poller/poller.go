// Package poller implements the Adaptive Poller (§4.4): a pure
// arithmetic interval controller with no time-source dependency of its
// own — callers feed it measured round-trip latencies and it adjusts
// the next poll interval to hold latency near a target while backing
// off under sustained failure. Ported directly from
// original_source/legacy/arduino_src/optimization/adaptive_polling.cpp,
// which is itself the reference this bridge's pacing must match bit for
// bit (the "comfortable headroom" doubling condition in particular).
package poller

// Config enumerates the poller's tunables (§4.4), with the original
// implementation's own defaults.
type Config struct {
	BaseIntervalMs   uint32
	MinIntervalMs    uint32
	MaxIntervalMs    uint32
	BackoffStepMs    uint32
	RecoveryStepMs   uint32
	LatencyTargetMs  uint32
	LatencySlackMs   uint32
	FailureThreshold uint32
	SuccessThreshold uint32
}

// DefaultConfig matches optimization::AdaptivePollingConfig's defaults.
func DefaultConfig() Config {
	return Config{
		BaseIntervalMs:   100,
		MinIntervalMs:    50,
		MaxIntervalMs:    500,
		BackoffStepMs:    25,
		RecoveryStepMs:   10,
		LatencyTargetMs:  40,
		LatencySlackMs:   15,
		FailureThreshold: 3,
		SuccessThreshold: 6,
	}
}

const (
	minLatencyTargetMs = 5
	minIntervalFloorMs = 5
)

// Poller is the interval controller. Not safe for concurrent use from
// multiple goroutines; the BMS poll task owns it exclusively.
type Poller struct {
	cfg Config

	intervalMs uint32

	lastLatencyMs uint32
	maxLatencyMs  uint32
	latencySumMs  uint64
	latencySamples uint32

	failureStreak uint32
	successStreak uint32
}

// New constructs a Poller, clamping the configuration to the same
// floors the original applies (min latency target ≥ 5ms, min interval
// floor ≥ 5ms, max interval ≥ min interval).
func New(cfg Config) *Poller {
	if cfg.MinIntervalMs < minIntervalFloorMs {
		cfg.MinIntervalMs = minIntervalFloorMs
	}
	if cfg.MaxIntervalMs < cfg.MinIntervalMs {
		cfg.MaxIntervalMs = cfg.MinIntervalMs
	}
	if cfg.LatencyTargetMs < minLatencyTargetMs {
		cfg.LatencyTargetMs = minLatencyTargetMs
	}

	p := &Poller{cfg: cfg}
	p.intervalMs = clamp(cfg.BaseIntervalMs, cfg.MinIntervalMs, cfg.MaxIntervalMs)
	return p
}

// CurrentInterval returns the interval, in milliseconds, to wait before
// the next poll attempt.
func (p *Poller) CurrentInterval() uint32 { return p.intervalMs }

// LastLatencyMs returns the most recently recorded latency.
func (p *Poller) LastLatencyMs() uint32 { return p.lastLatencyMs }

// MaxLatencyMs returns the maximum latency recorded so far.
func (p *Poller) MaxLatencyMs() uint32 { return p.maxLatencyMs }

// AverageLatencyMs returns the running mean latency across every
// recorded sample (success or failure), or 0 before the first sample.
func (p *Poller) AverageLatencyMs() float64 {
	if p.latencySamples == 0 {
		return 0
	}
	return float64(p.latencySumMs) / float64(p.latencySamples)
}

// ConsecutiveFailures returns the current failure streak.
func (p *Poller) ConsecutiveFailures() uint32 { return p.failureStreak }

// ConsecutiveSuccesses returns the current success streak.
func (p *Poller) ConsecutiveSuccesses() uint32 { return p.successStreak }

// RecordSuccess records a successful poll with the given round-trip
// latency, resets the failure streak, and decreases the interval once
// the success streak crosses SuccessThreshold with latency inside
// target+slack — doubling the step when latency has comfortable
// headroom (latency_ms + slack_ms < target_ms + slack_ms, i.e. latency
// strictly below target).
func (p *Poller) RecordSuccess(latencyMs uint32) {
	p.recordSample(latencyMs)
	p.failureStreak = 0
	p.successStreak++
	p.recover(latencyMs)
	p.clampInterval()
}

// RecordFailure records a failed poll with the given round-trip
// latency, resets the success streak, and increases the interval once
// latency reaches target+slack or the failure streak crosses
// FailureThreshold.
func (p *Poller) RecordFailure(latencyMs uint32) {
	p.recordSample(latencyMs)
	p.successStreak = 0
	p.failureStreak++
	p.backoff(latencyMs)
	p.clampInterval()
}

// RecordTimeout is equivalent to RecordFailure(target + slack).
func (p *Poller) RecordTimeout() {
	p.RecordFailure(p.cfg.LatencyTargetMs + p.cfg.LatencySlackMs)
}

func (p *Poller) recordSample(latencyMs uint32) {
	p.lastLatencyMs = latencyMs
	if latencyMs > p.maxLatencyMs {
		p.maxLatencyMs = latencyMs
	}
	p.latencySumMs += uint64(latencyMs)
	p.latencySamples++
}

func (p *Poller) backoff(latencyMs uint32) {
	slackTarget := p.cfg.LatencyTargetMs + p.cfg.LatencySlackMs
	if latencyMs >= slackTarget || p.failureStreak >= p.cfg.FailureThreshold {
		delta := p.cfg.BackoffStepMs
		if latencyMs > slackTarget {
			delta += latencyMs - slackTarget
		}
		next := p.intervalMs + delta
		if next > p.cfg.MaxIntervalMs {
			next = p.cfg.MaxIntervalMs
		}
		p.intervalMs = next
		p.failureStreak = 0
	}
}

func (p *Poller) recover(latencyMs uint32) {
	if p.intervalMs <= p.cfg.MinIntervalMs {
		return
	}

	slackTarget := p.cfg.LatencyTargetMs + p.cfg.LatencySlackMs
	if latencyMs <= slackTarget && p.successStreak >= p.cfg.SuccessThreshold {
		delta := p.cfg.RecoveryStepMs
		if latencyMs+p.cfg.LatencySlackMs < slackTarget && p.intervalMs > p.cfg.MinIntervalMs {
			delta += p.cfg.RecoveryStepMs
		}
		if p.intervalMs > delta {
			p.intervalMs -= delta
		} else {
			p.intervalMs = p.cfg.MinIntervalMs
		}
		p.successStreak = 0
	}
}

func (p *Poller) clampInterval() {
	p.intervalMs = clamp(p.intervalMs, p.cfg.MinIntervalMs, p.cfg.MaxIntervalMs)
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
