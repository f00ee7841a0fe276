package bridge

import "tbvbridge/internal/ring"

// offlineTracker implements the BmsOffline rolling alarm (§7,
// SPEC_FULL §C.5): a rolling window of the last 10 polling-round
// outcomes, raising the alarm once 3 or more of the most recent rounds
// in that window have failed consecutively, clearing it on the next
// success.
type offlineTracker struct {
	outcomes *ring.Buffer[bool] // true = round succeeded
	raised   bool
}

const (
	offlineWindowSize       = 10
	offlineFailureThreshold = 3
)

func newOfflineTracker() *offlineTracker {
	return &offlineTracker{outcomes: ring.New[bool](offlineWindowSize)}
}

// Record folds one polling round's outcome into the window and reports
// whether the BmsOffline alarm should transition: raise (entering
// active, false->true) or clear (leaving active, true->false). Neither
// transition occurs if the alarm's state doesn't change this round.
func (t *offlineTracker) Record(success bool) (raise, clear bool) {
	t.outcomes.Push(success)

	if success {
		if t.raised {
			t.raised = false
			return false, true
		}
		return false, false
	}

	streak := 0
	for _, ok := range reverse(t.outcomes.Snapshot()) {
		if ok {
			break
		}
		streak++
	}

	if streak >= offlineFailureThreshold && !t.raised {
		t.raised = true
		return true, false
	}
	return false, false
}

func reverse(in []bool) []bool {
	out := make([]bool, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
