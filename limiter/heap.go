package limiter

import (
	"time"
)

// record is a tracked client. The same *record is referenced from the primary
// index (by key) and from the expiry queue (by position), so the clear time
// seen through either index is always the same value.
type record struct {
	key       string    // The client key, e.g. an IP address
	clearTime time.Time // When the client's accumulated hits have fully decayed
	index     int       // The index is needed by Fix and Remove and is maintained by the heap.Interface methods.
}

// expiryQueue implements heap.Interface and orders records by clear time.
// Records sharing a clear time are ordered by key, which makes the earliest
// entry unique and the sweep/eviction order deterministic.
type expiryQueue []*record

func (eq expiryQueue) Len() int { return len(eq) }

func (eq expiryQueue) Less(i, j int) bool {
	a, b := eq[i], eq[j]
	if a.clearTime.Before(b.clearTime) {
		return true
	}
	if b.clearTime.Before(a.clearTime) {
		return false
	}
	return a.key < b.key
}

func (eq expiryQueue) Swap(i, j int) {
	eq[i], eq[j] = eq[j], eq[i]
	eq[i].index = i
	eq[j].index = j
}

func (eq *expiryQueue) Push(x interface{}) {
	n := len(*eq)
	rec := x.(*record)
	rec.index = n
	*eq = append(*eq, rec)
}

func (eq *expiryQueue) Pop() interface{} {
	old := *eq
	n := len(old)
	rec := old[n-1]
	old[n-1] = nil // avoid memory leak
	rec.index = -1 // for safety
	*eq = old[0 : n-1]
	return rec
}

// peek returns the record with the earliest clear time without removing it.
func (eq expiryQueue) peek() *record {
	if len(eq) == 0 {
		return nil
	}
	return eq[0]
}
