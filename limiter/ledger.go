package limiter

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrInvalidConfig is returned by NewLedger when the rate cannot be enforced.
var ErrInvalidConfig = errors.New("invalid limiter config")

// Ledger tracks a clear time per client key: the instant at which every hit the
// client has made will have decayed away. Each hit pushes the clear time forward
// by one interval (period / hitsPerPeriod), but never from further back than the
// hit itself. A client is blocked once its clear time is more than one full
// period in the future.
//
// Two indices are kept in lockstep: a map for lookups by key and a min-heap
// ordered by clear time for sweeping and eviction. Every exported method is a
// single critical section over both, so callers never see one updated without
// the other. Nothing runs in the background; stale clients only leave the ledger
// through ExpireUpTo, ExpireUpToN, EvictEarliest or Hit.
type Ledger struct {
	hitsPerPeriod float64
	period        time.Duration
	interval      time.Duration

	clients map[string]*record
	expiry  expiryQueue
	mutex   sync.Mutex
}

// NewLedger returns an empty Ledger that tolerates hitsPerPeriod hits per period.
func NewLedger(hitsPerPeriod float64, period time.Duration) (*Ledger, error) {
	if math.IsNaN(hitsPerPeriod) || math.IsInf(hitsPerPeriod, 0) || hitsPerPeriod <= 0 {
		return nil, fmt.Errorf("%w: hits per period must be a positive number, got %v", ErrInvalidConfig, hitsPerPeriod)
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %v", ErrInvalidConfig, period)
	}

	interval := time.Duration(float64(period) / hitsPerPeriod)
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %v hits per %v leaves no time between hits", ErrInvalidConfig, hitsPerPeriod, period)
	}

	eq := make(expiryQueue, 0)
	heap.Init(&eq)
	return &Ledger{
		hitsPerPeriod: hitsPerPeriod,
		period:        period,
		interval:      interval,
		clients:       make(map[string]*record),
		expiry:        eq,
	}, nil
}

// HitsPerPeriod returns the number of hits tolerated per period.
func (l *Ledger) HitsPerPeriod() float64 { return l.hitsPerPeriod }

// Period returns the configured period.
func (l *Ledger) Period() time.Duration { return l.period }

// Interval returns the minimum spacing between hits that never accrues debt.
func (l *Ledger) Interval() time.Duration { return l.interval }

// RecordHit records a hit for key at hitTime.
// Out-of-order hit times are tolerated: the stored clear time acts as a floor.
func (l *Ledger) RecordHit(key string, hitTime time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.recordHit(key, hitTime)
}

// ClearTime returns the clear time for key, or false if key is not tracked.
func (l *Ledger) ClearTime(key string) (time.Time, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	rec, ok := l.clients[key]
	if !ok {
		return time.Time{}, false
	}
	return rec.clearTime, true
}

// BlockTimeRemaining returns how much longer key is blocked as of now.
// Untracked clients are never blocked.
func (l *Ledger) BlockTimeRemaining(key string, now time.Time) time.Duration {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.blockTimeRemaining(key, now)
}

// Len returns the number of tracked clients.
func (l *Ledger) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.clients)
}

// IndexSizes returns the size of the key index and of the expiry queue.
// They are always equal; both are exposed so a divergence would be visible.
func (l *Ledger) IndexSizes() (primary, expiry int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.clients), l.expiry.Len()
}

// ExpireUpTo forgets every client whose clear time is at or before cutoff and
// returns how many were removed.
//
// Expired clients form a prefix of the expiry queue, so the cost is one heap pop
// per removed client. Callers are expected to sweep on every request, which
// keeps each call small; a large number of clients sharing the same clear time
// will still all be removed by the single call that passes it. Use ExpireUpToN
// to put a ceiling on the work done per call.
func (l *Ledger) ExpireUpTo(cutoff time.Time) int {
	return l.ExpireUpToN(cutoff, 0)
}

// ExpireUpToN is ExpireUpTo removing at most limit clients. A limit of zero or less
// means no limit.
func (l *Ledger) ExpireUpToN(cutoff time.Time, limit int) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.expireUpTo(cutoff, limit)
}

// EvictEarliest forgets the client with the earliest clear time and returns its
// key. It returns false and changes nothing when the ledger is empty.
func (l *Ledger) EvictEarliest() (string, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.evictEarliest()
}

// HitOptions bounds the housekeeping performed by Hit.
type HitOptions struct {
	// MaxClients is the hard cap on tracked clients. Zero disables the cap.
	MaxClients int
	// ExpireBatch is the most expired clients swept per call. Zero sweeps all.
	ExpireBatch int
}

// HitResult describes the ledger state after Hit.
type HitResult struct {
	ClearTime time.Time     // Zero when the client was evicted by its own hit
	Tracked   bool          // Whether the client is still tracked after the call
	BlockFor  time.Duration // Remaining block time, zero when allowed
	Expired   int           // Clients swept because their clear time had passed
	Evicted   []string      // Clients dropped to respect MaxClients
	Clients   int           // Tracked clients once the call completes
}

// Hit runs the per-request sequence under a single lock: sweep expired
// clients, record the hit, evict the earliest-clearing clients while over the
// cap and report the client's remaining block time.
func (l *Ledger) Hit(key string, now time.Time, opts HitOptions) HitResult {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	var res HitResult
	res.Expired = l.expireUpTo(now, opts.ExpireBatch)

	l.recordHit(key, now)

	if opts.MaxClients > 0 {
		for len(l.clients) > opts.MaxClients {
			evicted, ok := l.evictEarliest()
			if !ok {
				break
			}
			res.Evicted = append(res.Evicted, evicted)
		}
	}

	if rec, ok := l.clients[key]; ok {
		res.ClearTime = rec.clearTime
		res.Tracked = true
	}
	res.BlockFor = l.blockTimeRemaining(key, now)
	res.Clients = len(l.clients)

	return res
}

func (l *Ledger) recordHit(key string, hitTime time.Time) {
	rec, ok := l.clients[key]
	if !ok {
		rec = &record{
			key:       key,
			clearTime: hitTime.Add(l.interval),
		}
		l.clients[key] = rec
		heap.Push(&l.expiry, rec)
		return
	}

	base := hitTime
	if rec.clearTime.After(base) {
		base = rec.clearTime
	}
	rec.clearTime = base.Add(l.interval)
	heap.Fix(&l.expiry, rec.index)
}

func (l *Ledger) blockTimeRemaining(key string, now time.Time) time.Duration {
	rec, ok := l.clients[key]
	if !ok {
		return 0
	}

	remaining := rec.clearTime.Sub(now) - l.period
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Ledger) expireUpTo(cutoff time.Time, limit int) int {
	removed := 0
	for rec := l.expiry.peek(); rec != nil && !rec.clearTime.After(cutoff); rec = l.expiry.peek() {
		if limit > 0 && removed >= limit {
			break
		}
		l.remove(heap.Pop(&l.expiry).(*record))
		removed++
	}
	return removed
}

func (l *Ledger) evictEarliest() (string, bool) {
	if l.expiry.Len() == 0 {
		return "", false
	}
	rec := heap.Pop(&l.expiry).(*record)
	l.remove(rec)
	return rec.key, true
}

// remove drops a record that has already been popped from the expiry queue.
func (l *Ledger) remove(rec *record) {
	delete(l.clients, rec.key)
}
