package limiter

import "time"

// Limiter is the interface that abstracts the rate accounting engine.
type Limiter interface {
	RecordHit(key string, hitTime time.Time)
	ClearTime(key string) (time.Time, bool)
	BlockTimeRemaining(key string, now time.Time) time.Duration
	Len() int
	ExpireUpTo(cutoff time.Time) int
	EvictEarliest() (string, bool)
}

var _ Limiter = (*Ledger)(nil)
