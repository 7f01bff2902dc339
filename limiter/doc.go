/*
Package limiter provides the rate accounting engine behind hitledger.

A Ledger keeps one clear time per client: the instant at which the client's
hits will have fully decayed if it stops sending them. Allowing
hitsPerPeriod hits per period, every hit moves the clear time forward by
period/hitsPerPeriod, starting from whichever is later of the hit and the
current clear time. A client is blocked for as long as its clear time lies more
than one period ahead.

Example:

	l, err := limiter.NewLedger(2, 10*time.Second)
	if err != nil {
		return err
	}

	now := time.Now()
	l.ExpireUpTo(now)
	l.RecordHit("203.0.113.7", now)
	if wait := l.BlockTimeRemaining("203.0.113.7", now); wait > 0 {
		// reject, retry after wait
	}

The Ledger never starts goroutines or timers. Memory is reclaimed only when the
caller sweeps with ExpireUpTo or evicts with EvictEarliest; Ledger.Hit bundles
the whole sequence for request handlers.
*/
package limiter
