/*
Package hitledger provides a per-client rate limiter that keeps bounded memory
no matter how many distinct clients it sees.

Every client is tracked by a clear time, the instant at which its hits will have
fully decayed. A hit moves the clear time forward by period/hitsPerPeriod; a
client whose clear time runs more than a whole period ahead is blocked until it
no longer does. Clients whose hits have decayed are swept on later requests and,
once the tracked client cap is reached, the clients closest to decaying are
evicted first.

Example:

	import (
		"time"
		"github.com/parkerroan/hitledger"
	)

	rl, err := hitledger.NewRateLimiter(
		hitledger.WithHitsPerPeriod(3),
		hitledger.WithPeriod(10*time.Second),
		hitledger.WithMaxClients(1000000),
	)
	if err != nil {
		log.Fatal(err)
	}

	r := mux.NewRouter()
	r.Use(hitledger.HTTPMiddleware(rl, hitledger.KeyFromRemoteAddr))

The accounting engine lives in the limiter package and can be used without the
RateLimiter if you drive sweeping and eviction yourself:
- Ledger (https://github.com/parkerroan/hitledger/limiter)

Blocked and evicted clients can be reported through the broker package to a
Redis stream or the process log.
*/
package hitledger
