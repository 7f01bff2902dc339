package hitledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/parkerroan/hitledger/broker"
	"github.com/parkerroan/hitledger/clock"
	"github.com/parkerroan/hitledger/limiter"
	"github.com/parkerroan/hitledger/metrics"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
)

const (
	defaultHitsPerPeriod   = 3
	defaultPeriod          = 10 * time.Second
	defaultMaxClients      = 1000000
	defaultDenialCacheSize = 10000
)

// Decision is the outcome of a single TryAccept call.
type Decision struct {
	Key      string
	Allowed  bool
	BlockFor time.Duration // Remaining block time, zero when allowed
	// RetryAfter is how long to wait before the next hit is accepted. It
	// exceeds BlockFor by one interval because the retry is itself recorded.
	RetryAfter time.Duration
	ClearTime  time.Time     // When the client's hits will have fully decayed
	Limit      float64       // Hits tolerated per Window
	Window     time.Duration
}

// RateLimiter wraps a limiter.Ledger with the per-request housekeeping a
// service needs: a clock, a hard cap on tracked clients, event publishing,
// metrics and logging.
type RateLimiter struct {
	ledger        *limiter.Ledger
	hitsPerPeriod float64
	period        time.Duration
	hitOpts       limiter.HitOptions

	clock    clock.Clock
	broker   broker.Broker
	brokerID string
	metrics  *metrics.Metrics
	logger   *slog.Logger

	denialCacheSize int64
	denials         *denialCache

	capWarning rate.Sometimes
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithHitsPerPeriod sets how many hits a client may make per period.
// default: 3
func WithHitsPerPeriod(hits float64) Option {
	return func(rl *RateLimiter) {
		rl.hitsPerPeriod = hits
	}
}

// WithPeriod sets the period over which hits are counted.
// default: 10s
func WithPeriod(period time.Duration) Option {
	return func(rl *RateLimiter) {
		rl.period = period
	}
}

// WithMaxClients sets the hard cap on tracked clients. When a hit pushes the
// count over the cap, the clients closest to fully decaying are dropped.
// Zero disables the cap.
// default: 1,000,000
func WithMaxClients(maxClients int) Option {
	return func(rl *RateLimiter) {
		rl.hitOpts.MaxClients = maxClients
	}
}

// WithExpireBatch bounds how many expired clients are swept per hit.
// Zero sweeps every expired client.
func WithExpireBatch(batch int) Option {
	return func(rl *RateLimiter) {
		rl.hitOpts.ExpireBatch = batch
	}
}

// WithClock sets the time source used to stamp hits.
func WithClock(c clock.Clock) Option {
	return func(rl *RateLimiter) {
		rl.clock = c
	}
}

// WithBroker sets where blocked and evicted client events are published.
func WithBroker(b broker.Broker) Option {
	return func(rl *RateLimiter) {
		rl.broker = b
	}
}

// WithBrokerID sets the instance ID stamped on published events.
// default: a random UUID
func WithBrokerID(id string) Option {
	return func(rl *RateLimiter) {
		rl.brokerID = id
	}
}

// WithMetrics sets the Prometheus collectors updated on every hit.
func WithMetrics(m *metrics.Metrics) Option {
	return func(rl *RateLimiter) {
		rl.metrics = m
	}
}

// WithLogger sets the logger.
// default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithDenialCacheSize sets how many blocked clients are remembered so that a
// blocking episode is only logged and published once.
func WithDenialCacheSize(size int64) Option {
	return func(rl *RateLimiter) {
		rl.denialCacheSize = size
	}
}

// NewRateLimiter creates a RateLimiter. It fails if the rate is not enforceable.
func NewRateLimiter(opts ...Option) (*RateLimiter, error) {
	rl := &RateLimiter{
		hitsPerPeriod:   defaultHitsPerPeriod,
		period:          defaultPeriod,
		hitOpts:         limiter.HitOptions{MaxClients: defaultMaxClients},
		clock:           clock.System{},
		logger:          slog.Default(),
		denialCacheSize: defaultDenialCacheSize,
		capWarning:      rate.Sometimes{Interval: 10 * time.Second},
	}

	// Apply all provided options
	for _, opt := range opts {
		opt(rl)
	}

	if rl.hitOpts.MaxClients < 0 {
		return nil, errors.New("max clients must not be negative")
	}
	if rl.hitOpts.ExpireBatch < 0 {
		return nil, errors.New("expire batch must not be negative")
	}

	ledger, err := limiter.NewLedger(rl.hitsPerPeriod, rl.period)
	if err != nil {
		return nil, err
	}
	rl.ledger = ledger

	denials, err := newDenialCache(rl.denialCacheSize)
	if err != nil {
		return nil, err
	}
	rl.denials = denials

	if rl.brokerID == "" {
		rl.brokerID = uuid.NewString()
	}

	return rl, nil
}

// TryAccept records a hit for key at the current time and reports whether the
// client may proceed.
func (rl *RateLimiter) TryAccept(ctx context.Context, key string) (bool, Decision) {
	now := rl.clock.Now()
	res := rl.ledger.Hit(key, now, rl.hitOpts)

	decision := Decision{
		Key:       key,
		Allowed:   res.BlockFor == 0,
		BlockFor:  res.BlockFor,
		ClearTime: res.ClearTime,
		Limit:     rl.hitsPerPeriod,
		Window:    rl.period,
	}
	if !decision.Allowed {
		decision.RetryAfter = res.BlockFor + rl.ledger.Interval()
	}

	if rl.metrics != nil {
		rl.metrics.ObserveHit(!decision.Allowed, res.Expired, len(res.Evicted), res.Clients)
	}

	if len(res.Evicted) > 0 {
		rl.capWarning.Do(func() {
			rl.logger.Warn("tracked client cap reached, evicting earliest clearing clients",
				slog.Int("max_clients", rl.hitOpts.MaxClients),
				slog.Int("evicted", len(res.Evicted)),
			)
		})
		for _, evicted := range res.Evicted {
			rl.denials.forget(evicted)
			rl.publish(ctx, broker.ClientEvicted, evicted, now, 0)
		}
	}

	if !decision.Allowed && rl.denials.first(key, res.BlockFor) {
		rl.logger.Warn("client rate limited",
			slog.String("key", key),
			slog.Duration("block_for", res.BlockFor),
		)
		rl.publish(ctx, broker.ClientBlocked, key, now, res.BlockFor)
	}

	return decision.Allowed, decision
}

// Ledger returns the underlying ledger for diagnostics.
func (rl *RateLimiter) Ledger() *limiter.Ledger {
	return rl.ledger
}

// Now returns the current time of the limiter's clock.
func (rl *RateLimiter) Now() time.Time {
	return rl.clock.Now()
}

// BrokerID returns the instance ID stamped on published events.
func (rl *RateLimiter) BrokerID() string {
	return rl.brokerID
}

// Close releases the denial cache.
func (rl *RateLimiter) Close() {
	rl.denials.close()
}

func (rl *RateLimiter) publish(ctx context.Context, event, key string, now time.Time, blockFor time.Duration) {
	if rl.broker == nil {
		return
	}

	err := rl.broker.Publish(ctx, broker.Event{
		BrokerID:  rl.brokerID,
		Event:     event,
		Timestamp: now,
		Key:       key,
		BlockFor:  blockFor,
	})
	if err != nil {
		rl.logger.Error("error publishing limiter event",
			slog.String("event", event),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}
