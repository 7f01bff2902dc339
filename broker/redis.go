package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jpillora/backoff"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/semaphore"
)

// ErrBufferFull is returned by RedisBroker.Publish when the publish buffer has
// no room. Publishing never blocks the caller's request path.
var ErrBufferFull = errors.New("publish buffer full")

const maxBatchSize = 100

// RedisBroker is an implementation of the Broker interface that appends
// batches of events to a Redis stream.
type RedisBroker struct {
	stream string
	client *redis.Client

	maxStreamLen   int64
	maxRetries     int
	bufferSize     int
	publishTimeout time.Duration

	backoff        *backoff.Backoff
	publishChannel chan Event

	sem    *semaphore.Weighted
	logger *slog.Logger

	// xadd is swapped out in tests.
	xadd func(ctx context.Context, args *redis.XAddArgs) error
}

// NewRedisBroker returns a RedisBroker writing to rdb. Call Start to begin
// draining published events.
func NewRedisBroker(rdb *redis.Client, opts ...func(*RedisBroker)) *RedisBroker {
	// Create an exponential backoff configuration
	b := backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: false,
	}

	rb := &RedisBroker{
		client:         rdb,
		stream:         "hitledger",
		maxRetries:     3,
		bufferSize:     100,
		publishTimeout: 500 * time.Millisecond,
		backoff:        &b,
		sem:            semaphore.NewWeighted(int64(100)), // default to 100 publish threads
		logger:         slog.Default(),
	}

	// Apply all provided options
	for _, opt := range opts {
		opt(rb)
	}

	rb.publishChannel = make(chan Event, rb.bufferSize)
	if rb.xadd == nil {
		rb.xadd = func(ctx context.Context, args *redis.XAddArgs) error {
			return rb.client.XAdd(ctx, args).Err()
		}
	}

	return rb
}

// WithStream sets the Redis stream name, a good value
// would be the name of your application.
// default: "hitledger"
func WithStream(stream string) func(*RedisBroker) {
	return func(rb *RedisBroker) {
		rb.stream = stream
	}
}

// WithCappedStream sets the approximate Redis stream max length.
func WithCappedStream(maxLen int64) func(*RedisBroker) {
	return func(rb *RedisBroker) {
		rb.maxStreamLen = maxLen
	}
}

// WithMaxThreads sets the maximum number of concurrent XADD calls.
func WithMaxThreads(maxThreads int) func(*RedisBroker) {
	return func(rb *RedisBroker) {
		rb.sem = semaphore.NewWeighted(int64(maxThreads))
	}
}

// WithBufferSize sets how many events may wait to be published before
// Publish starts returning ErrBufferFull.
func WithBufferSize(size int) func(*RedisBroker) {
	return func(rb *RedisBroker) {
		rb.bufferSize = size
	}
}

// WithMaxRetries sets how many times a failed batch is retried before it is dropped.
func WithMaxRetries(retries int) func(*RedisBroker) {
	return func(rb *RedisBroker) {
		rb.maxRetries = retries
	}
}

// WithBackoff sets the delay bounds between retries of a failed batch.
func WithBackoff(minDelay, maxDelay time.Duration) func(*RedisBroker) {
	return func(rb *RedisBroker) {
		rb.backoff = &backoff.Backoff{Min: minDelay, Max: maxDelay, Factor: 2}
	}
}

// WithLogger sets the logger used for publish failures.
func WithLogger(logger *slog.Logger) func(*RedisBroker) {
	return func(rb *RedisBroker) {
		rb.logger = logger
	}
}

// Publish queues an event for the background publisher. It returns
// ErrBufferFull instead of waiting when the buffer has no room.
func (r *RedisBroker) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case r.publishChannel <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Start runs the publisher in the background until ctx is done.
func (r *RedisBroker) Start(ctx context.Context) {
	go func() {
		if err := r.Run(ctx); err != nil {
			r.logger.Error("error publishing events", slog.Any("error", err))
		}
	}()
}

// Run drains queued events in batches of up to 100 and appends each batch to
// the stream, until ctx is done. In-flight batches are waited for before Run
// returns.
func (r *RedisBroker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		events := make([]Event, 0, maxBatchSize)

		// Block until we receive the first event
		select {
		case event := <-r.publishChannel:
			events = append(events, event)
		case <-ctx.Done():
			r.logDropped(0)
			return nil
		}

		// Gather whatever else is already waiting
	gather:
		for len(events) < maxBatchSize {
			select {
			case event := <-r.publishChannel:
				events = append(events, event)
			default:
				break gather
			}
		}

		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.logDropped(len(events))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func(events []Event) {
			defer wg.Done()
			defer r.sem.Release(1)

			if err := r.publish(ctx, events); err != nil {
				r.logger.Error("error publishing events to redis",
					slog.String("stream", r.stream),
					slog.Int("events", len(events)),
					slog.Any("error", err),
				)
			}
		}(events)
	}
}

// logDropped drains whatever is still buffered and logs it, together with
// pending events already taken off the buffer, as dropped.
func (r *RedisBroker) logDropped(pending int) {
	dropped := pending
drain:
	for {
		select {
		case <-r.publishChannel:
			dropped++
		default:
			break drain
		}
	}

	if dropped > 0 {
		r.logger.Warn("dropping unpublished events on shutdown",
			slog.String("stream", r.stream),
			slog.Int("events", dropped),
		)
	}
}

func (r *RedisBroker) publish(ctx context.Context, events []Event) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxStreamLen,
		Approx: r.maxStreamLen > 0,
		Values: map[string]interface{}{
			"events": payload,
		},
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.backoff.ForAttempt(float64(attempt - 1))):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
		lastErr = r.xadd(publishCtx, args)
		cancel()
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("publish %d events to stream %s: %w", len(events), r.stream, lastErr)
}

// DecodeEvents parses the "events" field of a stream entry written by RedisBroker.
func DecodeEvents(values map[string]interface{}) ([]Event, error) {
	raw, ok := values["events"].(string)
	if !ok {
		return nil, fmt.Errorf("stream entry has no events field")
	}

	var events []Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return events, nil
}
