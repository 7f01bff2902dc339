// Package broker publishes limiter events (blocked and evicted clients) to an
// outside sink such as a Redis stream or the process log. Events only flow
// outwards; nothing here feeds state back into a limiter.
package broker

import (
	"context"
	"time"
)

const (
	// ClientBlocked is published the first time a client is rejected in a
	// blocking episode.
	ClientBlocked = "CLIENT_BLOCKED"
	// ClientEvicted is published when a client is dropped to respect the
	// tracked client cap.
	ClientEvicted = "CLIENT_EVICTED"
)

// Event represents the structure of the data that will be sent through the broker.
type Event struct {
	BrokerID  string        `json:"broker_id"`           // The ID of the publishing instance
	Event     string        `json:"event"`               // Type of event, e.g., "CLIENT_BLOCKED"
	Timestamp time.Time     `json:"timestamp"`           // When the event occurred
	Key       string        `json:"key"`                 // The client key, e.g., IP, UserID, etc.
	BlockFor  time.Duration `json:"block_for,omitempty"` // Remaining block time for CLIENT_BLOCKED
}

// Broker is the interface that abstracts event publishing.
type Broker interface {
	Publish(ctx context.Context, event Event) error
}
