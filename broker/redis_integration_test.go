//go:build integration

package broker_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/parkerroan/hitledger/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	//load test.env file
	if _, err := os.Stat("test.env"); err == nil {
		if err := godotenv.Load("test.env"); err != nil {
			log.Fatalf("Error loading test.env file: %s", err)
		}
	}
}

func TestRedisBroker_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	// Context with timeout to avoid hanging tests indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := rdb.Ping(ctx).Result()
	require.NoError(t, err)

	stream := "hitledger-integration-test-stream"
	require.NoError(t, rdb.Del(ctx, stream).Err())

	redisBroker := broker.NewRedisBroker(rdb, broker.WithStream(stream))
	redisBroker.Start(ctx)

	// remove nanoseconds from timestamp to avoid flaky tests
	now := time.Now().Truncate(time.Second).UTC()
	original := broker.Event{
		BrokerID:  "test-broker",
		Event:     broker.ClientBlocked,
		Timestamp: now,
		Key:       "test-key-1",
		BlockFor:  2 * time.Second,
	}
	require.NoError(t, redisBroker.Publish(ctx, original))

	streams, err := rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, "0"},
		Count:   1,
		Block:   5 * time.Second,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 1)

	events, err := broker.DecodeEvents(streams[0].Messages[0].Values)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, original.Key, events[0].Key)
	assert.Equal(t, original.Event, events[0].Event)
	assert.Equal(t, original.BlockFor, events[0].BlockFor)
	assert.True(t, original.Timestamp.Equal(events[0].Timestamp))
}
