package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ironlog/ironlog/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	sessionDocKeyPrefix = "session:doc:"
	sessionEventsPrefix = "session:events:"

	// Published in place of a document when the canonical session is deleted.
	nullSnapshot = "null"
)

// RedisSessionChannel implements domain.SessionChannel on Redis: one key per
// user holds the canonical session document, and a pub/sub channel per user
// carries snapshot pushes. Subscribers get the current document once on
// subscribe if one exists, then every published change. Delivery is
// at-least-once.
type RedisSessionChannel struct {
	client *redis.Client
}

// NewRedisSessionChannel creates a session channel on an existing client.
func NewRedisSessionChannel(client *redis.Client) *RedisSessionChannel {
	return &RedisSessionChannel{client: client}
}

func sessionDocKey(userID string) string    { return sessionDocKeyPrefix + userID }
func sessionEventsKey(userID string) string { return sessionEventsPrefix + userID }

// Write replaces the canonical document and pushes the snapshot to
// subscribers.
func (c *RedisSessionChannel) Write(ctx context.Context, userID string, session *domain.Session) error {
	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "channel.Write",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := c.client.Set(ctx, sessionDocKey(userID), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write canonical session: %w", err)
	}
	if err := c.client.Publish(ctx, sessionEventsKey(userID), data).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish session snapshot: %w", err)
	}
	return nil
}

// Delete removes the canonical document and pushes a nil snapshot.
func (c *RedisSessionChannel) Delete(ctx context.Context, userID string) error {
	tracer := otel.Tracer("redis")
	ctx, span := tracer.Start(ctx, "channel.Delete",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if err := c.client.Del(ctx, sessionDocKey(userID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete canonical session: %w", err)
	}
	if err := c.client.Publish(ctx, sessionEventsKey(userID), nullSnapshot).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish session deletion: %w", err)
	}
	return nil
}

// Subscribe delivers the current canonical document (when present), then
// every published snapshot, until the returned stop func runs or ctx is
// cancelled.
// Malformed payloads are logged and skipped; they never kill the
// subscription.
func (c *RedisSessionChannel) Subscribe(ctx context.Context, userID string, fn func(*domain.Session)) (func(), error) {
	pubsub := c.client.Subscribe(ctx, sessionEventsKey(userID))
	// Force the subscription onto the wire before we read the current doc, so
	// no change can slip between the initial read and the stream.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		// Initial snapshot, only when a canonical document exists. A missing
		// document at subscribe time is indistinguishable from a session
		// started a moment ago and not yet pushed; deletions always arrive as
		// explicit events, so nothing is lost by staying quiet here.
		data, err := c.client.Get(subCtx, sessionDocKey(userID)).Bytes()
		switch {
		case err == redis.Nil:
			// no document, no initial delivery
		case err != nil:
			log.Printf("session channel: initial read failed for %s: %v", userID, err)
		default:
			if snap, ok := decodeSnapshot(userID, string(data)); ok {
				fn(snap)
			}
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if snap, ok := decodeSnapshot(userID, msg.Payload); ok {
					fn(snap)
				}
			}
		}
	}()

	stop := func() {
		cancel()
		pubsub.Close()
	}
	return stop, nil
}

// decodeSnapshot turns a published payload into a session, nil meaning "no
// canonical session". A payload that isn't JSON at all is skipped (ok=false)
// rather than delivered as a deletion; fields that fail to decode inside a
// valid object fall back to zero values, which the reconciler defaults.
func decodeSnapshot(userID, payload string) (*domain.Session, bool) {
	if payload == "" || payload == nullSnapshot {
		return nil, true
	}
	var session domain.Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		log.Printf("session channel: malformed snapshot for %s: %v", userID, err)
		return nil, false
	}
	return &session, true
}
