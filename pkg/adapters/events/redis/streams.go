package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/aescanero/carecoord/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamsEventBus implements EventBus using Redis Streams. Every subscriber
// reads the stream on its own from the entry current at subscribe time, so
// all subscribers see all events published afterwards.
type StreamsEventBus struct {
	client *redis.Client
	logger *zap.Logger
	maxLen int64
	block  time.Duration

	mu      sync.Mutex
	nextID  int
	cancels map[string]map[int]context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamsEventBus creates a new Redis Streams event bus. Streams are
// trimmed to maxLen entries; zero disables trimming.
func NewStreamsEventBus(client *redis.Client, maxLen int64, logger *zap.Logger) *StreamsEventBus {
	return &StreamsEventBus{
		client:  client,
		logger:  logger,
		maxLen:  maxLen,
		block:   time.Second,
		cancels: make(map[string]map[int]context.CancelFunc),
	}
}

// Publish publishes an event to the topic's stream
func (e *StreamsEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	streamKey := getStreamKey(topic)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}

	if _, err := e.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	// Exact trim as its own command; XADD ... MAXLEN = n is not understood
	// by every Redis-compatible server.
	if e.maxLen > 0 {
		if err := e.client.XTrimMaxLen(ctx, streamKey, e.maxLen).Err(); err != nil {
			return fmt.Errorf("failed to trim stream: %w", err)
		}
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("session_id", event.SessionID),
		zap.String("stream", streamKey))

	return nil
}

// Subscribe starts reading the topic's stream until ctx is cancelled or the
// topic is unsubscribed
func (e *StreamsEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	streamKey := getStreamKey(topic)

	lastID, err := e.tailID(ctx, streamKey)
	if err != nil {
		return err
	}

	readCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.cancels[topic] == nil {
		e.cancels[topic] = make(map[int]context.CancelFunc)
	}
	e.cancels[topic][id] = cancel
	e.mu.Unlock()

	e.logger.Info("subscribed to event stream",
		zap.String("stream", streamKey),
		zap.String("topic", topic),
		zap.String("from", lastID))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(topic, id)
		e.readStream(readCtx, streamKey, lastID, handler)
	}()

	return nil
}

// tailID returns the id of the newest entry, or 0-0 for an empty stream
func (e *StreamsEventBus) tailID(ctx context.Context, streamKey string) (string, error) {
	entries, err := e.client.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read stream tail: %w", err)
	}
	if len(entries) == 0 {
		return "0-0", nil
	}
	return entries[0].ID, nil
}

// readStream reads events from a stream
func (e *StreamsEventBus) readStream(ctx context.Context, streamKey, lastID string, handler ports.EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := e.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, lastID},
			Count:   10,
			Block:   e.block,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				// No new messages
				continue
			}
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("failed to read from stream",
				zap.String("stream", streamKey),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if ctx.Err() != nil {
			return
		}
		for _, stream := range streams {
			for _, message := range stream.Messages {
				lastID = message.ID
				e.processMessage(ctx, streamKey, message, handler)
			}
		}
	}
}

// processMessage processes a single message from the stream
func (e *StreamsEventBus) processMessage(ctx context.Context, streamKey string, message redis.XMessage, handler ports.EventHandler) {
	data, ok := message.Values["data"].(string)
	if !ok {
		e.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID))
		return
	}

	var event domain.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		e.logger.Error("failed to unmarshal event",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	if err := handler(ctx, event); err != nil {
		e.logger.Error("handler error",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
}

// Unsubscribe stops every reader of a topic
func (e *StreamsEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cancel := range e.cancels[topic] {
		cancel()
	}
	delete(e.cancels, topic)
	return nil
}

// release drops a finished reader
func (e *StreamsEventBus) release(topic string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cancel, ok := e.cancels[topic][id]; ok {
		cancel()
		delete(e.cancels[topic], id)
	}
	if len(e.cancels[topic]) == 0 {
		delete(e.cancels, topic)
	}
}

// Close stops all readers. The Redis client is closed by the caller.
func (e *StreamsEventBus) Close() error {
	e.mu.Lock()
	for topic, cancels := range e.cancels {
		for _, cancel := range cancels {
			cancel()
		}
		delete(e.cancels, topic)
	}
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

// getStreamKey returns the Redis stream key for a topic
func getStreamKey(topic string) string {
	return fmt.Sprintf("carecoord:events:%s", topic)
}
