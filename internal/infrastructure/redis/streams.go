package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types appended to the event stream.
const (
	EventSubmitted = "submitted"
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
)

// Event is one workflow milestone for downstream analytics.
type Event struct {
	Type      string
	Flow      string
	Owner     string
	RequestID string
	Data      map[string]any
}

// EventPublisher appends workflow events to a capped Redis stream.
type EventPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewEventPublisher(client *redis.Client, stream string, maxLen int64) *EventPublisher {
	return &EventPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *EventPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_type": ev.Type,
			"flow":       ev.Flow,
			"owner":      ev.Owner,
			"request_id": ev.RequestID,
			"payload":    string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Message is an event read back from the stream, with its stream id.
type Message struct {
	ID string
	Event
}

// StreamConsumer reads the event stream through a consumer group.
type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

// CreateGroup creates the group, and the stream with it. An existing group is fine.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks up to the block duration and returns new messages, or none.
func (c *StreamConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var out []Message
	for _, st := range streams {
		for _, msg := range st.Messages {
			out = append(out, decodeMessage(msg))
		}
	}
	return out, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack messages: %w", err)
	}
	return nil
}

func decodeMessage(msg redis.XMessage) Message {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}
	m := Message{
		ID: msg.ID,
		Event: Event{
			Type:      str("event_type"),
			Flow:      str("flow"),
			Owner:     str("owner"),
			RequestID: str("request_id"),
		},
	}
	if payload := str("payload"); payload != "" {
		// A malformed payload still yields the envelope fields.
		_ = json.Unmarshal([]byte(payload), &m.Data)
	}
	return m
}
