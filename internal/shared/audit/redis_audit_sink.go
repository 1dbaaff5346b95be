package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"refguard/internal/shared/eventbus"
	"refguard/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

// StreamName is the Redis Stream that receives the audit trail.
const StreamName = "refguard:audit"

// RedisAuditSink records integrity refusals and migration lifecycle events in
// a Redis Stream so operators can replay what the service decided and when.
type RedisAuditSink struct {
	client    *redis.Client
	logger    logger.Logger
	maxLength int64
}

// NewRedisAuditSink creates a new Redis-backed audit sink
func NewRedisAuditSink(client *redis.Client, log logger.Logger, maxLength int64) *RedisAuditSink {
	if maxLength <= 0 {
		maxLength = 10000
	}
	return &RedisAuditSink{
		client:    client,
		logger:    log.WithComponent("audit-sink"),
		maxLength: maxLength,
	}
}

// Register subscribes the sink to every audited event type on the bus.
func (s *RedisAuditSink) Register(bus eventbus.EventBusInterface) {
	for _, eventType := range []string{
		eventbus.EventTypeDeleteRefused,
		eventbus.EventTypeIdentityChangeRefused,
		eventbus.EventTypeValidationFailed,
		eventbus.EventTypeMigrationStarted,
		eventbus.EventTypeMigrationCompleted,
		eventbus.EventTypeMigrationFailed,
	} {
		bus.Subscribe(eventType, s.Record)
	}
}

// Record appends one event to the audit stream.
func (s *RedisAuditSink) Record(ctx context.Context, event eventbus.Event) error {
	payload, err := json.Marshal(event.Data())
	if err != nil {
		s.logger.Error("Failed to serialize audit payload", "eventType", event.Type(), "error", err)
		return err
	}

	_, err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		MaxLen: s.maxLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":      event.Type(),
			"source":    event.Source(),
			"payload":   payload,
			"timestamp": event.Timestamp().UnixNano(),
		},
	}).Result()
	if err != nil {
		s.logger.Error("Failed to append audit event", "eventType", event.Type(), "error", err)
		return err
	}

	s.logger.Debug("Audit event recorded", "eventType", event.Type())
	return nil
}

// EventsSince reads audit entries newer than lastID, "0" for the full stream.
func (s *RedisAuditSink) EventsSince(ctx context.Context, lastID string, count int64) ([]AuditEntry, error) {
	if lastID == "" {
		lastID = "0"
	}
	if count <= 0 {
		count = 100
	}

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.client.XRead(readCtx, &redis.XReadArgs{
		Streams: []string{StreamName, lastID},
		Count:   count,
		Block:   -1,
	}).Result()
	if err != nil {
		if err == redis.Nil || err == context.DeadlineExceeded {
			return []AuditEntry{}, nil
		}
		return nil, err
	}

	entries := []AuditEntry{}
	for _, stream := range res {
		for _, msg := range stream.Messages {
			entries = append(entries, entryFromMessage(msg))
		}
	}
	return entries, nil
}

// AuditEntry is one replayed audit record.
type AuditEntry struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func entryFromMessage(msg redis.XMessage) AuditEntry {
	entry := AuditEntry{ID: msg.ID}
	if v, ok := msg.Values["type"].(string); ok {
		entry.Type = v
	}
	if v, ok := msg.Values["source"].(string); ok {
		entry.Source = v
	}
	if v, ok := msg.Values["payload"].(string); ok {
		entry.Payload = json.RawMessage(v)
	}
	if v, ok := msg.Values["timestamp"].(string); ok {
		if nanos, err := strconv.ParseInt(v, 10, 64); err == nil {
			entry.Timestamp = time.Unix(0, nanos)
		}
	}
	return entry
}
