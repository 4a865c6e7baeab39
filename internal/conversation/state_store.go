package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultStateTTL = 24 * time.Hour

// StateRecord is the last state computed for a conversation.
type StateRecord struct {
	State                 State     `json:"state"`
	SummaryMessageID      string    `json:"summary_message_id,omitempty"`
	ConfirmationMessageID string    `json:"confirmation_message_id,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// RedisStateStore keeps StateRecords in Redis with a TTL, so a conversation
// that goes quiet falls back to Collecting.
type RedisStateStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &RedisStateStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("booking.internal.conversation.state"),
	}
}

func (s *RedisStateStore) Save(ctx context.Context, conversationID string, rec StateRecord) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(conversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: persist state: %w", err)
	}
	return nil
}

// Load returns the stored record and whether one existed.
func (s *RedisStateStore) Load(ctx context.Context, conversationID string) (StateRecord, bool, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StateRecord{}, false, nil
		}
		span.RecordError(err)
		return StateRecord{}, false, fmt.Errorf("conversation: load state: %w", err)
	}

	var rec StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		span.RecordError(err)
		return StateRecord{}, false, fmt.Errorf("conversation: decode state: %w", err)
	}
	return rec, true, nil
}

func stateKey(conversationID string) string {
	return fmt.Sprintf("booking:state:%s", conversationID)
}
