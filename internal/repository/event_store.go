package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/worker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisEventStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisEventStore создает EventStore поверх списков Redis с TTL.
func NewRedisEventStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) EventStore {
	return &redisEventStore{client: client, ttl: ttl, logger: logger.Named("event_store")}
}

func eventsKey(runID uuid.UUID) string {
	return fmt.Sprintf("loadtest:run:%s:events", runID)
}

func summaryKey(runID uuid.UUID) string {
	return fmt.Sprintf("loadtest:run:%s:summary", runID)
}

// Append добавляет события в конец списка прогона и продлевает TTL.
func (s *redisEventStore) Append(ctx context.Context, runID uuid.UUID, events []worker.Event) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]any, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", e.Seq, err)
		}
		values = append(values, data)
	}

	key := eventsKey(runID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to archive run events", zap.String("runID", runID.String()), zap.Error(err))
		return fmt.Errorf("archive events of run %s: %w", runID, err)
	}
	s.logger.Debug("Run events archived", zap.String("runID", runID.String()), zap.Int("count", len(events)))
	return nil
}

// List возвращает события прогона начиная с offset.
func (s *redisEventStore) List(ctx context.Context, runID uuid.UUID, offset int) ([]worker.Event, error) {
	raw, err := s.client.LRange(ctx, eventsKey(runID), int64(max(offset, 0)), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events of run %s: %w", runID, err)
	}
	events := make([]worker.Event, 0, len(raw))
	for _, item := range raw {
		var e worker.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode event of run %s: %w", runID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *redisEventStore) SaveSummary(ctx context.Context, summary domain.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := s.client.Set(ctx, summaryKey(summary.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save summary of run %s: %w", summary.RunID, err)
	}
	return nil
}

func (s *redisEventStore) GetSummary(ctx context.Context, runID uuid.UUID) (domain.RunSummary, error) {
	data, err := s.client.Get(ctx, summaryKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RunSummary{}, fmt.Errorf("summary of run %s: %w", runID, domain.ErrNotFound)
		}
		return domain.RunSummary{}, fmt.Errorf("read summary of run %s: %w", runID, err)
	}
	var summary domain.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.RunSummary{}, fmt.Errorf("decode summary of run %s: %w", runID, err)
	}
	return summary, nil
}
