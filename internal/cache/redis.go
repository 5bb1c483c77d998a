// Package cache holds the Redis-backed client state.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campaigndesk/campaigndesk/internal/guard"
)

const (
	guardKeyPrefix = "campaigndesk:guard:"
	// guardRecordTTL clears records of clients that never came back.
	guardRecordTTL = 30 * 24 * time.Hour
)

// Connect initializes a Redis client from a redis:// URL or host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// GuardStore persists guard records as one Redis hash per client.
type GuardStore struct {
	client redis.UniversalClient
}

var _ guard.StateStore = (*GuardStore)(nil)

func NewGuardStore(client redis.UniversalClient) *GuardStore {
	return &GuardStore{client: client}
}

func (s *GuardStore) Load(ctx context.Context, key string) (guard.Record, error) {
	data, err := s.client.HGetAll(ctx, guardKeyPrefix+key).Result()
	if err != nil {
		return guard.Record{}, err
	}
	if len(data) == 0 {
		return guard.Record{}, nil
	}

	rec := guard.Record{
		Authenticated: data["authenticated"] == "1",
		Role:          guard.Role(data["role"]),
		SessionID:     data["session_id"],
	}
	if raw, ok := data["unlock_at"]; ok && raw != "" {
		if ms, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil && ms > 0 {
			rec.UnlockAt = time.UnixMilli(ms).UTC()
		}
	}
	return rec, nil
}

// Save replaces the whole record in one transaction, so readers never see a
// mix of old and new fields.
func (s *GuardStore) Save(ctx context.Context, key string, rec guard.Record) error {
	redisKey := guardKeyPrefix + key

	fields := map[string]interface{}{
		"authenticated": boolField(rec.Authenticated),
		"role":          string(rec.Role),
		"session_id":    rec.SessionID,
	}
	if !rec.UnlockAt.IsZero() {
		fields["unlock_at"] = rec.UnlockAt.UnixMilli()
	}

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, redisKey)
		p.HSet(ctx, redisKey, fields)
		p.Expire(ctx, redisKey, guardRecordTTL)
		return nil
	})
	return err
}

func (s *GuardStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, guardKeyPrefix+key).Err()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
