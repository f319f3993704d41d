package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yoockh/groupspeak/internal/models"
)

type RedisSnapshots struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisSnapshots(rdb redis.Cmdable, prefix string) *RedisSnapshots {
	return &RedisSnapshots{rdb: rdb, prefix: prefix, ttl: SessionSnapshotTTL}
}

func (r *RedisSnapshots) key(sessionID string) string {
	return r.prefix + "session:" + sessionID + ":snapshot"
}

func (r *RedisSnapshots) Load(ctx context.Context, sessionID string) (*models.Session, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(sessionID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil || s.ID != sessionID {
		_ = r.rdb.Unlink(ctx, r.key(sessionID)).Err()
		return nil, false, nil
	}
	return &s, true, nil
}

func (r *RedisSnapshots) Store(ctx context.Context, s *models.Session) error {
	if s == nil || s.ID == "" {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(s.ID), raw, r.ttl).Err()
}

func (r *RedisSnapshots) Drop(ctx context.Context, sessionID string) error {
	return r.rdb.Unlink(ctx, r.key(sessionID)).Err()
}
