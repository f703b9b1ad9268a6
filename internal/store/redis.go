package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"matrixhub/internal/models"
)

// Redis keys, shared with any other instance pointed at the same server.
const (
	stateKey    = "matrix:state"
	imageKey    = "matrix:image"
	imageRevKey = "matrix:image_rev"
)

// RedisStore persists the document and image in Redis so several
// instances can share one source of truth.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger

	mu   sync.Mutex
	last models.StateDocument
}

func NewRedisStore(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger, last: models.DefaultState()}
}

func (s *RedisStore) LoadState(ctx context.Context) models.StateDocument {
	data, err := s.rdb.Get(ctx, stateKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("redis store: state read failed, using last known document",
				zap.Error(err))
		}
		return s.lastKnown()
	}

	var doc models.StateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("redis store: state decode failed, using last known document",
			zap.Error(err))
		return s.lastKnown()
	}

	doc = Normalize(doc)
	s.mu.Lock()
	s.last = doc
	s.mu.Unlock()
	return doc
}

func (s *RedisStore) SaveState(ctx context.Context, doc models.StateDocument) error {
	doc = Normalize(doc)
	s.mu.Lock()
	s.last = doc
	s.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, stateKey, data, 0).Err()
}

// SaveImage writes the blob and bumps the revision in one pipeline so
// no reader can observe the new image with the old revision.
func (s *RedisStore) SaveImage(ctx context.Context, png []byte) (int64, error) {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, imageKey, png, 0)
	incr := pipe.Incr(ctx, imageRevKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) LoadImage(ctx context.Context) ([]byte, int64, error) {
	data, err := s.rdb.Get(ctx, imageKey).Bytes()
	if err == redis.Nil {
		return nil, 0, ErrNoImage
	}
	if err != nil {
		return nil, 0, err
	}

	rev, err := s.rdb.Get(ctx, imageRevKey).Int64()
	if err != nil && err != redis.Nil {
		return nil, 0, err
	}
	return data, rev, nil
}

func (s *RedisStore) lastKnown() models.StateDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
