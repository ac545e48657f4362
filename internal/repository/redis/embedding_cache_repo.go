package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/repository/redis/converter"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/jimlawless/whereami"
	goredis "github.com/redis/go-redis/v9"
)

const embeddingKeyPrefix = "embedding:"

// Cmdable команды go-redis, которые использует кэш.
type Cmdable interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// EmbeddingCacheRepo кэширует эмбеддинги изображений в Redis с заданным TTL.
type EmbeddingCacheRepo struct {
	client Cmdable
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewEmbeddingCacheRepo(client Cmdable, cfg *cfg.RedisCfg, logger logger.Logger) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// GetEmbedding возвращает эмбеддинг из кэша. При промахе found=false.
// Повреждённое значение считается промахом.
func (r *EmbeddingCacheRepo) GetEmbedding(ctx context.Context, key string) (*usecase.Embedding, bool, error) {
	data, err := r.client.Get(ctx, embeddingKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, e.Wrap(whereami.WhereAmI(), err)
	}

	model, err := unmarshalEmbedding(data)
	if err != nil {
		r.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return nil, false, nil
	}

	return converter.ToUseCase(model), true, nil
}

// SetEmbedding сохраняет эмбеддинг в кэш.
func (r *EmbeddingCacheRepo) SetEmbedding(ctx context.Context, key string, embedding *usecase.Embedding) error {
	data, err := json.Marshal(converter.ToRedisModel(embedding))
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := r.client.Set(ctx, embeddingKey(key), data, r.cfg.EmbeddingTTL).Err(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// unmarshalEmbedding десериализует JSON из кэша в модель эмбеддинга
func unmarshalEmbedding(data []byte) (*converter.EmbeddingRedisModel, error) {
	var model converter.EmbeddingRedisModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	if len(model.Vector) == 0 {
		return nil, fmt.Errorf("cached embedding has empty vector")
	}

	return &model, nil
}

// embeddingKey возвращает Redis-ключ для эмбеддинга
func embeddingKey(key string) string {
	return embeddingKeyPrefix + key
}
