package ml_service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

// CachedEmbedder отдаёт эмбеддинг из кэша по хэшу содержимого изображения и обращается к ML-сервису при промахе.
// Ошибки кэша не прерывают запрос.
type CachedEmbedder struct {
	next   usecase.EmbeddingProvider
	cache  usecase.EmbeddingCacheRepository
	model  string
	logger logger.Logger
}

func NewCachedEmbedder(next usecase.EmbeddingProvider, cache usecase.EmbeddingCacheRepository, model string, logger logger.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		next:   next,
		cache:  cache,
		model:  model,
		logger: logger,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, image []byte) (*usecase.Embedding, error) {
	const op = "CachedEmbedder.Embed"
	key := c.cacheKey(image)

	cached, found, err := c.cache.GetEmbedding(ctx, key)
	if err != nil {
		c.logger.Warnf("%s: cache read failed: %v", op, err)
	}
	if found {
		c.logger.Debugf("%s: cache hit %s", op, key)
		return cached, nil
	}

	emb, err := c.next.Embed(ctx, image)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetEmbedding(ctx, key, emb); err != nil {
		c.logger.Warnf("%s: cache write failed: %v", op, err)
	}

	return emb, nil
}

func (c *CachedEmbedder) cacheKey(image []byte) string {
	sum := sha256.Sum256(image)
	return c.model + ":" + hex.EncodeToString(sum[:])
}
