package usecase

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/domain"
)

type VectorRepository interface {
	Dimension() int
	Store(ctx context.Context, vector []float32, payload domain.ProductPayload) (string, error)
	SearchSimilar(ctx context.Context, query []float32, limit int, threshold float32, includeVectors bool) ([]domain.SearchHit, error)
	GetByID(ctx context.Context, id string, includeVector bool) (*domain.EmbeddingRecord, bool, error)
	DeleteByID(ctx context.Context, id string) (*domain.ProductPayload, bool, error)
	ListPage(ctx context.Context, limit, offset int, includePreviews bool) ([]domain.EmbeddingRecord, error)
	GetCollectionStats(ctx context.Context) (*domain.CollectionStats, error)
}

type SearchHistoryRepository interface {
	StoreSearch(ctx context.Context, entry *domain.SearchHistoryEntry) (string, error)
	// ListUserSearches возвращает до limit самых новых записей пользователя, новые первыми.
	ListUserSearches(ctx context.Context, userID string, limit int, withVectors bool) ([]*domain.SearchHistoryEntry, error)
}

type ImageRepository interface {
	Upload(ctx context.Context, image *domain.Image) (string, error)
	Delete(ctx context.Context, key string) error
}

// EmbeddingCacheRepository кэширует результаты ML-сервиса по ключу содержимого изображения.
type EmbeddingCacheRepository interface {
	GetEmbedding(ctx context.Context, key string) (*Embedding, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding *Embedding) error
}
