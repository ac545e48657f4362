package usecase

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/domain"
)

type SimilarityUC interface {
	FindSimilarByImage(ctx context.Context, req *SimilarSearchReq) (*SimilarSearchRes, error)
	FindSimilarComplete(ctx context.Context, req *CompleteSearchReq) (*CompleteSearchRes, error)
}

type RecommendationUC interface {
	GetUserSearchHistory(ctx context.Context, userID string, limit int) ([]*domain.SearchHistoryEntry, error)
	GetUserRecommendations(ctx context.Context, userID string, limit int) (*RecommendationsRes, error)
}

type CatalogUC interface {
	Embed(ctx context.Context, image ImageInput) (*EmbedRes, error)
	UploadAndStore(ctx context.Context, req *UploadAndStoreReq) (*UploadAndStoreRes, error)
	Retrieve(ctx context.Context, id string, includeVector bool) (*domain.EmbeddingRecord, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req *ListReq) (*ListRes, error)
	Stats(ctx context.Context) (*domain.CollectionStats, error)
}
