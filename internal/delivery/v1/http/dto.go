package http

import (
	"time"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/usecase"
)

type StatsResponse struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	NonZeroCount int     `json:"non_zero_count"`
	Dimensions   int     `json:"dimensions"`
}

type EmbeddingResponse struct {
	ID                string         `json:"id"`
	Filename          string         `json:"filename"`
	Message           string         `json:"message"`
	EmbeddingStatus   string         `json:"embedding_status"`
	ProcessingTime    float64        `json:"processing_time"`
	Embeddings        []float32      `json:"embeddings"`
	EmbeddingsPreview []float32      `json:"embeddings_preview"`
	EmbeddingShape    []int          `json:"embedding_shape"`
	ModelUsed         string         `json:"model_used"`
	EmbeddingStats    *StatsResponse `json:"embedding_stats"`
}

type VectorStoreResponse struct {
	ID              string         `json:"id"`
	VectorID        string         `json:"vector_id"`
	Filename        string         `json:"filename"`
	Message         string         `json:"message"`
	EmbeddingStatus string         `json:"embedding_status"`
	VectorStored    bool           `json:"vector_stored"`
	ProcessingTime  float64        `json:"processing_time"`
	EmbeddingShape  []int          `json:"embedding_shape"`
	ModelUsed       string         `json:"model_used"`
	EmbeddingStats  *StatsResponse `json:"embedding_stats"`
	AssetURL        string         `json:"asset_url"`
	AssetPath       string         `json:"asset_path"`
	AssetUploaded   bool           `json:"asset_uploaded"`
	UserID          string         `json:"user_id,omitempty"`
}

type SimilarHitResponse struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
	Vector   []float32      `json:"vector,omitempty"`
}

type SimilarImagesResponse struct {
	QueryID             string               `json:"query_id"`
	QueryFilename       string               `json:"query_filename"`
	SimilarImages       []SimilarHitResponse `json:"similar_images"`
	SearchTime          float64              `json:"search_time"`
	TotalFound          int                  `json:"total_found"`
	SimilarityThreshold float32              `json:"similarity_threshold"`
	ModelUsed           string               `json:"model_used"`
	HistoryID           string               `json:"search_history_id,omitempty"`
}

type CompleteHitResponse struct {
	ID                string         `json:"id"`
	Score             float32        `json:"score"`
	Metadata          map[string]any `json:"metadata"`
	EmbeddingStats    *StatsResponse `json:"embedding_stats,omitempty"`
	EmbeddingsPreview []float32      `json:"embeddings_preview,omitempty"`
	EmbeddingFull     []float32      `json:"embedding_full,omitempty"`
	Error             string         `json:"error,omitempty"`
}

type CompleteSimilarityResponse struct {
	QueryID               string                `json:"query_id"`
	QueryFilename         string                `json:"query_filename"`
	QueryEmbeddingPreview []float32             `json:"query_embedding_preview"`
	QueryEmbeddingStats   *StatsResponse        `json:"query_embedding_stats"`
	QueryEmbedding        []float32             `json:"query_embedding,omitempty"`
	EmbeddingShape        []int                 `json:"embedding_shape"`
	ModelUsed             string                `json:"model_used"`
	SearchTime            float64               `json:"search_time"`
	TotalSimilarFound     int                   `json:"total_similar_found"`
	SimilarityThreshold   float32               `json:"similarity_threshold"`
	SimilarEmbeddings     []CompleteHitResponse `json:"similar_embeddings"`
	Message               string                `json:"message"`
	HistoryID             string                `json:"search_history_id,omitempty"`
}

type RetrieveResponse struct {
	VectorID          string         `json:"vector_id"`
	Filename          string         `json:"filename"`
	EmbeddingStatus   string         `json:"embedding_status"`
	VectorFound       bool           `json:"vector_found"`
	EmbeddingsPreview []float32      `json:"embeddings_preview"`
	EmbeddingFull     []float32      `json:"embedding_full,omitempty"`
	EmbeddingStats    *StatsResponse `json:"embedding_stats"`
	Metadata          map[string]any `json:"metadata"`
	ModelUsed         string         `json:"model_used"`
}

type ListItemResponse struct {
	ID                string         `json:"id"`
	Metadata          map[string]any `json:"metadata"`
	EmbeddingsPreview []float32      `json:"embeddings_preview,omitempty"`
	EmbeddingStats    *StatsResponse `json:"embedding_stats,omitempty"`
}

type ListResponse struct {
	Embeddings    []ListItemResponse `json:"embeddings"`
	TotalReturned int                `json:"total_returned"`
	Limit         int                `json:"limit"`
	Offset        int                `json:"offset"`
}

type DeleteResponse struct {
	VectorID string `json:"vector_id"`
	Deleted  bool   `json:"deleted"`
	Message  string `json:"message"`
}

type CollectionStatsResponse struct {
	CollectionName      string `json:"collection_name"`
	VectorsCount        uint64 `json:"vectors_count"`
	IndexedVectorsCount uint64 `json:"indexed_vectors_count"`
	PointsCount         uint64 `json:"points_count"`
	Status              string `json:"status"`
}

type SearchHistoryItemResponse struct {
	ID            string    `json:"id"`
	QueryFilename string    `json:"search_query_filename"`
	ResultsCount  int       `json:"similar_results_count"`
	SearchedAt    time.Time `json:"search_timestamp"`
}

type SearchHistoryResponse struct {
	UserID   string                      `json:"user_id"`
	Searches []SearchHistoryItemResponse `json:"searches"`
	Total    int                         `json:"total"`
}

type RecommendationSourceResponse struct {
	SearchID       string    `json:"search_id"`
	SearchFilename string    `json:"search_filename"`
	SearchedAt     time.Time `json:"searched_at"`
}

type RecommendationResponse struct {
	ID       string                       `json:"id"`
	Score    float32                      `json:"score"`
	Metadata map[string]any               `json:"metadata"`
	Source   RecommendationSourceResponse `json:"source"`
}

type RecommendationsResponse struct {
	UserID          string                   `json:"user_id"`
	Recommendations []RecommendationResponse `json:"recommendations"`
	Total           int                      `json:"total"`
	SeedsUsed       int                      `json:"seeds_used"`
	HistorySize     int                      `json:"history_size"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// MAPPERS

func toStatsResponse(s domain.VectorStats) *StatsResponse {
	return &StatsResponse{
		Min:          s.Min,
		Max:          s.Max,
		Mean:         s.Mean,
		NonZeroCount: s.NonZeroCount,
		Dimensions:   s.Dimensions,
	}
}

func toSimilarHits(hits []domain.SearchHit) []SimilarHitResponse {
	res := make([]SimilarHitResponse, 0, len(hits))
	for _, h := range hits {
		res = append(res, SimilarHitResponse{
			ID:       h.ID,
			Score:    h.Score,
			Metadata: h.Payload.ToMap(),
			Vector:   h.Vector,
		})
	}
	return res
}

func toCompleteHits(hits []usecase.CompleteHit) []CompleteHitResponse {
	res := make([]CompleteHitResponse, 0, len(hits))
	for _, h := range hits {
		item := CompleteHitResponse{
			ID:                h.Hit.ID,
			Score:             h.Hit.Score,
			Metadata:          h.Hit.Payload.ToMap(),
			EmbeddingsPreview: h.Preview,
			EmbeddingFull:     h.Vector,
		}
		if h.Stats != nil {
			item.EmbeddingStats = toStatsResponse(*h.Stats)
		}
		if h.Err != nil {
			item.Error = h.Err.Error()
		}
		res = append(res, item)
	}
	return res
}

func toRetrieveResponse(rec *domain.EmbeddingRecord) *RetrieveResponse {
	return &RetrieveResponse{
		VectorID:          rec.ID,
		Filename:          rec.Payload.Filename,
		EmbeddingStatus:   "found",
		VectorFound:       true,
		EmbeddingsPreview: rec.Preview,
		EmbeddingFull:     rec.Vector,
		EmbeddingStats:    toStatsResponse(rec.Stats),
		Metadata:          rec.Payload.ToMap(),
		ModelUsed:         rec.Payload.ModelUsed,
	}
}

func toListResponse(res *usecase.ListRes, includePreviews bool) *ListResponse {
	items := make([]ListItemResponse, 0, len(res.Records))
	for _, rec := range res.Records {
		item := ListItemResponse{
			ID:       rec.ID,
			Metadata: rec.Payload.ToMap(),
		}
		if includePreviews {
			item.EmbeddingsPreview = rec.Preview
			item.EmbeddingStats = toStatsResponse(rec.Stats)
		}
		items = append(items, item)
	}

	return &ListResponse{
		Embeddings:    items,
		TotalReturned: len(items),
		Limit:         res.Limit,
		Offset:        res.Offset,
	}
}

func toCollectionStatsResponse(s *domain.CollectionStats) *CollectionStatsResponse {
	return &CollectionStatsResponse{
		CollectionName:      s.Name,
		VectorsCount:        s.VectorCount,
		IndexedVectorsCount: s.IndexedVectorCount,
		PointsCount:         s.PointCount,
		Status:              s.Status,
	}
}

func toSearchHistoryResponse(userID string, entries []*domain.SearchHistoryEntry) *SearchHistoryResponse {
	items := make([]SearchHistoryItemResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, SearchHistoryItemResponse{
			ID:            entry.ID,
			QueryFilename: entry.QueryFilename,
			ResultsCount:  entry.ResultsCount,
			SearchedAt:    entry.SearchedAt,
		})
	}

	return &SearchHistoryResponse{
		UserID:   userID,
		Searches: items,
		Total:    len(items),
	}
}

func toRecommendationsResponse(res *usecase.RecommendationsRes) *RecommendationsResponse {
	items := make([]RecommendationResponse, 0, len(res.Recommendations))
	for _, rec := range res.Recommendations {
		items = append(items, RecommendationResponse{
			ID:       rec.Hit.ID,
			Score:    rec.Hit.Score,
			Metadata: rec.Hit.Payload.ToMap(),
			Source: RecommendationSourceResponse{
				SearchID:       rec.Source.SearchID,
				SearchFilename: rec.Source.SearchFilename,
				SearchedAt:     rec.Source.SearchedAt,
			},
		})
	}

	return &RecommendationsResponse{
		UserID:          res.UserID,
		Recommendations: items,
		Total:           len(items),
		SeedsUsed:       res.SeedsUsed,
		HistorySize:     res.HistorySize,
	}
}
