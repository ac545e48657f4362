package usecase

import (
	"time"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/shopspring/decimal"
)

// IMAGES

// ImageInput — изображение, загруженное через multipart/form-data.
type ImageInput struct {
	Data        []byte // байты изображения
	Filename    string // оригинальное имя файла
	ContentType string // Content-Type из multipart (image/jpeg)
}

// Embedding — результат векторизации одного изображения.
type Embedding struct {
	Vector       []float32
	Shape        []int
	ModelVersion string
}

// SIMILARITY USECASE

// SimilarSearchReq — запрос поиска похожих изображений.
type SimilarSearchReq struct {
	Image     ImageInput
	Limit     int
	Threshold *float32 // nil означает порог по умолчанию
	UserID    string   // без пользователя поиск не пишется в историю

	IncludeVectors bool
}

// SimilarSearchRes результат поиска похожих изображений.
type SimilarSearchRes struct {
	Hits           []domain.SearchHit
	QueryStats     domain.VectorStats
	QueryShape     []int
	ModelVersion   string
	Threshold      float32
	ProcessingTime time.Duration
	HistoryID      string // id записи истории, если поиск был записан
}

// CompleteSearchReq — запрос поиска с повторным чтением каждого результата.
type CompleteSearchReq struct {
	SimilarSearchReq
	IncludeEmbeddings bool
}

// CompleteHit — результат поиска с полной информацией о записи.
// При ошибке повторного чтения заполнены только Hit и Err.
type CompleteHit struct {
	Hit     domain.SearchHit
	Stats   *domain.VectorStats
	Preview []float32
	Vector  []float32 // только при IncludeEmbeddings
	Err     error
}

// CompleteSearchRes результат полного поиска.
type CompleteSearchRes struct {
	Hits           []CompleteHit
	QueryStats     domain.VectorStats
	QueryPreview   []float32
	QueryEmbedding []float32 // только при IncludeEmbeddings
	QueryShape     []int
	ModelVersion   string
	Threshold      float32
	ProcessingTime time.Duration
	HistoryID      string
}

// RECOMMENDATION USECASE

// RecommendationSource — запрос из истории, по которому найдена рекомендация.
type RecommendationSource struct {
	SearchID       string
	SearchFilename string
	SearchedAt     time.Time
}

// Recommendation рекомендованный товар.
type Recommendation struct {
	Hit    domain.SearchHit
	Source RecommendationSource
}

// RecommendationsRes рекомендации пользователя.
type RecommendationsRes struct {
	UserID          string
	Recommendations []Recommendation
	SeedsUsed       int
	HistorySize     int
}

// CATALOG USECASE

// EmbedRes — эмбеддинг изображения без сохранения.
type EmbedRes struct {
	Embedding      Embedding
	Stats          domain.VectorStats
	Preview        []float32
	ProcessingTime time.Duration
}

// UploadAndStoreReq — запрос на загрузку изображения товара и сохранение его эмбеддинга.
type UploadAndStoreReq struct {
	Image       ImageInput
	ProductName string
	Price       decimal.Decimal
	UserID      string
	Metadata    map[string]any // дополнительные поля payload
}

// UploadAndStoreRes результат сохранения товара.
type UploadAndStoreRes struct {
	ID             string
	AssetURL       string
	AssetPath      string
	Stats          domain.VectorStats
	Shape          []int
	ModelVersion   string
	ProcessingID   string
	ProcessingTime time.Duration
}

// ListReq — запрос страницы записей.
type ListReq struct {
	Limit           int
	Offset          int
	IncludePreviews bool
}

// ListRes страница записей.
type ListRes struct {
	Records []domain.EmbeddingRecord
	Limit   int
	Offset  int
}

// INFRASTRUCTURE

// UploadObjectReq — запрос на загрузку объекта в хранилище.
type UploadObjectReq struct {
	Data        []byte
	Filename    string
	ContentType string
}

// UploadObjectRes результат загрузки. При OK=false объект не загружен.
type UploadObjectRes struct {
	OK   bool
	URL  string
	Path string
}

// Типы событий
const (
	EventEmbeddingStored  = "embedding.stored"
	EventEmbeddingDeleted = "embedding.deleted"
	EventSearchRecorded   = "search.recorded"
)

// Event событие об изменении данных, публикуемое во внешнюю шину.
type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"type"`
	RecordID   string         `json:"record_id"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// MAPPERS

func NewImageInput(data []byte, filename, contentType string) ImageInput {
	return ImageInput{
		Data:        data,
		Filename:    filename,
		ContentType: contentType,
	}
}

func NewEmbedding(vector []float32, shape []int, modelVersion string) *Embedding {
	return &Embedding{
		Vector:       vector,
		Shape:        shape,
		ModelVersion: modelVersion,
	}
}

func NewUploadObjectReq(image ImageInput) *UploadObjectReq {
	return &UploadObjectReq{
		Data:        image.Data,
		Filename:    image.Filename,
		ContentType: image.ContentType,
	}
}

func NewUploadObjectRes(ok bool, url, path string) *UploadObjectRes {
	return &UploadObjectRes{
		OK:   ok,
		URL:  url,
		Path: path,
	}
}
