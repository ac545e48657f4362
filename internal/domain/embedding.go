package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

// Ключи payload записи эмбеддинга в Qdrant
const (
	PayloadFilename       = "filename"
	PayloadFileSize       = "file_size"
	PayloadContentType    = "content_type"
	PayloadProcessingTime = "processing_time"
	PayloadModelUsed      = "model_used"
	PayloadUploadedAt     = "upload_timestamp"
	PayloadPrice          = "price"
	PayloadProductName    = "product_name"
	PayloadUserID         = "user_id"
	PayloadAssetURL       = "asset_url"
	PayloadAssetPath      = "asset_path"
)

// ProductPayload описывает метаданные изображения товара.
// Extra объединяется последним и перекрывает фиксированные ключи.
type ProductPayload struct {
	Filename       string
	FileSize       int64
	ContentType    string
	ProcessingTime float64 // секунды
	ModelUsed      string
	UploadedAt     time.Time
	Price          *float64
	ProductName    *string
	UserID         *string // nil для анонимной загрузки
	AssetURL       *string
	AssetPath      *string
	Extra          map[string]any
}

// EmbeddingRecord — сохранённый эмбеддинг вместе с метаданными.
type EmbeddingRecord struct {
	ID      string
	Vector  []float32 // заполняется только по запросу
	Preview []float32
	Stats   VectorStats
	Payload ProductPayload
}

// SearchHit результат поиска похожих векторов.
type SearchHit struct {
	ID      string
	Score   float32
	Payload ProductPayload
	Vector  []float32
}

// CollectionStats — сведения о коллекции эмбеддингов.
type CollectionStats struct {
	Name               string
	VectorCount        uint64 // по одному вектору на точку
	IndexedVectorCount uint64
	PointCount         uint64
	Status             string
}

// ToMap преобразует payload в плоскую карту для записи в хранилище.
func (p ProductPayload) ToMap() map[string]any {
	m := map[string]any{
		PayloadFilename:       p.Filename,
		PayloadFileSize:       p.FileSize,
		PayloadContentType:    p.ContentType,
		PayloadProcessingTime: p.ProcessingTime,
		PayloadModelUsed:      p.ModelUsed,
		PayloadUserID:         nil,
	}

	if !p.UploadedAt.IsZero() {
		m[PayloadUploadedAt] = p.UploadedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.UserID != nil {
		m[PayloadUserID] = *p.UserID
	}
	if p.Price != nil {
		m[PayloadPrice] = *p.Price
	}
	if p.ProductName != nil {
		m[PayloadProductName] = *p.ProductName
	}
	if p.AssetURL != nil {
		m[PayloadAssetURL] = *p.AssetURL
	}
	if p.AssetPath != nil {
		m[PayloadAssetPath] = *p.AssetPath
	}

	for k, v := range p.Extra {
		m[k] = v
	}

	return m
}

// ValidatePayload проверяет итоговую карту payload после слияния с Extra.
// Цена, если задана, должна быть конечным неотрицательным числом.
func ValidatePayload(m map[string]any) error {
	v, ok := m[PayloadPrice]
	if !ok || v == nil {
		return nil
	}

	price, ok := toFloat(v)
	if !ok || math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: %v", e.ErrInvalidPrice, v)
	}
	if price < 0 {
		return fmt.Errorf("%w: %v", e.ErrNegativePrice, price)
	}

	return nil
}

// ProductPayloadFromMap восстанавливает payload из карты, прочитанной из хранилища.
// Ключи, не подходящие под фиксированную схему по имени или типу, попадают в Extra.
func ProductPayloadFromMap(m map[string]any) ProductPayload {
	var p ProductPayload
	extra := make(map[string]any)

	for k, v := range m {
		ok := true
		switch k {
		case PayloadFilename:
			p.Filename, ok = v.(string)
		case PayloadFileSize:
			var n float64
			n, ok = toFloat(v)
			p.FileSize = int64(n)
		case PayloadContentType:
			p.ContentType, ok = v.(string)
		case PayloadProcessingTime:
			p.ProcessingTime, ok = toFloat(v)
		case PayloadModelUsed:
			p.ModelUsed, ok = v.(string)
		case PayloadUploadedAt:
			s, isStr := v.(string)
			if !isStr {
				ok = false
				break
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			ok = err == nil
			p.UploadedAt = t
		case PayloadPrice:
			if v == nil {
				break
			}
			var f float64
			f, ok = toFloat(v)
			if ok {
				p.Price = &f
			}
		case PayloadProductName:
			p.ProductName, ok = optionalString(v)
		case PayloadUserID:
			p.UserID, ok = optionalString(v)
		case PayloadAssetURL:
			p.AssetURL, ok = optionalString(v)
		case PayloadAssetPath:
			p.AssetPath, ok = optionalString(v)
		default:
			ok = false
		}

		if !ok {
			extra[k] = v
		}
	}

	if len(extra) > 0 {
		p.Extra = extra
	}

	return p
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func optionalString(v any) (*string, bool) {
	if v == nil {
		return nil, true
	}
	s, ok := v.(string)
	if !ok {
		return nil, false
	}

	return &s, true
}
