package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const uploadMethod = "upload_and_store"

// CatalogUseCase управляет каталогом изображений товаров: загрузка, векторизация, чтение и удаление.
type CatalogUseCase struct {
	vectors  VectorRepository
	embedder EmbeddingProvider
	objects  ObjectStore
	events   EventPublisher
	search   *cfg.SearchCfg
	upload   *cfg.UploadCfg
	logger   logger.Logger
}

func NewCatalogUC(
	vectors VectorRepository,
	embedder EmbeddingProvider,
	objects ObjectStore,
	events EventPublisher,
	search *cfg.SearchCfg,
	upload *cfg.UploadCfg,
	logger logger.Logger,
) *CatalogUseCase {
	return &CatalogUseCase{
		vectors:  vectors,
		embedder: embedder,
		objects:  objects,
		events:   events,
		search:   search,
		upload:   upload,
		logger:   logger,
	}
}

// Embed возвращает эмбеддинг изображения без сохранения.
func (c *CatalogUseCase) Embed(ctx context.Context, image ImageInput) (res *EmbedRes, err error) {
	const op = "CatalogUseCase.Embed"

	ctx, span := tracing.Start(ctx, op)
	defer func() { tracing.End(span, err) }()

	if err := validateImage(image, c.upload); err != nil {
		return nil, e.Wrap(op, err)
	}

	start := time.Now()
	embedding, err := c.embedder.Embed(ctx, image.Data)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(embedding.Vector) == 0 {
		return nil, e.Wrap(op, e.ErrEmptyVector)
	}

	return &EmbedRes{
		Embedding:      *embedding,
		Stats:          domain.ComputeStats(embedding.Vector),
		Preview:        domain.Preview(embedding.Vector, domain.PreviewSize),
		ProcessingTime: time.Since(start),
	}, nil
}

// UploadAndStore загружает изображение в объектное хранилище, векторизует его и сохраняет запись.
// Если векторизация или сохранение не удались, загруженный объект удаляется в фоне.
func (c *CatalogUseCase) UploadAndStore(ctx context.Context, req *UploadAndStoreReq) (res *UploadAndStoreRes, err error) {
	const op = "CatalogUseCase.UploadAndStore"

	ctx, span := tracing.Start(ctx, op, attribute.String("image.content_type", req.Image.ContentType))
	defer func() { tracing.End(span, err) }()

	if err := c.validateUpload(req); err != nil {
		return nil, e.Wrap(op, err)
	}

	start := time.Now()

	// Сохранение изображения в объектное хранилище
	uploaded, err := c.objects.Upload(ctx, NewUploadObjectReq(req.Image))
	if err != nil {
		return nil, e.Wrap(op, e.Wrap(err.Error(), e.ErrObjectStoreUpload))
	}
	if uploaded == nil || !uploaded.OK {
		return nil, e.Wrap(op, e.ErrObjectStoreUpload)
	}

	// Компенсация: удаление загруженного объекта, если запись не сохранена
	defer func() {
		if err != nil {
			c.logger.Warnf("cleaning up orphaned object %s after failure: %v", uploaded.Path, err)
			c.objects.Cleanup(uploaded.Path)
		}
	}()

	// Векторизация изображения
	embedding, err := c.embedder.Embed(ctx, req.Image.Data)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if err = checkDimension(embedding.Vector, c.vectors.Dimension()); err != nil {
		return nil, e.Wrap(op, err)
	}

	processingID := uuid.NewString()
	processingTime := time.Since(start)
	payload := c.buildPayload(req, embedding, uploaded, processingID, processingTime)

	// Сохранение вектора с метаданными
	id, err := c.vectors.Store(ctx, embedding.Vector, payload)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	publish(ctx, c.events, c.logger, EventEmbeddingStored, id, req.UserID, map[string]any{
		"product_name": payload.ProductName,
		"asset_path":   uploaded.Path,
		"model_used":   embedding.ModelVersion,
	})

	return &UploadAndStoreRes{
		ID:             id,
		AssetURL:       uploaded.URL,
		AssetPath:      uploaded.Path,
		Stats:          domain.ComputeStats(embedding.Vector),
		Shape:          embedding.Shape,
		ModelVersion:   embedding.ModelVersion,
		ProcessingID:   processingID,
		ProcessingTime: time.Since(start),
	}, nil
}

func (c *CatalogUseCase) buildPayload(req *UploadAndStoreReq, embedding *Embedding, uploaded *UploadObjectRes, processingID string, processingTime time.Duration) domain.ProductPayload {
	name := strings.TrimSpace(req.ProductName)
	price := req.Price.InexactFloat64()

	payload := domain.ProductPayload{
		Filename:       req.Image.Filename,
		FileSize:       int64(len(req.Image.Data)),
		ContentType:    normalizeContentType(req.Image.ContentType),
		ProcessingTime: processingTime.Seconds(),
		ModelUsed:      embedding.ModelVersion,
		UploadedAt:     time.Now().UTC(),
		Price:          &price,
		ProductName:    &name,
		AssetURL:       &uploaded.URL,
		AssetPath:      &uploaded.Path,
	}
	if req.UserID != "" {
		payload.UserID = &req.UserID
	}

	shape := make([]any, 0, len(embedding.Shape))
	for _, d := range embedding.Shape {
		shape = append(shape, int64(d))
	}

	payload.Extra = map[string]any{
		"processing_id":   processingID,
		"embedding_shape": shape,
		"upload_method":   uploadMethod,
	}
	for k, v := range req.Metadata {
		payload.Extra[k] = v
	}

	return payload
}

// validateUpload проверяет изображение, название и цену товара (неотрицательная, не более 2 знаков после запятой).
func (c *CatalogUseCase) validateUpload(req *UploadAndStoreReq) error {
	if err := validateImage(req.Image, c.upload); err != nil {
		return err
	}

	if strings.TrimSpace(req.ProductName) == "" {
		return e.ErrProductNameRequired
	}

	if req.Price.IsNegative() {
		return e.ErrNegativePrice
	}

	if !req.Price.Equal(req.Price.Round(2)) {
		return e.ErrPricePrecision
	}

	// метаданные клиента перекрывают поля записи, включая цену
	if err := domain.ValidatePayload(req.Metadata); err != nil {
		return err
	}

	return nil
}

// Retrieve возвращает запись по id.
func (c *CatalogUseCase) Retrieve(ctx context.Context, id string, includeVector bool) (rec *domain.EmbeddingRecord, err error) {
	const op = "CatalogUseCase.Retrieve"

	ctx, span := tracing.Start(ctx, op, attribute.String("record.id", id))
	defer func() { tracing.End(span, err) }()

	rec, found, err := c.vectors.GetByID(ctx, id, includeVector)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if !found {
		return nil, e.Wrap(op, e.ErrNotFound)
	}

	return rec, nil
}

// Delete удаляет запись и в фоне удаляет связанный объект из хранилища.
func (c *CatalogUseCase) Delete(ctx context.Context, id string) (err error) {
	const op = "CatalogUseCase.Delete"

	ctx, span := tracing.Start(ctx, op, attribute.String("record.id", id))
	defer func() { tracing.End(span, err) }()

	payload, deleted, err := c.vectors.DeleteByID(ctx, id)
	if err != nil {
		return e.Wrap(op, err)
	}
	if !deleted {
		return e.Wrap(op, e.ErrNotFound)
	}

	if path := payload.AssetPath; path != nil && *path != "" {
		c.objects.Cleanup(*path)
	}

	userID := ""
	if payload.UserID != nil {
		userID = *payload.UserID
	}
	publish(ctx, c.events, c.logger, EventEmbeddingDeleted, id, userID, nil)

	return nil
}

// List возвращает страницу записей.
func (c *CatalogUseCase) List(ctx context.Context, req *ListReq) (res *ListRes, err error) {
	const op = "CatalogUseCase.List"

	ctx, span := tracing.Start(ctx, op)
	defer func() { tracing.End(span, err) }()

	if err := validateLimit(req.Limit, c.search.MaxListLimit); err != nil {
		return nil, e.Wrap(op, err)
	}
	if req.Offset < 0 {
		return nil, e.Wrap(op, e.ErrInvalidOffset)
	}

	records, err := c.vectors.ListPage(ctx, req.Limit, req.Offset, req.IncludePreviews)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return &ListRes{
		Records: records,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}, nil
}

// Stats возвращает сведения о коллекции.
func (c *CatalogUseCase) Stats(ctx context.Context) (*domain.CollectionStats, error) {
	const op = "CatalogUseCase.Stats"

	stats, err := c.vectors.GetCollectionStats(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return stats, nil
}
