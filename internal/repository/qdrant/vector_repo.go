package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/tracing"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
)

// Client описывает методы *qdrant.Client, которые использует репозиторий.
type Client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
}

// VectorRepo хранит эмбеддинги товаров и историю поиска пользователей в двух коллекциях Qdrant.
// Клиент общий на весь процесс; репозиторий не кэширует данные и не повторяет запросы.
type VectorRepo struct {
	client Client
	cfg    *cfg.QdrantCfg
	log    logger.Logger
	dim    int
}

func NewVectorRepo(client Client, cfg *cfg.QdrantCfg, log logger.Logger) *VectorRepo {
	return &VectorRepo{
		client: client,
		cfg:    cfg,
		log:    log,
		dim:    int(cfg.VectorSize),
	}
}

// Dimension возвращает размерность векторов обеих коллекций.
func (r *VectorRepo) Dimension() int {
	return r.dim
}

// Initialize создаёт недостающие коллекции и индексы истории поиска (user_id, search_timestamp).
// Повторный вызов не меняет конфигурацию. Расхождение параметров существующей коллекции только логируется.
func (r *VectorRepo) Initialize(ctx context.Context) (err error) {
	const op = "VectorRepo.Initialize"

	ctx, span := tracing.Start(ctx, op)
	defer func() { tracing.End(span, err) }()

	for _, name := range []string{r.cfg.CollectionName, r.cfg.HistoryCollectionName} {
		if err := r.ensureCollection(ctx, name); err != nil {
			return e.Backend(op, "", err)
		}
	}

	if err := r.ensureHistoryIndexes(ctx); err != nil {
		return e.Backend(op, "", err)
	}

	return nil
}

func (r *VectorRepo) ensureCollection(ctx context.Context, name string) error {
	exists, err := r.client.CollectionExists(ctx, name)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if exists {
		r.checkCollectionConfig(ctx, name)
		return nil
	}

	err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     r.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// коллекцию мог создать параллельный процесс
		if exists, existsErr := r.client.CollectionExists(ctx, name); existsErr == nil && exists {
			r.log.Infof("collection %s was created concurrently", name)
			return nil
		}
		return e.Wrap(whereami.WhereAmI(), err)
	}

	r.log.Infof("collection %s created (size=%d, distance=cosine)", name, r.cfg.VectorSize)
	return nil
}

func (r *VectorRepo) checkCollectionConfig(ctx context.Context, name string) {
	info, err := r.client.GetCollectionInfo(ctx, name)
	if err != nil {
		r.log.Warnf("collection %s: failed to read config: %v", name, err)
		return
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		r.log.Warnf("collection %s: no single unnamed vector config", name)
		return
	}

	if params.GetSize() != r.cfg.VectorSize {
		r.log.Warnf("collection %s: vector size %d differs from configured %d", name, params.GetSize(), r.cfg.VectorSize)
	}
	if params.GetDistance() != qdrant.Distance_Cosine {
		r.log.Warnf("collection %s: distance %s differs from Cosine", name, params.GetDistance())
	}
}

// historyIndexes индексы payload коллекции истории: фильтр по пользователю и сортировка по времени поиска.
var historyIndexes = []struct {
	field     string
	fieldType qdrant.FieldType
	dataType  qdrant.PayloadSchemaType
}{
	{domain.HistoryUserID, qdrant.FieldType_FieldTypeKeyword, qdrant.PayloadSchemaType_Keyword},
	{domain.HistoryTimestamp, qdrant.FieldType_FieldTypeDatetime, qdrant.PayloadSchemaType_Datetime},
}

func (r *VectorRepo) ensureHistoryIndexes(ctx context.Context) error {
	name := r.cfg.HistoryCollectionName

	info, err := r.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	schema := info.GetPayloadSchema()

	for _, idx := range historyIndexes {
		if existing, ok := schema[idx.field]; ok && existing.GetDataType() == idx.dataType {
			continue
		}

		_, err = r.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      idx.field,
			FieldType:      idx.fieldType.Enum(),
		})
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "already exists") {
				continue
			}
			return e.Wrap(whereami.WhereAmI(), err)
		}

		r.log.Infof("%s index on %s.%s created", strings.ToLower(idx.dataType.String()), name, idx.field)
	}

	return nil
}

// Store валидирует вектор и метаданные, затем одной операцией upsert сохраняет новую запись.
// При ошибке валидации обращения к Qdrant не происходит.
func (r *VectorRepo) Store(ctx context.Context, vector []float32, payload domain.ProductPayload) (id string, err error) {
	const op = "VectorRepo.Store"

	ctx, span := tracing.Start(ctx, op, attribute.Int("vector.dim", len(vector)))
	defer func() { tracing.End(span, err) }()

	if err := domain.ValidateVector(vector, r.dim); err != nil {
		return "", e.Wrap(op, err)
	}

	// Extra может перекрыть цену, поэтому проверяется итоговая карта
	fields := payload.ToMap()
	if err := domain.ValidatePayload(fields); err != nil {
		return "", e.Wrap(op, err)
	}

	values, err := toValueMap(fields)
	if err != nil {
		return "", e.Wrap(op, err)
	}

	id = uuid.NewString()
	_, err = r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.cfg.CollectionName,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: values,
		}},
	})
	if err != nil {
		return "", e.Backend(op, id, err)
	}

	span.SetAttributes(attribute.String("record.id", id))
	return id, nil
}

// SearchSimilar ищет ближайшие по косинусу записи со скором не ниже threshold.
// Результат упорядочен по убыванию скора, порядок равных скоров определяет Qdrant.
func (r *VectorRepo) SearchSimilar(ctx context.Context, query []float32, limit int, threshold float32, includeVectors bool) (hits []domain.SearchHit, err error) {
	const op = "VectorRepo.SearchSimilar"

	ctx, span := tracing.Start(ctx, op,
		attribute.Int("search.limit", limit),
		attribute.Float64("search.threshold", float64(threshold)),
	)
	defer func() { tracing.End(span, err) }()

	if err := domain.ValidateVector(query, r.dim); err != nil {
		return nil, e.Wrap(op, err)
	}
	if limit < 1 {
		return nil, e.Wrap(op, e.ErrInvalidLimit)
	}
	if !(threshold >= 0 && threshold <= 1) {
		return nil, e.Wrap(op, e.ErrInvalidThreshold)
	}

	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.cfg.CollectionName,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(includeVectors),
	})
	if err != nil {
		return nil, e.Backend(op, "", err)
	}

	hits = make([]domain.SearchHit, 0, len(points))
	for _, p := range points {
		hit := domain.SearchHit{
			ID:      pointID(p.GetId()),
			Score:   p.GetScore(),
			Payload: domain.ProductPayloadFromMap(fromValueMap(p.GetPayload())),
		}
		if includeVectors {
			hit.Vector = denseVector(p.GetVectors())
		}
		hits = append(hits, hit)
	}

	span.SetAttributes(attribute.Int("search.hits", len(hits)))
	return hits, nil
}

// GetByID возвращает запись со статистикой и превью вектора. Если записи нет, found=false.
// Полный вектор заполняется только при includeVector.
func (r *VectorRepo) GetByID(ctx context.Context, id string, includeVector bool) (rec *domain.EmbeddingRecord, found bool, err error) {
	const op = "VectorRepo.GetByID"

	ctx, span := tracing.Start(ctx, op, attribute.String("record.id", id))
	defer func() { tracing.End(span, err) }()

	if err := validateID(id); err != nil {
		return nil, false, e.Wrap(op, err)
	}

	points, err := r.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: r.cfg.CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, false, e.Backend(op, id, err)
	}
	if len(points) == 0 {
		return nil, false, nil
	}

	p := points[0]
	vector := denseVector(p.GetVectors())
	rec = &domain.EmbeddingRecord{
		ID:      pointID(p.GetId()),
		Preview: domain.Preview(vector, domain.PreviewSize),
		Stats:   domain.ComputeStats(vector),
		Payload: domain.ProductPayloadFromMap(fromValueMap(p.GetPayload())),
	}
	if includeVector {
		rec.Vector = vector
	}

	return rec, true, nil
}

// DeleteByID удаляет запись и возвращает её payload. found=false, если записи не было.
// Вектор не читается.
func (r *VectorRepo) DeleteByID(ctx context.Context, id string) (payload *domain.ProductPayload, found bool, err error) {
	const op = "VectorRepo.DeleteByID"

	ctx, span := tracing.Start(ctx, op, attribute.String("record.id", id))
	defer func() { tracing.End(span, err) }()

	if err := validateID(id); err != nil {
		return nil, false, e.Wrap(op, err)
	}

	points, err := r.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: r.cfg.CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, false, e.Backend(op, id, err)
	}
	if len(points) == 0 {
		return nil, false, nil
	}
	p := domain.ProductPayloadFromMap(fromValueMap(points[0].GetPayload()))

	_, err = r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.cfg.CollectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	if err != nil {
		return nil, false, e.Backend(op, id, err)
	}

	return &p, true, nil
}

// ListPage возвращает страницу записей в порядке идентификаторов Qdrant.
// При параллельной записи граница страницы может пропустить или повторить одну запись.
func (r *VectorRepo) ListPage(ctx context.Context, limit, offset int, includePreviews bool) (recs []domain.EmbeddingRecord, err error) {
	const op = "VectorRepo.ListPage"

	ctx, span := tracing.Start(ctx, op,
		attribute.Int("list.limit", limit),
		attribute.Int("list.offset", offset),
	)
	defer func() { tracing.End(span, err) }()

	if limit < 1 {
		return nil, e.Wrap(op, e.ErrInvalidLimit)
	}
	if offset < 0 {
		return nil, e.Wrap(op, e.ErrInvalidOffset)
	}

	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.cfg.CollectionName,
		Limit:          qdrant.PtrOf(uint64(limit)),
		Offset:         qdrant.PtrOf(uint64(offset)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(includePreviews),
	})
	if err != nil {
		return nil, e.Backend(op, "", err)
	}

	recs = make([]domain.EmbeddingRecord, 0, len(points))
	for _, p := range points {
		rec := domain.EmbeddingRecord{
			ID:      pointID(p.GetId()),
			Payload: domain.ProductPayloadFromMap(fromValueMap(p.GetPayload())),
		}
		if includePreviews {
			vector := denseVector(p.GetVectors())
			rec.Preview = domain.Preview(vector, domain.ListPreviewSize)
			rec.Stats = domain.ComputeStats(vector)
		}
		recs = append(recs, rec)
	}

	return recs, nil
}

// GetCollectionStats возвращает сведения о коллекции эмбеддингов товаров.
func (r *VectorRepo) GetCollectionStats(ctx context.Context) (stats *domain.CollectionStats, err error) {
	const op = "VectorRepo.GetCollectionStats"

	ctx, span := tracing.Start(ctx, op)
	defer func() { tracing.End(span, err) }()

	info, err := r.client.GetCollectionInfo(ctx, r.cfg.CollectionName)
	if err != nil {
		return nil, e.Backend(op, "", err)
	}

	return &domain.CollectionStats{
		Name:               r.cfg.CollectionName,
		VectorCount:        info.GetPointsCount(),
		IndexedVectorCount: info.GetIndexedVectorsCount(),
		PointCount:         info.GetPointsCount(),
		Status:             strings.ToLower(info.GetStatus().String()),
	}, nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", e.ErrInvalidID, id)
	}

	return nil
}
