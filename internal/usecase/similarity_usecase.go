package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// SimilarityUseCase ищет похожие товары по изображению-запросу.
type SimilarityUseCase struct {
	vectors  VectorRepository
	history  SearchHistoryRepository
	embedder EmbeddingProvider
	events   EventPublisher
	search   *cfg.SearchCfg
	upload   *cfg.UploadCfg
	logger   logger.Logger

	hydrateConcurrency int
}

func NewSimilarityUC(
	vectors VectorRepository,
	history SearchHistoryRepository,
	embedder EmbeddingProvider,
	events EventPublisher,
	search *cfg.SearchCfg,
	upload *cfg.UploadCfg,
	logger logger.Logger,
) *SimilarityUseCase {
	const defaultHydrateConcurrency = 8

	return &SimilarityUseCase{
		vectors:            vectors,
		history:            history,
		embedder:           embedder,
		events:             events,
		search:             search,
		upload:             upload,
		logger:             logger,
		hydrateConcurrency: defaultHydrateConcurrency,
	}
}

// FindSimilarByImage векторизует изображение и ищет ближайшие записи.
// Если указан пользователь, запрос записывается в его историю; сбой записи не влияет на результат.
func (s *SimilarityUseCase) FindSimilarByImage(ctx context.Context, req *SimilarSearchReq) (res *SimilarSearchRes, err error) {
	const op = "SimilarityUseCase.FindSimilarByImage"

	ctx, span := tracing.Start(ctx, op, attribute.Int("search.limit", req.Limit))
	defer func() { tracing.End(span, err) }()

	start := time.Now()

	threshold, err := s.validateSearch(req)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	embedding, err := s.embedQuery(ctx, req.Image)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	hits, err := s.vectors.SearchSimilar(ctx, embedding.Vector, req.Limit, threshold, req.IncludeVectors)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return &SimilarSearchRes{
		Hits:           hits,
		QueryStats:     domain.ComputeStats(embedding.Vector),
		QueryShape:     embedding.Shape,
		ModelVersion:   embedding.ModelVersion,
		Threshold:      threshold,
		ProcessingTime: time.Since(start),
		HistoryID:      s.recordSearch(ctx, req, embedding.Vector, len(hits)),
	}, nil
}

// FindSimilarComplete выполняет поиск и перечитывает каждую найденную запись целиком.
// Ошибка перечитывания одной записи превращает её в результат только с метаданными и пометкой об ошибке.
func (s *SimilarityUseCase) FindSimilarComplete(ctx context.Context, req *CompleteSearchReq) (res *CompleteSearchRes, err error) {
	const op = "SimilarityUseCase.FindSimilarComplete"

	ctx, span := tracing.Start(ctx, op, attribute.Int("search.limit", req.Limit))
	defer func() { tracing.End(span, err) }()

	start := time.Now()

	threshold, err := s.validateSearch(&req.SimilarSearchReq)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	embedding, err := s.embedQuery(ctx, req.Image)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	hits, err := s.vectors.SearchSimilar(ctx, embedding.Vector, req.Limit, threshold, false)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	res = &CompleteSearchRes{
		Hits:         s.hydrate(ctx, hits, req.IncludeEmbeddings),
		QueryStats:   domain.ComputeStats(embedding.Vector),
		QueryPreview: domain.Preview(embedding.Vector, domain.PreviewSize),
		QueryShape:   embedding.Shape,
		ModelVersion: embedding.ModelVersion,
		Threshold:    threshold,
	}
	if req.IncludeEmbeddings {
		res.QueryEmbedding = embedding.Vector
	}

	res.HistoryID = s.recordSearch(ctx, &req.SimilarSearchReq, embedding.Vector, len(hits))
	res.ProcessingTime = time.Since(start)

	return res, nil
}

// hydrate параллельно перечитывает записи с ограничением конкурентности, сохраняя порядок результатов.
func (s *SimilarityUseCase) hydrate(ctx context.Context, hits []domain.SearchHit, includeVectors bool) []CompleteHit {
	out := make([]CompleteHit, len(hits))
	sem := make(chan struct{}, s.hydrateConcurrency)

	var wg sync.WaitGroup
	for i, hit := range hits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out[i] = s.hydrateOne(ctx, hit, includeVectors)
		}()
	}
	wg.Wait()

	return out
}

func (s *SimilarityUseCase) hydrateOne(ctx context.Context, hit domain.SearchHit, includeVectors bool) CompleteHit {
	rec, found, err := s.vectors.GetByID(ctx, hit.ID, true)
	switch {
	case err != nil:
		s.logger.Warnf("re-fetch of hit %s failed: %v", hit.ID, err)
		return CompleteHit{Hit: hit, Err: fmt.Errorf("%w: %w", e.ErrPartialHydration, err)}
	case !found:
		s.logger.Debugf("hit %s vanished before re-fetch", hit.ID)
		return CompleteHit{Hit: hit, Err: fmt.Errorf("%w: %w", e.ErrPartialHydration, e.ErrNotFound)}
	}

	ch := CompleteHit{
		Hit:     hit,
		Stats:   &rec.Stats,
		Preview: rec.Preview,
	}
	ch.Hit.Payload = rec.Payload
	if includeVectors {
		ch.Vector = rec.Vector
	}

	return ch
}

// validateSearch проверяет параметры поиска и возвращает итоговый порог.
func (s *SimilarityUseCase) validateSearch(req *SimilarSearchReq) (float32, error) {
	if err := validateImage(req.Image, s.upload); err != nil {
		return 0, err
	}

	if err := validateLimit(req.Limit, s.search.MaxLimit); err != nil {
		return 0, err
	}

	threshold := s.search.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if err := validateThreshold(threshold); err != nil {
		return 0, err
	}

	return threshold, nil
}

// embedQuery получает эмбеддинг изображения-запроса и проверяет его размерность.
func (s *SimilarityUseCase) embedQuery(ctx context.Context, image ImageInput) (*Embedding, error) {
	embedding, err := s.embedder.Embed(ctx, image.Data)
	if err != nil {
		return nil, err
	}

	if err := checkDimension(embedding.Vector, s.vectors.Dimension()); err != nil {
		return nil, err
	}

	return embedding, nil
}

// recordSearch сохраняет запрос в историю пользователя. Возвращает id записи или пустую строку.
func (s *SimilarityUseCase) recordSearch(ctx context.Context, req *SimilarSearchReq, vector []float32, resultsCount int) string {
	if req.UserID == "" {
		return ""
	}

	entry := domain.NewSearchHistoryEntry(req.UserID, vector, req.Image.Filename, resultsCount)
	id, err := s.history.StoreSearch(ctx, entry)
	if err != nil {
		s.logger.Errorf(err, "failed to record search for user %s", req.UserID)
		return ""
	}

	publish(ctx, s.events, s.logger, EventSearchRecorded, id, req.UserID, map[string]any{
		"search_query_filename": req.Image.Filename,
		"similar_results_count": resultsCount,
	})

	return id
}
