package usecase

import (
	"context"
	"errors"
	"sort"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// RecommendationUseCase строит рекомендации по последним поисковым запросам пользователя.
type RecommendationUseCase struct {
	vectors VectorRepository
	history SearchHistoryRepository
	search  *cfg.SearchCfg
	logger  logger.Logger
}

func NewRecommendationUC(vectors VectorRepository, history SearchHistoryRepository, search *cfg.SearchCfg, logger logger.Logger) *RecommendationUseCase {
	return &RecommendationUseCase{
		vectors: vectors,
		history: history,
		search:  search,
		logger:  logger,
	}
}

// GetUserSearchHistory возвращает последние limit запросов пользователя, новые первыми.
func (r *RecommendationUseCase) GetUserSearchHistory(ctx context.Context, userID string, limit int) (entries []*domain.SearchHistoryEntry, err error) {
	const op = "RecommendationUseCase.GetUserSearchHistory"

	ctx, span := tracing.Start(ctx, op, attribute.Int("history.limit", limit))
	defer func() { tracing.End(span, err) }()

	if userID == "" {
		return nil, e.Wrap(op, e.ErrUserIDRequired)
	}
	if err := validateLimit(limit, r.search.MaxListLimit); err != nil {
		return nil, e.Wrap(op, err)
	}

	// векторы в ответе истории не нужны
	entries, err = r.history.ListUserSearches(ctx, userID, limit, false)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return entries, nil
}

// GetUserRecommendations ищет товары, похожие на последние запросы пользователя.
// Без истории возвращается пустой результат без ошибки.
func (r *RecommendationUseCase) GetUserRecommendations(ctx context.Context, userID string, limit int) (res *RecommendationsRes, err error) {
	const op = "RecommendationUseCase.GetUserRecommendations"

	ctx, span := tracing.Start(ctx, op, attribute.Int("recommendations.limit", limit))
	defer func() { tracing.End(span, err) }()

	if userID == "" {
		return nil, e.Wrap(op, e.ErrUserIDRequired)
	}
	if err := validateLimit(limit, r.search.MaxLimit); err != nil {
		return nil, e.Wrap(op, err)
	}

	res = &RecommendationsRes{UserID: userID, Recommendations: []Recommendation{}}

	recent, err := r.history.ListUserSearches(ctx, userID, r.search.RecommendationHistory, true)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	res.HistorySize = len(recent)
	if len(recent) == 0 {
		return res, nil
	}

	seeds := recent[:min(len(recent), r.search.RecommendationSeeds)]
	perSeed := limit * max(r.search.RecommendationHeadroom, 1)

	results := make([][]domain.SearchHit, 0, len(seeds))
	sources := make([]RecommendationSource, 0, len(seeds))
	for _, seed := range seeds {
		hits, err := r.vectors.SearchSimilar(ctx, seed.Vector, perSeed, r.search.RecommendationThreshold, false)
		if err != nil {
			// запись истории с вектором другой размерности не должна ломать рекомендации
			if errors.Is(err, e.ErrDimensionMismatch) || errors.Is(err, e.ErrEmptyVector) {
				r.logger.Warnf("skipping history entry %s: %v", seed.ID, err)
				continue
			}
			return nil, e.Wrap(op, err)
		}

		results = append(results, hits)
		sources = append(sources, RecommendationSource{
			SearchID:       seed.ID,
			SearchFilename: seed.QueryFilename,
			SearchedAt:     seed.SearchedAt,
		})
	}

	res.SeedsUsed = len(results)
	res.Recommendations = mergeRecommendations(results, sources, limit)
	return res, nil
}

// mergeRecommendations сворачивает результаты поисков по seed-запросам в порядке seed, затем ранга.
// Дубликаты по id схлопываются: остаётся максимальный скор и источник, давший его, при равенстве остаётся первый.
// Итог стабильно сортируется по убыванию скора и обрезается до limit.
func mergeRecommendations(results [][]domain.SearchHit, sources []RecommendationSource, limit int) []Recommendation {
	merged := make([]Recommendation, 0)
	index := make(map[string]int)

	for i, hits := range results {
		for _, hit := range hits {
			if pos, ok := index[hit.ID]; ok {
				if hit.Score > merged[pos].Hit.Score {
					merged[pos] = Recommendation{Hit: hit, Source: sources[i]}
				}
				continue
			}

			index[hit.ID] = len(merged)
			merged = append(merged, Recommendation{Hit: hit, Source: sources[i]})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Hit.Score > merged[j].Hit.Score
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}

	return merged
}
