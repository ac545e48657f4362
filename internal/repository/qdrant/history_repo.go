package qdrant

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/tracing"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
)

// StoreSearch сохраняет запись истории поиска пользователя.
func (r *VectorRepo) StoreSearch(ctx context.Context, entry *domain.SearchHistoryEntry) (id string, err error) {
	const op = "VectorRepo.StoreSearch"

	ctx, span := tracing.Start(ctx, op)
	defer func() { tracing.End(span, err) }()

	if entry == nil || entry.UserID == "" {
		return "", e.Wrap(op, e.ErrUserIDRequired)
	}
	if err := domain.ValidateVector(entry.Vector, r.dim); err != nil {
		return "", e.Wrap(op, err)
	}

	values, err := toValueMap(entry.ToMap())
	if err != nil {
		return "", e.Wrap(op, err)
	}

	id = uuid.NewString()
	_, err = r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.cfg.HistoryCollectionName,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(entry.Vector...),
			Payload: values,
		}},
	})
	if err != nil {
		return "", e.Backend(op, id, err)
	}

	entry.ID = id
	return id, nil
}

// ListUserSearches возвращает до limit самых новых записей истории пользователя, новые первыми.
// Сортировку по search_timestamp выполняет Qdrant по datetime-индексу, поэтому окно чтения не ограничивает давность.
// Векторы читаются только при withVectors.
func (r *VectorRepo) ListUserSearches(ctx context.Context, userID string, limit int, withVectors bool) (entries []*domain.SearchHistoryEntry, err error) {
	const op = "VectorRepo.ListUserSearches"

	ctx, span := tracing.Start(ctx, op,
		attribute.Int("history.limit", limit),
		attribute.Bool("history.with_vectors", withVectors),
	)
	defer func() { tracing.End(span, err) }()

	if userID == "" {
		return nil, e.Wrap(op, e.ErrUserIDRequired)
	}
	if limit < 1 {
		return nil, e.Wrap(op, e.ErrInvalidLimit)
	}

	points, err := r.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: r.cfg.HistoryCollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(domain.HistoryUserID, userID),
			},
		},
		OrderBy: &qdrant.OrderBy{
			Key:       domain.HistoryTimestamp,
			Direction: qdrant.Direction_Desc.Enum(),
		},
		Limit:       qdrant.PtrOf(uint32(limit)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, e.Backend(op, "", err)
	}

	entries = make([]*domain.SearchHistoryEntry, 0, len(points))
	for _, p := range points {
		var vector []float32
		if withVectors {
			vector = denseVector(p.GetVectors())
		}
		entries = append(entries, domain.SearchHistoryEntryFromMap(
			pointID(p.GetId()),
			vector,
			fromValueMap(p.GetPayload()),
		))
	}

	return entries, nil
}
