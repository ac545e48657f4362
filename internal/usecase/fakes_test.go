package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
)

func testSearchCfg() *cfg.SearchCfg {
	return &cfg.SearchCfg{
		DefaultLimit:            5,
		MaxLimit:                50,
		DefaultThreshold:        0.7,
		RecommendationThreshold: 0.5,
		RecommendationHistory:   10,
		RecommendationSeeds:     3,
		RecommendationHeadroom:  2,
		MaxListLimit:            1000,
	}
}

func testUploadCfg() *cfg.UploadCfg {
	return &cfg.UploadCfg{
		MaxFileSize:       1024,
		AllowedImageTypes: []string{"image/jpeg", "image/png"},
	}
}

func testImage() ImageInput {
	return NewImageInput([]byte("\xff\xd8\xff\xe0fake-jpeg"), "query.jpg", "image/jpeg")
}

type searchCall struct {
	query     []float32
	limit     int
	threshold float32
}

type fakeVectors struct {
	mu  sync.Mutex
	dim int

	searchFn func(query []float32, limit int, threshold float32) ([]domain.SearchHit, error)
	searches []searchCall

	records  map[string]*domain.EmbeddingRecord
	getErr   map[string]error
	gets     int
	stored   []domain.ProductPayload
	storeErr error
	deleted  []string
	stats    *domain.CollectionStats
	listed   []domain.EmbeddingRecord
}

func newFakeVectors(dim int) *fakeVectors {
	return &fakeVectors{
		dim:     dim,
		records: make(map[string]*domain.EmbeddingRecord),
		getErr:  make(map[string]error),
	}
}

func (f *fakeVectors) Dimension() int { return f.dim }

func (f *fakeVectors) Store(_ context.Context, _ []float32, payload domain.ProductPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.storeErr != nil {
		return "", f.storeErr
	}
	f.stored = append(f.stored, payload)
	return "rec-1", nil
}

func (f *fakeVectors) SearchSimilar(_ context.Context, query []float32, limit int, threshold float32, _ bool) ([]domain.SearchHit, error) {
	f.mu.Lock()
	f.searches = append(f.searches, searchCall{query: query, limit: limit, threshold: threshold})
	f.mu.Unlock()

	if f.searchFn == nil {
		return []domain.SearchHit{}, nil
	}
	return f.searchFn(query, limit, threshold)
}

func (f *fakeVectors) GetByID(_ context.Context, id string, includeVector bool) (*domain.EmbeddingRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets++
	if err := f.getErr[id]; err != nil {
		return nil, false, err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, false, nil
	}

	out := *rec
	if !includeVector {
		out.Vector = nil
	}
	return &out, true, nil
}

func (f *fakeVectors) DeleteByID(_ context.Context, id string) (*domain.ProductPayload, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return nil, false, nil
	}
	delete(f.records, id)
	f.deleted = append(f.deleted, id)
	payload := rec.Payload
	return &payload, true, nil
}

func (f *fakeVectors) ListPage(_ context.Context, limit, offset int, _ bool) ([]domain.EmbeddingRecord, error) {
	if offset >= len(f.listed) {
		return []domain.EmbeddingRecord{}, nil
	}
	return f.listed[offset:min(len(f.listed), offset+limit)], nil
}

func (f *fakeVectors) GetCollectionStats(context.Context) (*domain.CollectionStats, error) {
	return f.stats, nil
}

type historyCall struct {
	limit       int
	withVectors bool
}

type fakeHistory struct {
	mu       sync.Mutex
	entries  []*domain.SearchHistoryEntry
	stored   []*domain.SearchHistoryEntry
	storeErr error
	listErr  error
	lists    []historyCall
}

func (f *fakeHistory) StoreSearch(_ context.Context, entry *domain.SearchHistoryEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.storeErr != nil {
		return "", f.storeErr
	}
	entry.ID = "search-1"
	f.stored = append(f.stored, entry)
	return entry.ID, nil
}

func (f *fakeHistory) ListUserSearches(_ context.Context, userID string, limit int, withVectors bool) ([]*domain.SearchHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lists = append(f.lists, historyCall{limit: limit, withVectors: withVectors})
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []*domain.SearchHistoryEntry
	for _, en := range f.entries {
		if en.UserID == userID {
			copied := *en
			if !withVectors {
				copied.Vector = nil
			}
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SearchedAt.After(out[j].SearchedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeEmbedder struct {
	embedding *Embedding
	err       error
	calls     int
}

func (f *fakeEmbedder) Embed(context.Context, []byte) (*Embedding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	res     *UploadObjectRes
	err     error
	uploads int
	cleaned []string
}

func (f *fakeObjects) Upload(context.Context, *UploadObjectReq) (*UploadObjectRes, error) {
	f.uploads++
	return f.res, f.err
}

func (f *fakeObjects) Cleanup(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, paths...)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*Event
}

func (f *fakeEvents) Publish(_ context.Context, event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}
