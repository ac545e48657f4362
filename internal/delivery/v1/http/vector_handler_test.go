package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type fakeSimilarity struct {
	lastReq      *usecase.SimilarSearchReq
	lastComplete *usecase.CompleteSearchReq
	err          error
}

func (f *fakeSimilarity) FindSimilarByImage(_ context.Context, req *usecase.SimilarSearchReq) (*usecase.SimilarSearchRes, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.SimilarSearchRes{
		Hits:      []domain.SearchHit{{ID: "a", Score: 0.9, Payload: domain.ProductPayload{Filename: "a.jpg"}}},
		Threshold: 0.7,
		HistoryID: "h-1",
	}, nil
}

func (f *fakeSimilarity) FindSimilarComplete(_ context.Context, req *usecase.CompleteSearchReq) (*usecase.CompleteSearchRes, error) {
	f.lastComplete = req
	if f.err != nil {
		return nil, f.err
	}
	stats := domain.VectorStats{Dimensions: 4}
	return &usecase.CompleteSearchRes{
		Hits: []usecase.CompleteHit{
			{Hit: domain.SearchHit{ID: "a", Score: 0.9}, Stats: &stats, Preview: []float32{1}},
			{Hit: domain.SearchHit{ID: "b", Score: 0.8}, Err: e.ErrPartialHydration},
		},
		Threshold: 0.7,
	}, nil
}

type fakeRecommendations struct {
	userID string
	limit  int
}

func (f *fakeRecommendations) GetUserSearchHistory(_ context.Context, userID string, limit int) ([]*domain.SearchHistoryEntry, error) {
	f.userID, f.limit = userID, limit
	return []*domain.SearchHistoryEntry{{ID: "s1", QueryFilename: "q.jpg", ResultsCount: 3, SearchedAt: time.Now()}}, nil
}

func (f *fakeRecommendations) GetUserRecommendations(_ context.Context, userID string, limit int) (*usecase.RecommendationsRes, error) {
	f.userID, f.limit = userID, limit
	return &usecase.RecommendationsRes{
		UserID:          userID,
		Recommendations: []usecase.Recommendation{{Hit: domain.SearchHit{ID: "x", Score: 0.6}, Source: usecase.RecommendationSource{SearchID: "s1"}}},
		SeedsUsed:       1,
		HistorySize:     1,
	}, nil
}

type fakeCatalog struct {
	lastUpload *usecase.UploadAndStoreReq
	lastList   *usecase.ListReq
	err        error
}

func (f *fakeCatalog) Embed(_ context.Context, image usecase.ImageInput) (*usecase.EmbedRes, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.EmbedRes{Embedding: usecase.Embedding{Vector: []float32{1, 2}, Shape: []int{2}, ModelVersion: "resnet50"}}, nil
}

func (f *fakeCatalog) UploadAndStore(_ context.Context, req *usecase.UploadAndStoreReq) (*usecase.UploadAndStoreRes, error) {
	f.lastUpload = req
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.UploadAndStoreRes{ID: "rec-1", AssetPath: "images/1_x_shoe.jpg", ProcessingID: "p-1"}, nil
}

func (f *fakeCatalog) Retrieve(_ context.Context, id string, includeVector bool) (*domain.EmbeddingRecord, error) {
	if id != "r1" {
		return nil, e.Wrap("CatalogUseCase.Retrieve", e.ErrNotFound)
	}
	rec := &domain.EmbeddingRecord{ID: id, Payload: domain.ProductPayload{Filename: "r.jpg", ModelUsed: "resnet50"}}
	if includeVector {
		rec.Vector = []float32{1, 0}
	}
	return rec, nil
}

func (f *fakeCatalog) Delete(_ context.Context, id string) error {
	if id != "r1" {
		return e.Wrap("CatalogUseCase.Delete", e.ErrNotFound)
	}
	return nil
}

func (f *fakeCatalog) List(_ context.Context, req *usecase.ListReq) (*usecase.ListRes, error) {
	f.lastList = req
	return &usecase.ListRes{Records: []domain.EmbeddingRecord{{ID: "a"}}, Limit: req.Limit, Offset: req.Offset}, nil
}

func (f *fakeCatalog) Stats(context.Context) (*domain.CollectionStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.CollectionStats{Name: "fashion_embeddings", VectorCount: 3, PointCount: 3, Status: "green"}, nil
}

type testServer struct {
	handler         http.Handler
	similarity      *fakeSimilarity
	recommendations *fakeRecommendations
	catalog         *fakeCatalog
}

func newTestServer() *testServer {
	ts := &testServer{
		similarity:      &fakeSimilarity{},
		recommendations: &fakeRecommendations{},
		catalog:         &fakeCatalog{},
	}

	h := NewVectorHandler(ts.similarity, ts.recommendations, ts.catalog,
		&cfg.UploadCfg{MaxFileSize: 1024, AllowedImageTypes: []string{"image/jpeg", "image/png"}},
		&cfg.SearchCfg{DefaultLimit: 5, MaxLimit: 50},
		logger.NewDiscard(),
	)

	r := chi.NewRouter()
	NewRouter(r, logger.NewDiscard()).Init(h, time.Second)
	ts.handler = r
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// multipartRequest собирает форму с файлом в поле file и дополнительными полями.
func multipartRequest(t *testing.T, target string, data []byte, contentType string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}

	if data != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="shoe.jpg"`)
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart() error = %v", err)
		}
		part.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%s) error = %v", rec.Body.String(), err)
	}
}

func TestSearchParsesParams(t *testing.T) {
	ts := newTestServer()

	req := multipartRequest(t, "/api/v1/vectors/search?limit=3&threshold=0.25&user_id=alice&include_vectors=true", []byte("jpeg"), "image/jpeg", nil)
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	got := ts.similarity.lastReq
	if got.Limit != 3 || got.Threshold == nil || *got.Threshold != 0.25 || got.UserID != "alice" || !got.IncludeVectors {
		t.Fatalf("req = %+v", got)
	}
	if got.Image.ContentType != "image/jpeg" || string(got.Image.Data) != "jpeg" || got.Image.Filename != "shoe.jpg" {
		t.Fatalf("image = %+v", got.Image)
	}

	var res SimilarImagesResponse
	decode(t, rec, &res)
	if res.TotalFound != 1 || res.SimilarImages[0].ID != "a" || res.HistoryID != "h-1" {
		t.Fatalf("res = %+v", res)
	}
	if res.SimilarImages[0].Metadata["filename"] != "a.jpg" {
		t.Fatalf("metadata = %v", res.SimilarImages[0].Metadata)
	}
}

func TestSearchDefaults(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(multipartRequest(t, "/api/v1/vectors/search", []byte("jpeg"), "image/jpeg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := ts.similarity.lastReq; got.Limit != 5 || got.Threshold != nil || got.UserID != "" {
		t.Fatalf("req = %+v", got)
	}
}

func TestSearchCompleteMarksPartialHits(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(multipartRequest(t, "/api/v1/vectors/search-complete?include_embeddings=true", []byte("jpeg"), "image/jpeg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !ts.similarity.lastComplete.IncludeEmbeddings {
		t.Fatal("include_embeddings not passed")
	}

	var res CompleteSimilarityResponse
	decode(t, rec, &res)
	if len(res.SimilarEmbeddings) != 2 || res.SimilarEmbeddings[0].Error != "" || res.SimilarEmbeddings[1].Error == "" {
		t.Fatalf("hits = %+v", res.SimilarEmbeddings)
	}
}

func TestContentTypeDetectedWhenMissing(t *testing.T) {
	ts := newTestServer()
	png := []byte("\x89PNG\r\n\x1a\n0000")

	rec := ts.do(multipartRequest(t, "/api/v1/vectors/search", png, "", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := ts.similarity.lastReq.Image.ContentType; ct != "image/png" {
		t.Fatalf("content type = %s", ct)
	}
}

func TestUploadAndStore(t *testing.T) {
	ts := newTestServer()

	req := multipartRequest(t, "/api/v1/vectors/upload-and-store", []byte("jpeg"), "image/jpeg", map[string]string{
		"product_name": "Runner",
		"price":        "19.90",
		"user_id":      "seller-1",
		"metadata":     `{"color":"red"}`,
	})
	rec := ts.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	got := ts.catalog.lastUpload
	if got.ProductName != "Runner" || got.Price.String() != "19.9" || got.UserID != "seller-1" || got.Metadata["color"] != "red" {
		t.Fatalf("req = %+v", got)
	}

	var res VectorStoreResponse
	decode(t, rec, &res)
	if res.VectorID != "rec-1" || res.ID != "p-1" || !res.VectorStored {
		t.Fatalf("res = %+v", res)
	}
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		setup    func(ts *testServer)
		wantCode int
	}{
		{
			name:     "not multipart",
			req:      func(*testing.T) *http.Request { return httptest.NewRequest(http.MethodPost, "/api/v1/vectors/search", nil) },
			wantCode: http.StatusBadRequest,
		},
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/vectors/search", nil, "", map[string]string{"limit": "3"})
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "file too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/vectors/search", bytes.Repeat([]byte("x"), 2048), "image/jpeg", nil)
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "bad limit",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/vectors/search?limit=abc", []byte("jpeg"), "image/jpeg", nil)
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "bad price",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/vectors/upload-and-store", []byte("jpeg"), "image/jpeg", map[string]string{"product_name": "x", "price": "ten"})
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "bad metadata",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/vectors/upload-and-store", []byte("jpeg"), "image/jpeg", map[string]string{"product_name": "x", "price": "1", "metadata": "[1,2]"})
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unreadable image",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/vectors/search", []byte("jpeg"), "image/jpeg", nil)
			},
			setup:    func(ts *testServer) { ts.similarity.err = e.Wrap("MLService.Embed", e.ErrEmbeddingInput) },
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "ml unavailable",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/v1/vectors/search", []byte("jpeg"), "image/jpeg", nil)
			},
			setup:    func(ts *testServer) { ts.similarity.err = fmt.Errorf("MLService.Embed: %w", e.ErrEmbedding) },
			wantCode: http.StatusBadGateway,
		},
		{
			name:     "backend down",
			req:      func(*testing.T) *http.Request { return httptest.NewRequest(http.MethodGet, "/api/v1/vectors/stats", nil) },
			setup:    func(ts *testServer) { ts.catalog.err = e.Backend("VectorRepo.GetCollectionStats", "", errors.New("refused")) },
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "retrieve missing",
			req:      func(*testing.T) *http.Request { return httptest.NewRequest(http.MethodGet, "/api/v1/vectors/retrieve/nope", nil) },
			wantCode: http.StatusNotFound,
		},
		{
			name:     "delete missing",
			req:      func(*testing.T) *http.Request { return httptest.NewRequest(http.MethodDelete, "/api/v1/vectors/delete/nope", nil) },
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			if tt.setup != nil {
				tt.setup(ts)
			}

			rec := ts.do(tt.req(t))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}

			var res ErrorResponse
			decode(t, rec, &res)
			if res.Code != tt.wantCode || res.Message == "" {
				t.Fatalf("error body = %+v", res)
			}
		})
	}
}

func TestReadEndpoints(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/vectors/retrieve/r1?include_vector=true", nil))
	var retrieved RetrieveResponse
	decode(t, rec, &retrieved)
	if rec.Code != http.StatusOK || retrieved.VectorID != "r1" || len(retrieved.EmbeddingFull) != 2 {
		t.Fatalf("retrieve = %d %+v", rec.Code, retrieved)
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/vectors/list?limit=20&offset=40&include_previews=1", nil))
	if rec.Code != http.StatusOK || ts.catalog.lastList.Limit != 20 || ts.catalog.lastList.Offset != 40 || !ts.catalog.lastList.IncludePreviews {
		t.Fatalf("list = %d %+v", rec.Code, ts.catalog.lastList)
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/vectors/list", nil))
	if ts.catalog.lastList.Limit != 100 || ts.catalog.lastList.Offset != 0 {
		t.Fatalf("list defaults = %+v", ts.catalog.lastList)
	}

	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/api/v1/vectors/delete/r1", nil))
	var deleted DeleteResponse
	decode(t, rec, &deleted)
	if rec.Code != http.StatusOK || !deleted.Deleted {
		t.Fatalf("delete = %d %+v", rec.Code, deleted)
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/vectors/stats", nil))
	var stats CollectionStatsResponse
	decode(t, rec, &stats)
	if rec.Code != http.StatusOK || stats.CollectionName != "fashion_embeddings" || stats.VectorsCount != 3 {
		t.Fatalf("stats = %d %+v", rec.Code, stats)
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
}

func TestUserEndpoints(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/vectors/search-history/alice?limit=7", nil))
	var history SearchHistoryResponse
	decode(t, rec, &history)
	if rec.Code != http.StatusOK || ts.recommendations.userID != "alice" || ts.recommendations.limit != 7 || history.Total != 1 {
		t.Fatalf("history = %d %+v", rec.Code, history)
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/vectors/recommendations/alice", nil))
	var recs RecommendationsResponse
	decode(t, rec, &recs)
	if rec.Code != http.StatusOK || ts.recommendations.limit != 5 || recs.Total != 1 || recs.Recommendations[0].Source.SearchID != "s1" {
		t.Fatalf("recommendations = %d %+v", rec.Code, recs)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"19.99", "19.99", false},
		{" 5.500 ", "5.5", false},
		{"-1", "-1", false},
		{"", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		got, err := parsePrice(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parsePrice(%q) error = %v", tt.in, err)
		}
		if err == nil && got.String() != tt.want {
			t.Fatalf("parsePrice(%q) = %s, want %s", tt.in, got.String(), tt.want)
		}
		if err != nil && !errors.Is(err, e.ErrInvalidPrice) {
			t.Fatalf("error = %v, want ErrInvalidPrice", err)
		}
	}
}

func TestToHTTPResponse(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"specific validation error", e.Wrap("CatalogUseCase.UploadAndStore", e.ErrNegativePrice), http.StatusBadRequest, e.ErrNegativePrice.Error()},
		{"generic validation error", fmt.Errorf("field: %w", e.ErrValidation), http.StatusBadRequest, e.ErrValidation.Error()},
		{"not found", e.Wrap("op", e.ErrNotFound), http.StatusNotFound, e.ErrNotFound.Error()},
		{"unreadable image", e.ErrEmbeddingInput, http.StatusUnprocessableEntity, e.ErrEmbeddingInput.Error()},
		{"backend", e.Backend("op", "", errors.New("refused")), http.StatusServiceUnavailable, e.ErrBackend.Error()},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, e.ErrInternalServerError.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := ToHTTPResponse(tt.err)
			if code != tt.wantCode || msg != tt.wantMsg {
				t.Fatalf("ToHTTPResponse() = %d %q, want %d %q", code, msg, tt.wantCode, tt.wantMsg)
			}
		})
	}
}
