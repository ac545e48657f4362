package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

func historyEntry(id, user string, seed float32, at time.Time) *domain.SearchHistoryEntry {
	return &domain.SearchHistoryEntry{
		ID:            id,
		UserID:        user,
		Vector:        []float32{seed, 0, 0, 0},
		QueryFilename: id + ".jpg",
		SearchedAt:    at,
	}
}

func TestGetUserRecommendationsEmptyHistory(t *testing.T) {
	vectors := newFakeVectors(4)
	uc := NewRecommendationUC(vectors, &fakeHistory{}, testSearchCfg(), logger.NewDiscard())

	res, err := uc.GetUserRecommendations(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("GetUserRecommendations() error = %v", err)
	}
	if res.Recommendations == nil || len(res.Recommendations) != 0 {
		t.Fatalf("recommendations = %v, want empty list", res.Recommendations)
	}
	if len(vectors.searches) != 0 {
		t.Fatal("no searches expected without history")
	}
}

func TestGetUserRecommendationsUsesThreeMostRecentSeeds(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{}
	for i := 0; i < 5; i++ {
		// seed равен номеру записи: 1 самая старая
		history.entries = append(history.entries, historyEntry(
			string(rune('a'+i)), "alice", float32(i+1), base.Add(time.Duration(i)*time.Hour),
		))
	}
	history.entries = append(history.entries, historyEntry("z", "bob", 99, base.Add(24*time.Hour)))

	vectors := newFakeVectors(4)
	uc := NewRecommendationUC(vectors, history, testSearchCfg(), logger.NewDiscard())

	res, err := uc.GetUserRecommendations(context.Background(), "alice", 4)
	if err != nil {
		t.Fatalf("GetUserRecommendations() error = %v", err)
	}

	if res.SeedsUsed != 3 || res.HistorySize != 5 {
		t.Fatalf("seeds = %d, history = %d", res.SeedsUsed, res.HistorySize)
	}
	if len(history.lists) != 1 || history.lists[0] != (historyCall{limit: 10, withVectors: true}) {
		t.Fatalf("history reads = %+v, want one read of 10 entries with vectors", history.lists)
	}

	wantSeeds := []float32{5, 4, 3}
	for i, call := range vectors.searches {
		if call.query[0] != wantSeeds[i] {
			t.Fatalf("search %d seed = %v, want %v", i, call.query[0], wantSeeds[i])
		}
		if call.limit != 8 || call.threshold != 0.5 {
			t.Fatalf("search %d limit/threshold = %d/%v, want 8/0.5", i, call.limit, call.threshold)
		}
	}
}

func TestGetUserRecommendationsDeduplicatesByMaxScore(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{entries: []*domain.SearchHistoryEntry{
		historyEntry("old", "alice", 1, base),
		historyEntry("new", "alice", 2, base.Add(time.Hour)),
	}}

	vectors := newFakeVectors(4)
	vectors.searchFn = func(query []float32, _ int, _ float32) ([]domain.SearchHit, error) {
		if query[0] == 2 { // newest seed runs first
			return []domain.SearchHit{{ID: "x", Score: 0.6}, {ID: "y", Score: 0.55}}, nil
		}
		return []domain.SearchHit{{ID: "x", Score: 0.9}, {ID: "z", Score: 0.7}}, nil
	}

	uc := NewRecommendationUC(vectors, history, testSearchCfg(), logger.NewDiscard())
	res, err := uc.GetUserRecommendations(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("GetUserRecommendations() error = %v", err)
	}

	got := res.Recommendations
	if len(got) != 3 {
		t.Fatalf("recommendations = %+v, want 3", got)
	}
	if got[0].Hit.ID != "x" || got[0].Hit.Score != 0.9 || got[0].Source.SearchID != "old" {
		t.Fatalf("first = %+v, want x with score 0.9 from the old search", got[0])
	}
	if got[0].Source.SearchFilename != "old.jpg" {
		t.Fatalf("source filename = %s", got[0].Source.SearchFilename)
	}
	if got[1].Hit.ID != "z" || got[2].Hit.ID != "y" {
		t.Fatalf("order = %s, %s", got[1].Hit.ID, got[2].Hit.ID)
	}
}

func TestMergeRecommendations(t *testing.T) {
	s1 := RecommendationSource{SearchID: "s1"}
	s2 := RecommendationSource{SearchID: "s2"}

	tests := []struct {
		name    string
		results [][]domain.SearchHit
		limit   int
		wantIDs []string
		wantSrc []string
	}{
		{
			name: "equal scores keep first seen",
			results: [][]domain.SearchHit{
				{{ID: "a", Score: 0.8}},
				{{ID: "a", Score: 0.8}},
			},
			limit:   5,
			wantIDs: []string{"a"},
			wantSrc: []string{"s1"},
		},
		{
			name: "ties keep fold order",
			results: [][]domain.SearchHit{
				{{ID: "a", Score: 0.7}, {ID: "b", Score: 0.7}},
				{{ID: "c", Score: 0.7}},
			},
			limit:   5,
			wantIDs: []string{"a", "b", "c"},
			wantSrc: []string{"s1", "s1", "s2"},
		},
		{
			name: "truncated to limit",
			results: [][]domain.SearchHit{
				{{ID: "a", Score: 0.6}, {ID: "b", Score: 0.5}},
				{{ID: "c", Score: 0.9}},
			},
			limit:   2,
			wantIDs: []string{"c", "a"},
			wantSrc: []string{"s2", "s1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeRecommendations(tt.results, []RecommendationSource{s1, s2}, tt.limit)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.wantIDs))
			}
			for i := range got {
				if got[i].Hit.ID != tt.wantIDs[i] || got[i].Source.SearchID != tt.wantSrc[i] {
					t.Fatalf("item %d = %s/%s, want %s/%s", i, got[i].Hit.ID, got[i].Source.SearchID, tt.wantIDs[i], tt.wantSrc[i])
				}
			}
		})
	}
}

func TestGetUserRecommendationsSkipsMismatchedSeed(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{entries: []*domain.SearchHistoryEntry{
		historyEntry("good", "alice", 1, base),
		historyEntry("legacy", "alice", 2, base.Add(time.Hour)),
	}}

	vectors := newFakeVectors(4)
	vectors.searchFn = func(query []float32, _ int, _ float32) ([]domain.SearchHit, error) {
		if query[0] == 2 {
			return nil, e.Wrap("VectorRepo.SearchSimilar", e.ErrDimensionMismatch)
		}
		return []domain.SearchHit{{ID: "a", Score: 0.8}}, nil
	}

	uc := NewRecommendationUC(vectors, history, testSearchCfg(), logger.NewDiscard())
	res, err := uc.GetUserRecommendations(context.Background(), "alice", 5)
	if err != nil {
		t.Fatalf("GetUserRecommendations() error = %v", err)
	}
	if res.SeedsUsed != 1 || len(res.Recommendations) != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestGetUserRecommendationsBackendError(t *testing.T) {
	history := &fakeHistory{entries: []*domain.SearchHistoryEntry{historyEntry("a", "alice", 1, time.Now())}}
	vectors := newFakeVectors(4)
	vectors.searchFn = func([]float32, int, float32) ([]domain.SearchHit, error) {
		return nil, e.Backend("VectorRepo.SearchSimilar", "", errors.New("unavailable"))
	}

	uc := NewRecommendationUC(vectors, history, testSearchCfg(), logger.NewDiscard())
	if _, err := uc.GetUserRecommendations(context.Background(), "alice", 5); !errors.Is(err, e.ErrBackend) {
		t.Fatalf("error = %v, want ErrBackend", err)
	}
}

func TestGetUserSearchHistoryReadsNewestWithoutVectors(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fakeHistory{entries: []*domain.SearchHistoryEntry{
		historyEntry("mid", "alice", 1, base.Add(time.Hour)),
		historyEntry("old", "alice", 1, base),
		historyEntry("new", "alice", 1, base.Add(2*time.Hour)),
	}}

	uc := NewRecommendationUC(newFakeVectors(4), history, testSearchCfg(), logger.NewDiscard())
	entries, err := uc.GetUserSearchHistory(context.Background(), "alice", 2)
	if err != nil {
		t.Fatalf("GetUserSearchHistory() error = %v", err)
	}

	if len(entries) != 2 || entries[0].ID != "new" || entries[1].ID != "mid" {
		t.Fatalf("entries = %v, %v", entries[0].ID, entries[len(entries)-1].ID)
	}
	if len(history.lists) != 1 || history.lists[0] != (historyCall{limit: 2, withVectors: false}) {
		t.Fatalf("history reads = %+v, want one read of 2 entries without vectors", history.lists)
	}
	for _, en := range entries {
		if en.Vector != nil {
			t.Fatalf("entry %s carries a vector", en.ID)
		}
	}

	if _, err := uc.GetUserSearchHistory(context.Background(), "", 2); !errors.Is(err, e.ErrUserIDRequired) {
		t.Fatalf("error = %v, want ErrUserIDRequired", err)
	}
	if _, err := uc.GetUserSearchHistory(context.Background(), "alice", 0); !errors.Is(err, e.ErrInvalidLimit) {
		t.Fatalf("error = %v, want ErrInvalidLimit", err)
	}
}
