package domain

import "time"

// Ключи payload записи истории поиска
const (
	HistoryUserID        = "user_id"
	HistoryQueryFilename = "search_query_filename"
	HistoryResultsCount  = "similar_results_count"
	HistoryTimestamp     = "search_timestamp"
	HistoryType          = "type"

	// HistoryTypeUserSearch значение поля type для пользовательского поиска.
	HistoryTypeUserSearch = "user_search"
)

// SearchHistoryEntry запись о поиске пользователя. Vector хранит эмбеддинг изображения-запроса.
type SearchHistoryEntry struct {
	ID            string
	UserID        string
	Vector        []float32
	QueryFilename string
	ResultsCount  int
	SearchedAt    time.Time
}

func NewSearchHistoryEntry(userID string, vector []float32, queryFilename string, resultsCount int) *SearchHistoryEntry {
	return &SearchHistoryEntry{
		UserID:        userID,
		Vector:        vector,
		QueryFilename: queryFilename,
		ResultsCount:  resultsCount,
		SearchedAt:    time.Now().UTC(),
	}
}

// ToMap преобразует запись истории в payload хранилища.
func (h *SearchHistoryEntry) ToMap() map[string]any {
	return map[string]any{
		HistoryUserID:        h.UserID,
		HistoryQueryFilename: h.QueryFilename,
		HistoryResultsCount:  int64(h.ResultsCount),
		HistoryTimestamp:     h.SearchedAt.UTC().Format(time.RFC3339Nano),
		HistoryType:          HistoryTypeUserSearch,
	}
}

// SearchHistoryEntryFromMap восстанавливает запись истории из payload.
func SearchHistoryEntryFromMap(id string, vector []float32, m map[string]any) *SearchHistoryEntry {
	h := &SearchHistoryEntry{ID: id, Vector: vector}

	h.UserID, _ = m[HistoryUserID].(string)
	h.QueryFilename, _ = m[HistoryQueryFilename].(string)
	if n, ok := toFloat(m[HistoryResultsCount]); ok {
		h.ResultsCount = int(n)
	}
	if s, ok := m[HistoryTimestamp].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			h.SearchedAt = t
		}
	}

	return h
}
