package http

import (
	"net/http"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxMemory           = 32 << 20
	multipartOverhead   = 1 << 20
	defaultListLimit    = 100
	defaultHistoryLimit = 10
	imageField          = "file"
)

type VectorHandler struct {
	similarity      usecase.SimilarityUC
	recommendations usecase.RecommendationUC
	catalog         usecase.CatalogUC
	upload          *cfg.UploadCfg
	search          *cfg.SearchCfg
	logger          logger.Logger
}

func NewVectorHandler(
	similarity usecase.SimilarityUC,
	recommendations usecase.RecommendationUC,
	catalog usecase.CatalogUC,
	upload *cfg.UploadCfg,
	search *cfg.SearchCfg,
	logger logger.Logger,
) *VectorHandler {
	return &VectorHandler{
		similarity:      similarity,
		recommendations: recommendations,
		catalog:         catalog,
		upload:          upload,
		search:          search,
		logger:          logger,
	}
}

// getEmbeddings
//
//	@Summary		Эмбеддинг изображения
//	@Description	Возвращает эмбеддинг изображения без сохранения
//	@Tags			embeddings
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Изображение"
//	@Success		200		{object}	EmbeddingResponse
//	@Failure		400		{object}	ErrorResponse	"Ошибка валидации"
//	@Failure		422		{object}	ErrorResponse	"Изображение не читается"
//	@Router			/getembeddings [post]
func (h *VectorHandler) getEmbeddings(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readImageForm(w, r)
	if !ok {
		return
	}

	res, err := h.catalog.Embed(r.Context(), image)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, &EmbeddingResponse{
		ID:                uuid.NewString(),
		Filename:          image.Filename,
		Message:           "Embeddings generated successfully",
		EmbeddingStatus:   "success",
		ProcessingTime:    res.ProcessingTime.Seconds(),
		Embeddings:        res.Embedding.Vector,
		EmbeddingsPreview: res.Preview,
		EmbeddingShape:    res.Embedding.Shape,
		ModelUsed:         res.Embedding.ModelVersion,
		EmbeddingStats:    toStatsResponse(res.Stats),
	})
}

// uploadAndStore
//
//	@Summary		Загрузка и сохранение товара
//	@Description	Загружает изображение в хранилище, строит эмбеддинг и сохраняет его вместе с метаданными товара
//	@Tags			vectors
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file			formData	file	true	"Изображение товара"
//	@Param			product_name	formData	string	true	"Название товара"
//	@Param			price			formData	string	true	"Цена, не более двух знаков после точки"
//	@Param			user_id			formData	string	false	"Продавец"
//	@Param			metadata		formData	string	false	"Дополнительные поля (JSON-объект)"
//	@Success		201				{object}	VectorStoreResponse
//	@Failure		400				{object}	ErrorResponse	"Ошибка валидации"
//	@Failure		502				{object}	ErrorResponse	"Хранилище или ML-сервис недоступны"
//	@Router			/vectors/upload-and-store [post]
func (h *VectorHandler) uploadAndStore(w http.ResponseWriter, r *http.Request) {
	image, ok := h.readImageForm(w, r)
	if !ok {
		return
	}

	price, err := parsePrice(r.FormValue("price"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	metadata, err := parseMetadata(r.FormValue("metadata"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	req := &usecase.UploadAndStoreReq{
		Image:       image,
		ProductName: r.FormValue("product_name"),
		Price:       price,
		UserID:      r.FormValue("user_id"),
		Metadata:    metadata,
	}

	res, err := h.catalog.UploadAndStore(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Infof("stored %s for %s (%s)", res.ID, image.Filename, res.AssetPath)
	WriteSuccess(w, http.StatusCreated, &VectorStoreResponse{
		ID:              res.ProcessingID,
		VectorID:        res.ID,
		Filename:        image.Filename,
		Message:         "Image uploaded and embedding stored successfully",
		EmbeddingStatus: "success",
		VectorStored:    true,
		ProcessingTime:  res.ProcessingTime.Seconds(),
		EmbeddingShape:  res.Shape,
		ModelUsed:       res.ModelVersion,
		EmbeddingStats:  toStatsResponse(res.Stats),
		AssetURL:        res.AssetURL,
		AssetPath:       res.AssetPath,
		AssetUploaded:   true,
		UserID:          req.UserID,
	})
}

// searchSimilar
//
//	@Summary		Поиск похожих товаров
//	@Tags			vectors
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file			formData	file	true	"Изображение-запрос"
//	@Param			limit			query		int		false	"Количество результатов"
//	@Param			threshold		query		number	false	"Минимальный скор"
//	@Param			user_id			query		string	false	"Пользователь, в историю которого записывается запрос"
//	@Param			include_vectors	query		bool	false	"Вернуть векторы результатов"
//	@Success		200				{object}	SimilarImagesResponse
//	@Failure		400				{object}	ErrorResponse	"Ошибка валидации"
//	@Failure		503				{object}	ErrorResponse	"Векторная БД недоступна"
//	@Router			/vectors/search [post]
func (h *VectorHandler) searchSimilar(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readSearchForm(w, r)
	if !ok {
		return
	}

	res, err := h.similarity.FindSimilarByImage(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, &SimilarImagesResponse{
		QueryID:             uuid.NewString(),
		QueryFilename:       req.Image.Filename,
		SimilarImages:       toSimilarHits(res.Hits),
		SearchTime:          res.ProcessingTime.Seconds(),
		TotalFound:          len(res.Hits),
		SimilarityThreshold: res.Threshold,
		ModelUsed:           res.ModelVersion,
		HistoryID:           res.HistoryID,
	})
}

// searchComplete
//
//	@Summary		Поиск похожих товаров с полными данными
//	@Description	Каждый результат перечитывается целиком: статистика, превью и при необходимости полный вектор
//	@Tags			vectors
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file				formData	file	true	"Изображение-запрос"
//	@Param			limit				query		int		false	"Количество результатов"
//	@Param			threshold			query		number	false	"Минимальный скор"
//	@Param			user_id				query		string	false	"Пользователь"
//	@Param			include_embeddings	query		bool	false	"Вернуть полные векторы"
//	@Success		200					{object}	CompleteSimilarityResponse
//	@Failure		400					{object}	ErrorResponse	"Ошибка валидации"
//	@Router			/vectors/search-complete [post]
func (h *VectorHandler) searchComplete(w http.ResponseWriter, r *http.Request) {
	base, ok := h.readSearchForm(w, r)
	if !ok {
		return
	}

	includeEmbeddings, err := boolParam(r, "include_embeddings")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.similarity.FindSimilarComplete(r.Context(), &usecase.CompleteSearchReq{
		SimilarSearchReq:  *base,
		IncludeEmbeddings: includeEmbeddings,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, &CompleteSimilarityResponse{
		QueryID:               uuid.NewString(),
		QueryFilename:         base.Image.Filename,
		QueryEmbeddingPreview: res.QueryPreview,
		QueryEmbeddingStats:   toStatsResponse(res.QueryStats),
		QueryEmbedding:        res.QueryEmbedding,
		EmbeddingShape:        res.QueryShape,
		ModelUsed:             res.ModelVersion,
		SearchTime:            res.ProcessingTime.Seconds(),
		TotalSimilarFound:     len(res.Hits),
		SimilarityThreshold:   res.Threshold,
		SimilarEmbeddings:     toCompleteHits(res.Hits),
		Message:               "Similarity search completed",
		HistoryID:             res.HistoryID,
	})
}

// listEmbeddings
//
//	@Summary		Список сохранённых эмбеддингов
//	@Tags			vectors
//	@Produce		json
//	@Param			limit				query		int		false	"Размер страницы (1..1000)"
//	@Param			offset				query		int		false	"Смещение"
//	@Param			include_previews	query		bool	false	"Вернуть превью векторов"
//	@Success		200					{object}	ListResponse
//	@Failure		400					{object}	ErrorResponse	"Ошибка валидации"
//	@Router			/vectors/list [get]
func (h *VectorHandler) listEmbeddings(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	includePreviews, err := boolParam(r, "include_previews")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.catalog.List(r.Context(), &usecase.ListReq{Limit: limit, Offset: offset, IncludePreviews: includePreviews})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toListResponse(res, includePreviews))
}

// retrieveEmbedding
//
//	@Summary		Получение эмбеддинга по id
//	@Tags			vectors
//	@Produce		json
//	@Param			id				path		string	true	"Id записи (UUID)"
//	@Param			include_vector	query		bool	false	"Вернуть полный вектор"
//	@Success		200				{object}	RetrieveResponse
//	@Failure		400				{object}	ErrorResponse	"Некорректный id"
//	@Failure		404				{object}	ErrorResponse	"Запись не найдена"
//	@Router			/vectors/retrieve/{id} [get]
func (h *VectorHandler) retrieveEmbedding(w http.ResponseWriter, r *http.Request) {
	includeVector, err := boolParam(r, "include_vector")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.catalog.Retrieve(r.Context(), chi.URLParam(r, "id"), includeVector)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toRetrieveResponse(rec))
}

// deleteEmbedding
//
//	@Summary		Удаление эмбеддинга
//	@Tags			vectors
//	@Produce		json
//	@Param			id	path		string	true	"Id записи (UUID)"
//	@Success		200	{object}	DeleteResponse
//	@Failure		404	{object}	ErrorResponse	"Запись не найдена"
//	@Router			/vectors/delete/{id} [delete]
func (h *VectorHandler) deleteEmbedding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Infof("deleted %s", id)
	WriteSuccess(w, http.StatusOK, &DeleteResponse{
		VectorID: id,
		Deleted:  true,
		Message:  "Embedding deleted successfully",
	})
}

// collectionStats
//
//	@Summary		Статистика коллекции
//	@Tags			vectors
//	@Produce		json
//	@Success		200	{object}	CollectionStatsResponse
//	@Failure		503	{object}	ErrorResponse	"Векторная БД недоступна"
//	@Router			/vectors/stats [get]
func (h *VectorHandler) collectionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toCollectionStatsResponse(stats))
}

// searchHistory
//
//	@Summary		История поиска пользователя
//	@Tags			users
//	@Produce		json
//	@Param			user_id	path		string	true	"Пользователь"
//	@Param			limit	query		int		false	"Количество записей"
//	@Success		200		{object}	SearchHistoryResponse
//	@Router			/vectors/search-history/{user_id} [get]
func (h *VectorHandler) searchHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	limit, err := intParam(r, "limit", defaultHistoryLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries, err := h.recommendations.GetUserSearchHistory(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toSearchHistoryResponse(userID, entries))
}

// userRecommendations
//
//	@Summary		Рекомендации пользователя
//	@Description	Товары, похожие на последние поисковые запросы пользователя
//	@Tags			users
//	@Produce		json
//	@Param			user_id	path		string	true	"Пользователь"
//	@Param			limit	query		int		false	"Количество рекомендаций"
//	@Success		200		{object}	RecommendationsResponse
//	@Router			/vectors/recommendations/{user_id} [get]
func (h *VectorHandler) userRecommendations(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", h.search.DefaultLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.recommendations.GetUserRecommendations(r.Context(), chi.URLParam(r, "user_id"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toRecommendationsResponse(res))
}

// health
//
//	@Summary	Проверка доступности
//	@Tags		general
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (h *VectorHandler) health(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, &HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// readImageForm разбирает multipart-форму и читает изображение. При ошибке ответ уже записан.
func (h *VectorHandler) readImageForm(w http.ResponseWriter, r *http.Request) (usecase.ImageInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxFileSize+multipartOverhead)

	if err := ensureMultipartForm(r, maxMemory); err != nil {
		h.writeError(w, r, err)
		return usecase.ImageInput{}, false
	}

	image, err := parseImage(r, imageField, h.upload.MaxFileSize)
	if err != nil {
		h.writeError(w, r, err)
		return usecase.ImageInput{}, false
	}

	return image, true
}

func (h *VectorHandler) readSearchForm(w http.ResponseWriter, r *http.Request) (*usecase.SimilarSearchReq, bool) {
	image, ok := h.readImageForm(w, r)
	if !ok {
		return nil, false
	}

	limit, err := intParam(r, "limit", h.search.DefaultLimit)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}

	threshold, err := thresholdParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}

	includeVectors, err := boolParam(r, "include_vectors")
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}

	return &usecase.SimilarSearchReq{
		Image:          image,
		Limit:          limit,
		Threshold:      threshold,
		UserID:         r.FormValue("user_id"),
		IncludeVectors: includeVectors,
	}, true
}

func (h *VectorHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, _ := ToHTTPResponse(err)

	switch {
	case code == http.StatusNotFound:
		h.logger.Debugf("%d %s %s: %v", code, r.Method, r.URL.Path, err)
	case code < http.StatusInternalServerError:
		h.logger.Warnf("%d %s %s: %v", code, r.Method, r.URL.Path, err)
	default:
		h.logger.Errorf(err, "%d %s %s", code, r.Method, r.URL.Path)
	}

	WriteError(w, err)
}
