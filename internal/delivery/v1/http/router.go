package http

import (
	"time"

	_ "github.com/DRSN-tech/visual-search/docs" // регистрация OpenAPI-описания
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

// Init регистрирует middleware и маршруты. requestTimeout ограничивает время обработки каждого запроса.
func (r *Router) Init(handler *VectorHandler, requestTimeout time.Duration) {
	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RealIP)
	r.router.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.router.Use(middleware.Timeout(requestTimeout))
	}

	r.router.Get("/health", handler.health)
	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"), // ссылка на JSON
	))

	r.router.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/health", handler.health)
		v1.Post("/getembeddings", handler.getEmbeddings)
		registerVectorRoutes(v1, handler)
	})
}

func registerVectorRoutes(router chi.Router, h *VectorHandler) {
	router.Route("/vectors", func(vr chi.Router) {
		vr.Post("/upload-and-store", h.uploadAndStore)
		vr.Post("/search", h.searchSimilar)
		vr.Post("/search-complete", h.searchComplete)
		vr.Get("/list", h.listEmbeddings)
		vr.Get("/retrieve/{id}", h.retrieveEmbedding)
		vr.Delete("/delete/{id}", h.deleteEmbedding)
		vr.Get("/stats", h.collectionStats)
		vr.Get("/search-history/{user_id}", h.searchHistory)
		vr.Get("/recommendations/{user_id}", h.userRecommendations)
	})
}
