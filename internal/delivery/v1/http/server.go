package http

import (
	"context"
	"net/http"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	httpServer *http.Server
}

// NewServer оборачивает handler в otelhttp: каждый запрос открывает корневой span.
func NewServer(handler http.Handler, cfg *cfg.HTTPConfig, serviceName string) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      otelhttp.NewHandler(handler, serviceName),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
