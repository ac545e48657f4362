package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/visual-search/internal/cfg"
	v1Http "github.com/DRSN-tech/visual-search/internal/delivery/v1/http"
	"github.com/DRSN-tech/visual-search/internal/infrastructure/kafka"
	minioInfra "github.com/DRSN-tech/visual-search/internal/infrastructure/minio"
	ml_service "github.com/DRSN-tech/visual-search/internal/infrastructure/ml-service"
	s3Repo "github.com/DRSN-tech/visual-search/internal/repository/minio"
	qdrantRepo "github.com/DRSN-tech/visual-search/internal/repository/qdrant"
	"github.com/DRSN-tech/visual-search/internal/repository/redis"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/clients"
	"github.com/DRSN-tech/visual-search/pkg/closer"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	initTimeout     = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	closer      *closer.Closer
	httpSrv     *v1Http.Server
	shutdownCtx context.Context
	cancel      context.CancelFunc
}

// NewApp создаёт клиенты, репозитории и usecase-ы и регистрирует их закрытие в обратном порядке.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: log,
		closer: closer.NewCloser(2 * time.Second),
	}
	// отменяется после остановки HTTP, прерывает фоновую очистку объектов
	a.shutdownCtx, a.cancel = context.WithCancel(context.Background())

	if err := a.init(); err != nil {
		a.cancel()
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := a.closer.Close(closeCtx); closeErr != nil {
			log.Warnf("partial init cleanup: %v", closeErr)
		}
		return nil, err
	}

	return a, nil
}

func (a *App) init() error {
	cfg, log := a.cfg, a.logger

	initCtx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	tp, err := tracing.Init(initCtx, tracing.Config{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.Add("tracer", tp.Shutdown)

	// === Векторная БД ===
	qdrantClient, err := clients.NewQdrantClient(cfg.Qdrant)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.AddSimple("qdrant", qdrantClient.Close)

	vectorRepo := qdrantRepo.NewVectorRepo(qdrantClient, cfg.Qdrant, log)
	if err := vectorRepo.Initialize(initCtx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	// === ML-сервис ===
	conn, err := clients.NewMLConn(cfg.Ml)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.AddSimple("ml grpc conn", conn.Close)

	var embedder usecase.EmbeddingProvider = ml_service.NewMLService(conn, cfg.Ml, log)

	if cfg.Redis.Enabled {
		redisClient := clients.NewRedisClient(cfg.Redis)
		if err := redisClient.Ping(initCtx); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
		a.closer.AddSimple("redis", redisClient.Client.Close)

		cacheRepo := redis.NewEmbeddingCacheRepo(redisClient.Client, cfg.Redis, log)
		embedder = ml_service.NewCachedEmbedder(embedder, cacheRepo, cfg.Ml.ModelName, log)
		log.Infof("embedding cache enabled, ttl %v", cfg.Redis.EmbeddingTTL)
	}

	// === Объектное хранилище ===
	var imageRepo usecase.ImageRepository
	if cfg.Minio.MockMode {
		log.Warnf("object store mock mode: images are kept in memory")
		imageRepo = s3Repo.NewMockImageRepo()
	} else {
		minioClient, err := clients.NewMinIOClient(cfg.Minio)
		if err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
		if err := clients.EnsureBucket(initCtx, minioClient, cfg.Minio.BucketName); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
		imageRepo = s3Repo.NewImageRepo(minioClient, cfg.Minio.BucketName)
	}

	objects := minioInfra.NewMinioInfrastructure(imageRepo, cfg.Minio, log, a.shutdownCtx)
	a.closer.Add("object cleanup", objects.WaitForCleanup)

	// === События ===
	var events usecase.EventPublisher = kafka.NewNoopPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(log, cfg.Kafka)
		if err := producer.EnsureTopic(initTimeout); err != nil {
			log.Warnf("kafka topic %s not ensured: %v", cfg.Kafka.Topic, err)
		}
		a.closer.AddSimple("kafka producer", producer.Close)
		events = producer
	} else {
		log.Infof("KAFKA_BROKERS is empty, events are not published")
	}

	// === Usecase-ы и HTTP ===
	similarityUC := usecase.NewSimilarityUC(vectorRepo, vectorRepo, embedder, events, cfg.Search, cfg.Upload, log)
	recommendationUC := usecase.NewRecommendationUC(vectorRepo, vectorRepo, cfg.Search, log)
	catalogUC := usecase.NewCatalogUC(vectorRepo, embedder, objects, events, cfg.Search, cfg.Upload, log)

	handler := v1Http.NewVectorHandler(similarityUC, recommendationUC, catalogUC, cfg.Upload, cfg.Search, log)

	r := chi.NewRouter()
	v1Http.NewRouter(r, log).Init(handler, cfg.Http.RequestTimeout)

	a.httpSrv = v1Http.NewServer(r, cfg.Http, cfg.Tracing.ServiceName)
	a.closer.Add("http server", a.httpSrv.Stop)

	return nil
}

// Run запускает HTTP-сервер и блокируется до сигнала остановки или фатальной ошибки.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// === Ожидание сигнала или ошибки ===
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	// === Graceful shutdown ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer a.cancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
		if appErr == nil {
			appErr = err
		}
	} else {
		a.logger.Infof("all resources closed")
	}

	return appErr
}
