package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

type Config struct {
	Minio   *MinIOCfg
	Http    *HTTPConfig
	Qdrant  *QdrantCfg
	Redis   *RedisCfg
	Ml      *MLServiceCfg
	Kafka   *KafkaCfg
	Search  *SearchCfg
	Upload  *UploadCfg
	Tracing *TracingCfg
}

type KafkaCfg struct {
	Topic             string
	Brokers           []string // пустой список отключает публикацию событий
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type MinIOCfg struct {
	MinioEndpoint     string // Адрес конечной точки Minio
	BucketName        string // Название бакета для изображений
	MinioRootUser     string // Имя пользователя для доступа к Minio
	MinioRootPassword string // Пароль для доступа к Minio
	MinioUseSSL       bool
	PublicBaseURL     string // База для публичных ссылок на объекты
	PathPrefix        string // Префикс ключей объектов
	MockMode          bool   // Без сетевых вызовов: детерминированные ссылки для разработки
	CleanupTimeout    time.Duration
}

type HTTPConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

type QdrantCfg struct {
	Port                  int
	Host                  string
	ApiKey                string
	UseTLS                bool
	CollectionName        string // коллекция эмбеддингов товаров
	HistoryCollectionName string // коллекция истории поиска пользователей
	VectorSize            uint64
}

type RedisCfg struct {
	Enabled      bool
	Addr         string
	Password     string
	User         string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	Timeout      time.Duration
	EmbeddingTTL time.Duration
}

type MLServiceCfg struct {
	Addr          string
	ModelName     string // пространство ключей кэша эмбеддингов
	MaxConcurrent int
	MaxRetries    int
	CallTimeout   time.Duration
}

// SearchCfg — параметры поиска и рекомендаций.
type SearchCfg struct {
	DefaultLimit            int
	MaxLimit                int
	DefaultThreshold        float32
	RecommendationThreshold float32
	RecommendationHistory   int // сколько последних запросов читать
	RecommendationSeeds     int // сколько из них использовать как seed
	RecommendationHeadroom  int // множитель кандидатов на один seed
	MaxListLimit            int
}

// UploadCfg — ограничения на загружаемые изображения.
type UploadCfg struct {
	MaxFileSize       int64
	AllowedImageTypes []string
}

type TracingCfg struct {
	ServiceName  string
	OTLPEndpoint string // пустое значение отключает трассировку
	SampleRate   float64
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrant, err := LoadQdrantCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ml, err := loadMLServiceCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	search, err := LoadSearchCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	upload, err := loadUploadCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	tracing, err := loadTracingCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Minio:   minio,
		Http:    http,
		Qdrant:  qdrant,
		Redis:   redis,
		Ml:      ml,
		Kafka:   kafka,
		Search:  search,
		Upload:  upload,
		Tracing: tracing,
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultPartitions        = 3
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
		defaultTopic             = "visual-search.events"
	)

	var brokers []string
	if brokerStr := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokerStr != "" {
		for _, b := range strings.Split(brokerStr, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv("REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL         = false
		defaultMockMode       = true
		defaultEndpoint       = "minio:9000"
		defaultBucket         = "fashion-images"
		defaultPathPrefix     = "images"
		defaultCleanupTimeout = 30 * time.Second
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	mockMode, err := strconv.ParseBool(getEnvOrDefault("OBJECT_STORE_MOCK_MODE", strconv.FormatBool(defaultMockMode)))
	if err != nil {
		log.Errorf(err, "invalid OBJECT_STORE_MOCK_MODE")
		return nil, err
	}

	cleanupTimeout, err := parseDurationEnv("OBJECT_STORE_CLEANUP_TIMEOUT", defaultCleanupTimeout)
	if err != nil {
		log.Errorf(err, "invalid OBJECT_STORE_CLEANUP_TIMEOUT")
		return nil, err
	}

	endpoint := getEnvOrDefault("MINIO_ENDPOINT", defaultEndpoint)
	scheme := "http"
	if useSSL {
		scheme = "https"
	}

	cfg := &MinIOCfg{
		MinioEndpoint:     endpoint,
		BucketName:        getEnvOrDefault("BUCKET_NAME", defaultBucket),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
		PublicBaseURL:     strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", scheme+"://"+endpoint), "/"),
		PathPrefix:        strings.Trim(getEnvOrDefault("OBJECT_PATH_PREFIX", defaultPathPrefix), "/"),
		MockMode:          mockMode,
		CleanupTimeout:    cleanupTimeout,
	}

	if !cfg.MockMode && (cfg.MinioRootUser == "" || cfg.MinioRootPassword == "") {
		err := fmt.Errorf("MINIO_ROOT_USER and MINIO_ROOT_PASSWORD are required when OBJECT_STORE_MOCK_MODE is false")
		log.Errorf(err, "missing MinIO credentials")
		return nil, err
	}

	return cfg, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort           = "8000"
		defaultReadTimeout    = 15 * time.Second
		defaultWriteTimeout   = 60 * time.Second
		defaultIdleTimeout    = 60 * time.Second
		defaultRequestTimeout = 45 * time.Second
	)

	port := getEnvOrDefault("HTTP_PORT", defaultPort)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	requestTimeout, err := parseDurationEnv("REQUEST_TIMEOUT", defaultRequestTimeout)
	if err != nil {
		log.Errorf(err, "invalid REQUEST_TIMEOUT")
		return nil, err
	}

	return &HTTPConfig{
		Port:           port,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		RequestTimeout: requestTimeout,
	}, nil
}

// LoadQdrantCfg читает настройки Qdrant. Экспортирована для CLI, которому не нужна остальная конфигурация.
func LoadQdrantCfg(logger logger.Logger) (*QdrantCfg, error) {
	const (
		defaultQdrantGRPCPort    = "6334"
		defaultUseTLS            = false
		defaultVectorSize        = "2048"
		defaultCollection        = "fashion_embeddings"
		defaultHistoryCollection = "user_search_embeddings"
	)

	host := getEnv("QDRANT_HOST")
	if host == "" {
		err := fmt.Errorf("QDRANT_HOST is required")
		logger.Errorf(err, "missing QDRANT_HOST")
		return nil, err
	}

	strPort := getEnvOrDefault("QDRANT_GRPC_PORT", defaultQdrantGRPCPort)
	port, err := strconv.Atoi(strPort)
	if err != nil {
		logger.Errorf(err, "invalid QDRANT_GRPC_PORT")
		return nil, err
	}

	useTLS, err := strconv.ParseBool(getEnvOrDefault("QDRANT_USE_TLS", strconv.FormatBool(defaultUseTLS)))
	if err != nil {
		logger.Errorf(err, "invalid QDRANT_USE_TLS")
		return nil, err
	}

	strVectorSize := getEnvOrDefault("VECTOR_SIZE", defaultVectorSize)
	vectorSize, err := strconv.ParseUint(strVectorSize, 10, 64)
	if err != nil || vectorSize == 0 {
		if err == nil {
			err = e.ErrIncorrectEnvVariable
		}
		logger.Errorf(err, "invalid VECTOR_SIZE")
		return nil, err
	}

	collection := getEnvOrDefault("QDRANT_COLLECTION_NAME", defaultCollection)
	history := getEnvOrDefault("QDRANT_HISTORY_COLLECTION_NAME", defaultHistoryCollection)
	if collection == history {
		err := fmt.Errorf("QDRANT_COLLECTION_NAME and QDRANT_HISTORY_COLLECTION_NAME must differ")
		logger.Errorf(err, "invalid qdrant collections")
		return nil, err
	}

	return &QdrantCfg{
		Host:                  host,
		Port:                  port,
		ApiKey:                getEnv("QDRANT_API_KEY"),
		UseTLS:                useTLS,
		CollectionName:        collection,
		HistoryCollectionName: history,
		VectorSize:            vectorSize,
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultAddr         = "localhost:6379"
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultEmbeddingTTL = 24 * time.Hour
	)

	enabled, err := strconv.ParseBool(getEnvOrDefault("EMBEDDING_CACHE_ENABLED", "false"))
	if err != nil {
		log.Errorf(err, "invalid EMBEDDING_CACHE_ENABLED")
		return nil, err
	}

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	embeddingTTL, err := parseDurationEnv("EMBEDDING_CACHE_TTL", defaultEmbeddingTTL)
	if err != nil {
		log.Errorf(err, "invalid EMBEDDING_CACHE_TTL")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Enabled:      enabled,
		Addr:         getEnvOrDefault("REDIS_ADDR", defaultAddr),
		Password:     getEnv("REDIS_PASSWORD"),
		User:         getEnv("REDIS_USER"),
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		Timeout:      timeout,
		EmbeddingTTL: embeddingTTL,
	}, nil
}

func loadMLServiceCfg() (*MLServiceCfg, error) {
	const (
		defaultHost          = "ml-service"
		defaultPort          = "50051"
		defaultMaxConcurrent = 8
		defaultMaxRetries    = 3
		defaultCallTimeout   = 20 * time.Second
		defaultModelName     = "resnet50"
	)

	maxConcurrent, err := parseIntEnv("ML_MAX_CONCURRENT", defaultMaxConcurrent)
	if err != nil {
		return nil, e.Wrap("ML_MAX_CONCURRENT", err)
	}

	maxRetries, err := parseIntEnv("ML_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		return nil, e.Wrap("ML_MAX_RETRIES", err)
	}

	callTimeout, err := parseDurationEnv("ML_CALL_TIMEOUT", defaultCallTimeout)
	if err != nil {
		return nil, e.Wrap("ML_CALL_TIMEOUT", err)
	}

	host := getEnvOrDefault("ML_HOST", defaultHost)
	port := getEnvOrDefault("ML_PORT", defaultPort)

	return &MLServiceCfg{
		Addr:          host + ":" + port,
		ModelName:     getEnvOrDefault("ML_MODEL_NAME", defaultModelName),
		MaxConcurrent: max(maxConcurrent, 1),
		MaxRetries:    max(maxRetries, 1),
		CallTimeout:   callTimeout,
	}, nil
}

// LoadSearchCfg читает параметры поиска и рекомендаций.
func LoadSearchCfg() (*SearchCfg, error) {
	const (
		defaultLimit                   = 5
		defaultMaxLimit                = 50
		defaultThreshold               = 0.7
		defaultRecommendationThreshold = 0.5
		defaultRecommendationHistory   = 10
		defaultRecommendationSeeds     = 3
		defaultRecommendationHeadroom  = 2
		defaultMaxListLimit            = 1000
	)

	threshold, err := parseThresholdEnv("SEARCH_DEFAULT_THRESHOLD", defaultThreshold)
	if err != nil {
		return nil, e.Wrap("SEARCH_DEFAULT_THRESHOLD", err)
	}

	recThreshold, err := parseThresholdEnv("RECOMMENDATION_THRESHOLD", defaultRecommendationThreshold)
	if err != nil {
		return nil, e.Wrap("RECOMMENDATION_THRESHOLD", err)
	}

	maxLimit, err := parseIntEnv("SEARCH_MAX_LIMIT", defaultMaxLimit)
	if err != nil {
		return nil, e.Wrap("SEARCH_MAX_LIMIT", err)
	}
	// иначе поиск с лимитом по умолчанию отклонялся бы как ошибка клиента
	if maxLimit < defaultLimit {
		return nil, e.Wrap("SEARCH_MAX_LIMIT", fmt.Errorf("%w: %d is less than default limit %d", e.ErrIncorrectEnvVariable, maxLimit, defaultLimit))
	}

	return &SearchCfg{
		DefaultLimit:            defaultLimit,
		MaxLimit:                maxLimit,
		DefaultThreshold:        float32(threshold),
		RecommendationThreshold: float32(recThreshold),
		RecommendationHistory:   defaultRecommendationHistory,
		RecommendationSeeds:     defaultRecommendationSeeds,
		RecommendationHeadroom:  defaultRecommendationHeadroom,
		MaxListLimit:            defaultMaxListLimit,
	}, nil
}

func loadUploadCfg() (*UploadCfg, error) {
	const (
		defaultMaxFileSizeMB     = 10
		defaultAllowedImageTypes = "image/jpeg,image/jpg,image/png,image/gif,image/webp"
	)

	maxMB, err := parseIntEnv("MAX_FILE_SIZE_MB", defaultMaxFileSizeMB)
	if err != nil {
		return nil, e.Wrap("MAX_FILE_SIZE_MB", err)
	}

	var types []string
	for _, t := range strings.Split(getEnvOrDefault("ALLOWED_IMAGE_TYPES", defaultAllowedImageTypes), ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			types = append(types, t)
		}
	}

	return &UploadCfg{
		MaxFileSize:       int64(maxMB) << 20,
		AllowedImageTypes: types,
	}, nil
}

func loadTracingCfg() (*TracingCfg, error) {
	const (
		defaultServiceName = "visual-search"
		defaultSampleRate  = 1.0
	)

	rate, err := parseFloatEnv("OTEL_SAMPLE_RATE", defaultSampleRate)
	if err != nil {
		return nil, e.Wrap("OTEL_SAMPLE_RATE", err)
	}

	return &TracingCfg{
		ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", defaultServiceName),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SampleRate:   rate,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	floatValue, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return floatValue, nil
}

// parseThresholdEnv считывает порог сходства. Значение вне [0, 1] считается ошибкой конфигурации.
func parseThresholdEnv(key string, defaultValue float64) (float64, error) {
	v, err := parseFloatEnv(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if !(v >= 0 && v <= 1) {
		return 0, fmt.Errorf("%w: %s=%v is outside [0, 1]", e.ErrIncorrectEnvVariable, key, v)
	}

	return v, nil
}
