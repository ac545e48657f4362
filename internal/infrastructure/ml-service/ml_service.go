package ml_service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/jitter"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// EmbedMethod полное имя gRPC-метода ML-сервиса.
const EmbedMethod = "/embedding.v1.EmbeddingService/Embed"

// MLService клиент для взаимодействия с внешним ML-сервисом
type MLService struct {
	conn    grpc.ClientConnInterface
	cfg     *cfg.MLServiceCfg
	sem     chan struct{}
	backoff *jitter.Backoff
	logger  logger.Logger
}

func NewMLService(conn grpc.ClientConnInterface, cfg *cfg.MLServiceCfg, logger logger.Logger) *MLService {
	return &MLService{
		conn:    conn,
		cfg:     cfg,
		sem:     make(chan struct{}, max(cfg.MaxConcurrent, 1)),
		backoff: jitter.NewBackoff(500*time.Millisecond, 10*time.Second, jitter.DefaultFactor),
		logger:  logger,
	}
}

// Embed возвращает эмбеддинг изображения. Транзиентные сбои повторяются с экспоненциальной задержкой,
// InvalidArgument (нечитаемое изображение) не повторяется.
func (m *MLService) Embed(ctx context.Context, image []byte) (emb *usecase.Embedding, err error) {
	const op = "MLService.Embed"

	ctx, span := tracing.Start(ctx, op, attribute.Int("image.bytes", len(image)))
	defer func() { tracing.End(span, err) }()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		return nil, e.Wrap(op, fmt.Errorf("%w: %w", e.ErrEmbedding, ctx.Err()))
	}

	attempts := max(m.cfg.MaxRetries, 1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		res, callErr := m.call(ctx, image)
		if callErr == nil {
			return parseEmbedding(res)
		}
		lastErr = callErr

		if status.Code(callErr) == codes.InvalidArgument {
			return nil, e.Wrap(op, fmt.Errorf("%w: %s", e.ErrEmbeddingInput, status.Convert(callErr).Message()))
		}
		if ctx.Err() != nil || attempt == attempts-1 {
			break
		}

		m.logger.Warnf("%s: embedding failed, retrying (attempt %d): %v", op, attempt+1, callErr)
		if sleepErr := m.backoff.Sleep(ctx, attempt); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	return nil, e.Wrap(op, fmt.Errorf("%w: all attempts failed: %w", e.ErrEmbedding, lastErr))
}

func (m *MLService) call(ctx context.Context, image []byte) (*structpb.Struct, error) {
	if m.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()
	}

	res := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, EmbedMethod, wrapperspb.Bytes(image), res); err != nil {
		return nil, err
	}

	return res, nil
}

// parseEmbedding разбирает ответ {vector: [number], shape: [number], model_version: string}.
func parseEmbedding(res *structpb.Struct) (*usecase.Embedding, error) {
	const op = "MLService.parseEmbedding"

	fields := res.GetFields()
	rawVector := fields["vector"].GetListValue().GetValues()
	if len(rawVector) == 0 {
		return nil, e.Wrap(op, fmt.Errorf("%w: response has no vector", e.ErrEmbedding))
	}

	vector := make([]float32, len(rawVector))
	for i, v := range rawVector {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, e.Wrap(op, fmt.Errorf("%w: vector[%d] is not a number", e.ErrEmbedding, i))
		}
		vector[i] = float32(n.NumberValue)
	}

	var shape []int
	for _, v := range fields["shape"].GetListValue().GetValues() {
		d := v.GetNumberValue()
		if d < 0 || d != math.Trunc(d) {
			return nil, e.Wrap(op, fmt.Errorf("%w: invalid shape value %v", e.ErrEmbedding, d))
		}
		shape = append(shape, int(d))
	}
	if len(shape) == 0 {
		shape = []int{len(vector)}
	}

	return usecase.NewEmbedding(vector, shape, fields["model_version"].GetStringValue()), nil
}
