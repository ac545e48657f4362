package usecase

import (
	"context"
	"fmt"
	"mime"
	"slices"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/google/uuid"
)

// validateImage проверяет наличие изображения, его размер и тип.
func validateImage(img ImageInput, upload *cfg.UploadCfg) error {
	if len(img.Data) == 0 {
		return e.ErrNoImage
	}

	if upload.MaxFileSize > 0 && int64(len(img.Data)) > upload.MaxFileSize {
		return fmt.Errorf("%w: %d bytes, max %d", e.ErrFileTooLarge, len(img.Data), upload.MaxFileSize)
	}

	if !slices.Contains(upload.AllowedImageTypes, normalizeContentType(img.ContentType)) {
		return fmt.Errorf("%w: %q", e.ErrUnsupportedMediaType, img.ContentType)
	}

	return nil
}

// normalizeContentType приводит Content-Type к виду "type/subtype" без параметров.
func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}

	return mediaType
}

func validateLimit(limit, max int) error {
	if limit < 1 || limit > max {
		return fmt.Errorf("%w: %d not in [1, %d]", e.ErrInvalidLimit, limit, max)
	}

	return nil
}

func validateThreshold(threshold float32) error {
	// NaN не проходит ни одно сравнение
	if !(threshold >= 0 && threshold <= 1) {
		return fmt.Errorf("%w: %v", e.ErrInvalidThreshold, threshold)
	}

	return nil
}

// checkDimension проверяет размерность эмбеддинга. При несовпадении вектор не обрезается и не дополняется.
func checkDimension(vector []float32, dim int) error {
	if len(vector) == 0 {
		return e.ErrEmptyVector
	}
	if len(vector) != dim {
		return fmt.Errorf("%w: embedding has %d values, collection expects %d", e.ErrDimensionMismatch, len(vector), dim)
	}

	return nil
}

// publish отправляет событие. Ошибка публикации только логируется.
func publish(ctx context.Context, events EventPublisher, log logger.Logger, eventType, recordID, userID string, attrs map[string]any) {
	if events == nil {
		return
	}

	event := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		RecordID:   recordID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Attributes: attrs,
	}

	if err := events.Publish(ctx, event); err != nil {
		log.Warnf("failed to publish %s event for %s: %v", eventType, recordID, err)
	}
}
