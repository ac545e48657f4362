package e

import (
	"errors"
	"fmt"
)

var (
	// 400 Bad Request: все ошибки валидации оборачивают ErrValidation
	ErrValidation = errors.New("validation error")

	// Ошибки валидации векторов
	ErrEmptyVector       = fmt.Errorf("%w: vector is empty", ErrValidation)
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrValidation)
	ErrNonFiniteValue    = fmt.Errorf("%w: vector contains non-finite value", ErrValidation)

	// Ошибки валидации параметров запроса
	ErrInvalidLimit        = fmt.Errorf("%w: limit is out of range", ErrValidation)
	ErrInvalidThreshold    = fmt.Errorf("%w: threshold must be within [0, 1]", ErrValidation)
	ErrInvalidOffset       = fmt.Errorf("%w: offset must be non-negative", ErrValidation)
	ErrInvalidID           = fmt.Errorf("%w: invalid record id", ErrValidation)
	ErrUserIDRequired      = fmt.Errorf("%w: user id is required", ErrValidation)
	ErrUnsupportedMetadata = fmt.Errorf("%w: unsupported metadata value", ErrValidation)

	// Ошибки валидации товара и изображения
	ErrProductNameRequired  = fmt.Errorf("%w: product name is required", ErrValidation)
	ErrNegativePrice        = fmt.Errorf("%w: price must be non-negative", ErrValidation)
	ErrInvalidPrice         = fmt.Errorf("%w: invalid price", ErrValidation)
	ErrPricePrecision       = fmt.Errorf("%w: price must have at most 2 decimal places", ErrValidation)
	ErrNoImage              = fmt.Errorf("%w: no image provided", ErrValidation)
	ErrUnsupportedMediaType = fmt.Errorf("%w: unsupported media type", ErrValidation)
	ErrFileTooLarge         = fmt.Errorf("%w: file too large", ErrValidation)
	ErrExpectedMultipart    = fmt.Errorf("%w: expected multipart/form-data", ErrValidation)
	ErrInvalidQueryParam    = fmt.Errorf("%w: invalid query parameter", ErrValidation)

	// 404 Not Found: нормальный исход для get/delete, не логируется как сбой
	ErrNotFound = errors.New("record not found")

	// Ошибки внешних систем
	ErrBackend           = errors.New("vector backend error")
	ErrEmbedding         = errors.New("embedding error")
	ErrEmbeddingInput    = fmt.Errorf("%w: unreadable image", ErrEmbedding)
	ErrObjectStoreUpload = errors.New("object storage upload failed")

	// Ошибка повторного чтения одного результата поиска, не прерывает запрос
	ErrPartialHydration = errors.New("partial hydration failed")

	// Внутренние ошибки
	ErrIncorrectEnvVariable = errors.New("incorrect environment variable")
	ErrInternalServerError  = errors.New("internal server error")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Backend оборачивает ошибку векторной БД: операция, id записи (если есть) и ErrBackend.
func Backend(op string, id string, err error) error {
	if id == "" {
		return fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
	}

	return fmt.Errorf("%s (id=%s): %w: %w", op, id, ErrBackend, err)
}

// IsValidation сообщает, является ли ошибка ошибкой валидации входных данных.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
