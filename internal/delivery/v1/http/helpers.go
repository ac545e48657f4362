package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

// validationErrors: более конкретные ошибки должны идти раньше ErrValidation.
var validationErrors = []error{
	e.ErrEmptyVector,
	e.ErrDimensionMismatch,
	e.ErrNonFiniteValue,
	e.ErrInvalidLimit,
	e.ErrInvalidThreshold,
	e.ErrInvalidOffset,
	e.ErrInvalidID,
	e.ErrUserIDRequired,
	e.ErrUnsupportedMetadata,
	e.ErrProductNameRequired,
	e.ErrNegativePrice,
	e.ErrInvalidPrice,
	e.ErrPricePrecision,
	e.ErrNoImage,
	e.ErrUnsupportedMediaType,
	e.ErrFileTooLarge,
	e.ErrExpectedMultipart,
	e.ErrInvalidQueryParam,
	e.ErrValidation,
}

func ToHTTPResponse(err error) (int, string) {
	switch {
	case e.IsValidation(err):
		for _, target := range validationErrors {
			if errors.Is(err, target) {
				return http.StatusBadRequest, target.Error()
			}
		}
		return http.StatusBadRequest, e.ErrValidation.Error()
	case errors.Is(err, e.ErrNotFound):
		return http.StatusNotFound, e.ErrNotFound.Error()
	case errors.Is(err, e.ErrEmbeddingInput):
		return http.StatusUnprocessableEntity, e.ErrEmbeddingInput.Error()
	case errors.Is(err, e.ErrEmbedding):
		return http.StatusBadGateway, e.ErrEmbedding.Error()
	case errors.Is(err, e.ErrObjectStoreUpload):
		return http.StatusBadGateway, e.ErrObjectStoreUpload.Error()
	case errors.Is(err, e.ErrBackend):
		return http.StatusServiceUnavailable, e.ErrBackend.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, context.DeadlineExceeded.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parsePrice разбирает цену вида "599.99". Знак и точность проверяет usecase.
func parsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, e.Wrap("price is empty", e.ErrInvalidPrice)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, e.Wrap(s, e.ErrInvalidPrice)
	}

	return d, nil
}

func ensureMultipartForm(r *http.Request, maxMemory int64) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return e.Wrap(whereami.WhereAmI(), e.ErrFileTooLarge)
		}
		return e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %v", e.ErrExpectedMultipart, err))
	}

	return nil
}

// parseImage читает файл из поля field multipart-формы.
func parseImage(r *http.Request, field string, maxSize int64) (usecase.ImageInput, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return usecase.ImageInput{}, e.ErrNoImage
	}

	fh := r.MultipartForm.File[field][0]
	data, err := readFile(fh, maxSize)
	if err != nil {
		return usecase.ImageInput{}, err
	}

	return usecase.NewImageInput(data, fh.Filename, contentTypeOf(fh, data)), nil
}

func readFile(fh *multipart.FileHeader, maxSize int64) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, e.ErrInternalServerError
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxSize+1))
	if err != nil {
		return nil, e.ErrInternalServerError
	}
	if int64(len(data)) > maxSize {
		return nil, e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	return data, nil
}

// contentTypeOf берёт Content-Type части формы, а если он не задан, определяет его по содержимому.
func contentTypeOf(fh *multipart.FileHeader, data []byte) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}

	return http.DetectContentType(data[:min(len(data), 512)])
}

// parseMetadata разбирает необязательное поле metadata (JSON-объект).
func parseMetadata(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, e.Wrap("metadata", e.ErrUnsupportedMetadata)
	}

	return metadata, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, e.Wrap(name, e.ErrInvalidQueryParam)
	}

	return v, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return false, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, e.Wrap(name, e.ErrInvalidQueryParam)
	}

	return v, nil
}

// thresholdParam возвращает nil, если порог не задан.
func thresholdParam(r *http.Request) (*float32, error) {
	raw := strings.TrimSpace(r.FormValue("threshold"))
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return nil, e.Wrap("threshold", e.ErrInvalidQueryParam)
	}

	t := float32(v)
	return &t, nil
}
