package minio

import (
	"bytes"
	"context"
	"sync"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// ImageRepo реализует репозиторий изображений поверх MinIO.
type ImageRepo struct {
	mc     *minio.Client
	bucket string
}

func NewImageRepo(mc *minio.Client, bucket string) *ImageRepo {
	return &ImageRepo{
		mc:     mc,
		bucket: bucket,
	}
}

// Upload загружает изображение в MinIO и возвращает ключ объекта.
func (i *ImageRepo) Upload(ctx context.Context, image *domain.Image) (string, error) {
	bucket := image.Bucket
	if bucket == "" {
		bucket = i.bucket
	}

	info, err := i.mc.PutObject(ctx, bucket, image.ObjectKey, bytes.NewReader(image.Data), image.Size(), minio.PutObjectOptions{
		ContentType: image.ContentType,
		UserMetadata: map[string]string{
			"original-filename": image.Filename,
		},
	})
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return info.Key, nil
}

// Delete удаляет объект из MinIO по указанному ключу.
func (i *ImageRepo) Delete(ctx context.Context, key string) error {
	if err := i.mc.RemoveObject(ctx, i.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// MockImageRepo хранит объекты в памяти. Используется в режиме OBJECT_STORE_MOCK_MODE.
type MockImageRepo struct {
	mu      sync.Mutex
	objects map[string]*domain.Image
}

func NewMockImageRepo() *MockImageRepo {
	return &MockImageRepo{objects: make(map[string]*domain.Image)}
}

func (m *MockImageRepo) Upload(_ context.Context, image *domain.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[image.ObjectKey] = image
	return image.ObjectKey, nil
}

// Delete удаление отсутствующего ключа не считается ошибкой, как и в MinIO.
func (m *MockImageRepo) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// Has сообщает, хранится ли объект с указанным ключом.
func (m *MockImageRepo) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.objects[key]
	return ok
}
