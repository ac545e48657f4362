package minio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/internal/infrastructure"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/jitter"
	"github.com/DRSN-tech/visual-search/pkg/logger"

	"github.com/google/uuid"
)

const cleanupAttempts = 3

// MinioInfrastructure загружает изображения товаров в объектное хранилище и удаляет их в фоне.
type MinioInfrastructure struct {
	imageRepo   usecase.ImageRepository
	cfg         *cfg.MinIOCfg
	logger      logger.Logger
	shutdownCtx context.Context
	wg          sync.WaitGroup
	backoff     *jitter.Backoff
	now         func() time.Time
}

func NewMinioInfrastructure(imageRepo usecase.ImageRepository, cfg *cfg.MinIOCfg, logger logger.Logger, shutdownCtx context.Context) *MinioInfrastructure {
	return &MinioInfrastructure{
		imageRepo:   imageRepo,
		cfg:         cfg,
		logger:      logger,
		shutdownCtx: shutdownCtx,
		backoff:     jitter.NewBackoff(time.Second, 4*time.Second, jitter.DefaultFactor),
		now:         time.Now,
	}
}

// Upload сохраняет изображение под ключом <prefix>/<unix-ms>_<uuid8>_<filename>.
// Сбой хранилища не возвращается ошибкой: ответ приходит с OK=false.
func (m *MinioInfrastructure) Upload(ctx context.Context, req *usecase.UploadObjectReq) (*usecase.UploadObjectRes, error) {
	const op = "MinioInfrastructure.Upload"

	objectPath := m.objectPath(req.Filename, req.ContentType)
	image := domain.NewImage(req.Filename, m.cfg.BucketName, objectPath, req.Data, req.ContentType)

	key, err := m.imageRepo.Upload(ctx, image)
	if err != nil {
		m.logger.Errorf(err, "%s: upload %s failed", op, req.Filename)
		return usecase.NewUploadObjectRes(false, "", ""), nil
	}

	m.logger.Debugf("%s: uploaded %s (%d bytes)", op, key, image.Size())
	return usecase.NewUploadObjectRes(true, m.PublicURL(key), key), nil
}

// PublicURL возвращает публичную ссылку на объект: PUBLIC_BASE_URL/<bucket>/<path>.
func (m *MinioInfrastructure) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", m.cfg.PublicBaseURL, m.cfg.BucketName, objectPath)
}

// Cleanup запускает фоновое удаление указанных объектов.
func (m *MinioInfrastructure) Cleanup(paths ...string) {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			keys = append(keys, p)
		}
	}
	if len(keys) == 0 {
		return
	}

	m.wg.Add(1)
	go m.cleanupKeys(keys)
}

// cleanupKeys удаляет объекты с экспоненциальной задержкой и jitter между попытками.
func (m *MinioInfrastructure) cleanupKeys(keys []string) {
	defer m.wg.Done()
	const op = "MinioInfrastructure.cleanupKeys"

	ctx, cancel := context.WithTimeout(m.shutdownCtx, m.cfg.CleanupTimeout)
	defer cancel()

	for _, key := range keys {
		var err error
		for attempt := 0; attempt < cleanupAttempts; attempt++ {
			if err = m.imageRepo.Delete(ctx, key); err == nil {
				break
			}
			if attempt == cleanupAttempts-1 {
				break
			}
			if sleepErr := m.backoff.Sleep(ctx, attempt); sleepErr != nil {
				m.logger.Warnf("%s: cleanup interrupted, key=%s", op, key)
				return
			}
		}

		if err != nil {
			m.logger.Errorf(err, "%s: object %s left orphaned", op, key)
			continue
		}
		m.logger.Infof("%s: removed %s", op, key)
	}
}

// WaitForCleanup ожидает завершения всех фоновых задач очистки с учётом таймаута завершения приложения.
func (m *MinioInfrastructure) WaitForCleanup(shutdownTimeoutCtx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownTimeoutCtx.Done():
		return fmt.Errorf("object cleanup timeout during shutdown: %w", shutdownTimeoutCtx.Err())
	}
}

func (m *MinioInfrastructure) objectPath(filename, contentType string) string {
	name := fmt.Sprintf("%d_%s_%s", m.now().UnixMilli(), uuid.NewString()[:8], infrastructure.SanitizeFilename(filename, contentType))
	if m.cfg.PathPrefix == "" {
		return name
	}

	return m.cfg.PathPrefix + "/" + name
}
