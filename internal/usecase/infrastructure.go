package usecase

import "context"

type EmbeddingProvider interface {
	Embed(ctx context.Context, image []byte) (*Embedding, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, req *UploadObjectReq) (*UploadObjectRes, error)
	Cleanup(paths ...string)
}

type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}
